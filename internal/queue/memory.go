package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process JobQueue. Registrations do not survive a
// restart; the schedule sync rebuilds them at boot. Used when Redis is not
// configured, and in tests.
type MemoryQueue struct {
	mu      sync.RWMutex
	entries map[string]ScheduledEntry
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		entries: make(map[string]ScheduledEntry),
	}
}

// Ping always succeeds; the queue lives in process memory.
func (q *MemoryQueue) Ping(_ context.Context) error {
	return nil
}

// Register upserts the entry.
func (q *MemoryQueue) Register(_ context.Context, entry ScheduledEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[entry.ID] = entry
	return nil
}

// Remove deletes the entry. Removing an absent job is not an error.
func (q *MemoryQueue) Remove(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, jobID)
	return nil
}

// Get returns the entry, or nil when the job is not registered.
func (q *MemoryQueue) Get(_ context.Context, jobID string) (*ScheduledEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	entry, ok := q.entries[jobID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// List returns every registration.
func (q *MemoryQueue) List(_ context.Context) ([]ScheduledEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]ScheduledEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		out = append(out, entry)
	}
	return out, nil
}

// IDs returns the registered job ids as one snapshot.
func (q *MemoryQueue) IDs(_ context.Context) (map[string]bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	set := make(map[string]bool, len(q.entries))
	for id := range q.entries {
		set[id] = true
	}
	return set, nil
}

// Due returns jobs whose fire time has arrived, soonest first.
func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]ScheduledEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	due := make([]ScheduledEntry, 0)
	for _, entry := range q.entries {
		if !entry.NextFireAt.After(now) {
			due = append(due, entry)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextFireAt.Before(due[j].NextFireAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Reschedule moves the job's fire time.
func (q *MemoryQueue) Reschedule(_ context.Context, jobID string, nextFireAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[jobID]
	if !ok {
		return errJobNotRegistered(jobID)
	}
	entry.NextFireAt = nextFireAt
	q.entries[jobID] = entry
	return nil
}
