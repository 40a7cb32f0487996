package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

type recordingHandler struct {
	mu       sync.Mutex
	payloads []TriggerPayload
	err      error
	panicMsg string
}

func (r *recordingHandler) handle(_ context.Context, payload TriggerPayload) error {
	r.mu.Lock()
	r.payloads = append(r.payloads, payload)
	r.mu.Unlock()
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.err
}

func (r *recordingHandler) seen() []TriggerPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TriggerPayload, len(r.payloads))
	copy(out, r.payloads)
	return out
}

func fixedNext(d *Dispatcher, interval time.Duration) {
	d.next = func(_, _ string, after time.Time) (time.Time, error) {
		return after.Add(interval), nil
	}
}

// TestDispatcherTick tests one poll cycle: due jobs advance, then fire.
func TestDispatcherTick(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	t.Run("fires due jobs with their payload", func(t *testing.T) {
		q := NewMemoryQueue()
		h := &recordingHandler{}
		d := NewDispatcher(q, logger.NewNop(), nil, h.handle, DispatcherConfig{})
		fixedNext(d, 5*time.Minute)
		d.now = func() time.Time { return now }

		require.NoError(t, q.Register(ctx, entryAt("wf-1", now.Add(-time.Second))))

		d.Tick(ctx)
		d.wg.Wait()

		seen := h.seen()
		require.Len(t, seen, 1)
		assert.Equal(t, "wf-1", seen[0].WorkflowID)
		assert.Equal(t, "org-1", seen[0].OrganizationID)
		assert.Equal(t, "schedule", seen[0].TriggeredBy)
	})

	t.Run("reschedules before the handler runs", func(t *testing.T) {
		q := NewMemoryQueue()

		var mu sync.Mutex
		var observed *ScheduledEntry
		handle := func(hctx context.Context, payload TriggerPayload) error {
			entry, _ := q.Get(hctx, "schedule:"+payload.WorkflowID)
			mu.Lock()
			observed = entry
			mu.Unlock()
			return nil
		}

		d := NewDispatcher(q, logger.NewNop(), nil, handle, DispatcherConfig{})
		fixedNext(d, 5*time.Minute)
		d.now = func() time.Time { return now }

		require.NoError(t, q.Register(ctx, entryAt("wf-1", now)))

		d.Tick(ctx)
		d.wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		require.NotNil(t, observed)
		assert.Equal(t, now.Add(5*time.Minute), observed.NextFireAt,
			"the queue entry must already point at the next occurrence while the handler runs")
	})

	t.Run("jobs not yet due are untouched", func(t *testing.T) {
		q := NewMemoryQueue()
		h := &recordingHandler{}
		d := NewDispatcher(q, logger.NewNop(), nil, h.handle, DispatcherConfig{})
		fixedNext(d, 5*time.Minute)
		d.now = func() time.Time { return now }

		future := now.Add(time.Hour)
		require.NoError(t, q.Register(ctx, entryAt("wf-1", future)))

		d.Tick(ctx)
		d.wg.Wait()

		assert.Empty(t, h.seen())
		entry, _ := q.Get(ctx, "schedule:wf-1")
		assert.Equal(t, future, entry.NextFireAt)
	})

	t.Run("a schedule that stopped evaluating parks without firing", func(t *testing.T) {
		q := NewMemoryQueue()
		h := &recordingHandler{}
		d := NewDispatcher(q, logger.NewNop(), nil, h.handle, DispatcherConfig{})
		d.next = func(_, _ string, _ time.Time) (time.Time, error) {
			return time.Time{}, errors.New("unknown time zone Atlantis/Sunken")
		}
		d.now = func() time.Time { return now }

		require.NoError(t, q.Register(ctx, entryAt("wf-1", now)))

		d.Tick(ctx)
		d.wg.Wait()

		assert.Empty(t, h.seen(), "an unevaluable schedule must not fire")
		entry, _ := q.Get(ctx, "schedule:wf-1")
		require.NotNil(t, entry, "parked jobs stay registered")
		assert.Equal(t, now.Add(parkDelay), entry.NextFireAt)
	})

	t.Run("handler failures do not disturb the registration", func(t *testing.T) {
		q := NewMemoryQueue()
		h := &recordingHandler{err: errors.New("workflow exploded")}
		d := NewDispatcher(q, logger.NewNop(), nil, h.handle, DispatcherConfig{})
		fixedNext(d, 5*time.Minute)
		d.now = func() time.Time { return now }

		require.NoError(t, q.Register(ctx, entryAt("wf-1", now)))

		d.Tick(ctx)
		d.wg.Wait()

		require.Len(t, h.seen(), 1)
		entry, _ := q.Get(ctx, "schedule:wf-1")
		require.NotNil(t, entry)
		assert.Equal(t, now.Add(5*time.Minute), entry.NextFireAt)
	})

	t.Run("a panicking handler is contained", func(t *testing.T) {
		q := NewMemoryQueue()
		h := &recordingHandler{panicMsg: "nil map write"}
		d := NewDispatcher(q, logger.NewNop(), nil, h.handle, DispatcherConfig{})
		fixedNext(d, 5*time.Minute)
		d.now = func() time.Time { return now }

		require.NoError(t, q.Register(ctx, entryAt("wf-1", now)))

		d.Tick(ctx)
		d.wg.Wait()

		require.Len(t, h.seen(), 1)
		entry, _ := q.Get(ctx, "schedule:wf-1")
		require.NotNil(t, entry)
		assert.Equal(t, now.Add(5*time.Minute), entry.NextFireAt)

		// The dispatcher keeps working after the panic.
		d.now = func() time.Time { return now.Add(6 * time.Minute) }
		h.panicMsg = ""
		d.Tick(ctx)
		d.wg.Wait()
		assert.Len(t, h.seen(), 2)
	})

	t.Run("batch size caps one tick", func(t *testing.T) {
		q := NewMemoryQueue()
		h := &recordingHandler{}
		d := NewDispatcher(q, logger.NewNop(), nil, h.handle, DispatcherConfig{BatchSize: 2})
		fixedNext(d, time.Hour)
		d.now = func() time.Time { return now }

		require.NoError(t, q.Register(ctx, entryAt("wf-1", now.Add(-3*time.Second))))
		require.NoError(t, q.Register(ctx, entryAt("wf-2", now.Add(-2*time.Second))))
		require.NoError(t, q.Register(ctx, entryAt("wf-3", now.Add(-time.Second))))

		d.Tick(ctx)
		d.wg.Wait()
		assert.Len(t, h.seen(), 2)

		d.Tick(ctx)
		d.wg.Wait()
		assert.Len(t, h.seen(), 3)
	})
}

// TestDispatcherRun tests the polling loop's shutdown path.
func TestDispatcherRun(t *testing.T) {
	q := NewMemoryQueue()
	h := &recordingHandler{}
	d := NewDispatcher(q, logger.NewNop(), nil, h.handle, DispatcherConfig{PollInterval: 10 * time.Millisecond})
	fixedNext(d, time.Hour)

	require.NoError(t, q.Register(context.Background(), entryAt("wf-1", time.Now().Add(-time.Second))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(h.seen()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancellation")
	}
}
