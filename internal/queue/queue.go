// Package queue holds the recurring-job registrations behind scheduled
// workflow triggers and fires them when due.
package queue

import (
	"context"
	"fmt"
	"time"
)

// TriggerPayload is what a fired job hands to the workflow engine. The
// workflow id travels as a field of its own; consumers never parse
// identifiers out of queue ids.
type TriggerPayload struct {
	WorkflowID     string                 `json:"workflow_id"`
	OrganizationID string                 `json:"organization_id"`
	UserID         string                 `json:"user_id"`
	TriggeredBy    string                 `json:"triggered_by"`
	Event          map[string]interface{} `json:"event"`
}

// ScheduledEntry is one registered recurring job.
type ScheduledEntry struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	Expression   string         `json:"expression"`
	Timezone     string         `json:"timezone"`
	Payload      TriggerPayload `json:"payload"`
	NextFireAt   time.Time      `json:"next_fire_at"`
	RegisteredAt time.Time      `json:"registered_at"`
}

// JobQueue stores recurring-job registrations. Register is an upsert and
// Remove of an absent job succeeds, so callers can retry both blindly. Get
// returns nil without error when the job does not exist.
type JobQueue interface {
	Register(ctx context.Context, entry ScheduledEntry) error
	Remove(ctx context.Context, jobID string) error
	Get(ctx context.Context, jobID string) (*ScheduledEntry, error)
	List(ctx context.Context) ([]ScheduledEntry, error)

	// IDs returns one consistent snapshot of registered job ids. Sync
	// passes over it instead of issuing per-job lookups.
	IDs(ctx context.Context) (map[string]bool, error)

	// Due returns up to limit entries whose NextFireAt is at or before now,
	// soonest first.
	Due(ctx context.Context, now time.Time, limit int) ([]ScheduledEntry, error)

	// Reschedule moves a job's next fire time.
	Reschedule(ctx context.Context, jobID string, nextFireAt time.Time) error
}

func errJobNotRegistered(jobID string) error {
	return fmt.Errorf("job %s is not registered", jobID)
}
