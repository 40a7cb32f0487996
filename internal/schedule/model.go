package schedule

import "time"

// Schedule is the stored cron registration for one workflow. A workflow has
// at most one schedule; Upsert keys on workflow_id.
//
// NextRunAt is nil when the schedule is degraded: the expression parses but
// cannot currently be evaluated (for example its timezone is unknown on this
// host). Degraded schedules stay enabled and recover without user action
// once the cause is fixed.
type Schedule struct {
	ID             string     `db:"id" json:"id"`
	WorkflowID     string     `db:"workflow_id" json:"workflow_id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	Name           string     `db:"name" json:"name"`
	Expression     string     `db:"cron_expression" json:"cron_expression"`
	Timezone       string     `db:"timezone" json:"timezone"`
	Enabled        bool       `db:"enabled" json:"enabled"`
	NextRunAt      *time.Time `db:"next_run_at" json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `db:"last_run_at" json:"last_run_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// JobID returns the queue job id for a workflow's schedule. The id is a
// stable key only; the fired payload carries the workflow id as a field, so
// nothing ever parses this string.
func JobID(workflowID string) string {
	return "schedule:" + workflowID
}
