package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/schedule"
)

const scheduleColumns = `id, workflow_id, organization_id, created_by, name, cron_expression, timezone, enabled, next_run_at, last_run_at, created_at, updated_at`

// ScheduleRepository persists cron registrations, one row per workflow.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Upsert inserts or replaces the schedule for a workflow. The row keeps its
// original id, created_at, and last_run_at when replaced.
func (r *ScheduleRepository) Upsert(ctx context.Context, s *schedule.Schedule) error {
	query := `
		INSERT INTO workflow_schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (workflow_id) DO UPDATE SET
			created_by      = EXCLUDED.created_by,
			name            = EXCLUDED.name,
			cron_expression = EXCLUDED.cron_expression,
			timezone        = EXCLUDED.timezone,
			enabled         = EXCLUDED.enabled,
			next_run_at     = EXCLUDED.next_run_at,
			updated_at      = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.WorkflowID, s.OrganizationID, s.CreatedBy, s.Name, s.Expression,
		s.Timezone, s.Enabled, s.NextRunAt, s.LastRunAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

// GetByWorkflow returns a workflow's schedule, or nil when none exists.
func (r *ScheduleRepository) GetByWorkflow(ctx context.Context, workflowID string) (*schedule.Schedule, error) {
	var s schedule.Schedule
	err := r.db.GetContext(ctx, &s,
		`SELECT `+scheduleColumns+` FROM workflow_schedules WHERE workflow_id = $1`, workflowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &s, nil
}

// ListByOrganization returns an organization's schedules, newest first.
func (r *ScheduleRepository) ListByOrganization(ctx context.Context, orgID string) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+scheduleColumns+` FROM workflow_schedules
		 WHERE organization_id = $1
		 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return out, nil
}

// ListEnabled returns every enabled schedule across organizations. The boot
// sync walks this list.
func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+scheduleColumns+` FROM workflow_schedules WHERE enabled = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled schedules: %w", err)
	}
	return out, nil
}

// SetEnabled flips the enabled flag. Disabling also nulls next_run_at in the
// same write, so a disabled row never advertises a fire that will not happen.
// A missing row is a no-op, which keeps unschedule idempotent.
func (r *ScheduleRepository) SetEnabled(ctx context.Context, workflowID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_schedules
		 SET enabled = $2,
		     next_run_at = CASE WHEN $2 THEN next_run_at ELSE NULL END,
		     updated_at = $3
		 WHERE workflow_id = $1`,
		workflowID, enabled, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set schedule enabled: %w", err)
	}
	return nil
}

// UpdateRunTimes writes the post-fire bookkeeping. nextRunAt may be nil,
// which stores NULL; a nil lastRunAt leaves the existing stamp alone.
func (r *ScheduleRepository) UpdateRunTimes(ctx context.Context, workflowID string, nextRunAt *time.Time, lastRunAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_schedules
		 SET next_run_at = $2, last_run_at = COALESCE($3, last_run_at), updated_at = $4
		 WHERE workflow_id = $1`,
		workflowID, nextRunAt, lastRunAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule run times: %w", err)
	}
	return nil
}

// Delete removes a workflow's schedule. A missing row is a no-op.
func (r *ScheduleRepository) Delete(ctx context.Context, workflowID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_schedules WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}
