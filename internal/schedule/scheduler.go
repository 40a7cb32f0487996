package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/queue"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/workflow"
)

// triggeredBySchedule marks runs and payloads that originate here rather
// than from a manual or API trigger.
const triggeredBySchedule = "schedule"

// ScheduleStore persists schedules. Gets return nil without error when no
// row exists.
type ScheduleStore interface {
	Upsert(ctx context.Context, s *Schedule) error
	GetByWorkflow(ctx context.Context, workflowID string) (*Schedule, error)
	ListByOrganization(ctx context.Context, orgID string) ([]Schedule, error)
	ListEnabled(ctx context.Context) ([]Schedule, error)

	// SetEnabled flips the enabled flag; disabling also clears next_run_at
	// in the same write.
	SetEnabled(ctx context.Context, workflowID string, enabled bool) error
	UpdateRunTimes(ctx context.Context, workflowID string, nextRunAt *time.Time, lastRunAt *time.Time) error
	Delete(ctx context.Context, workflowID string) error
}

// WorkflowStore is the slice of workflow persistence the scheduler needs.
type WorkflowStore interface {
	Get(ctx context.Context, id string) (*workflow.Workflow, error)
}

// Service owns schedule registration and the queue bookkeeping behind it.
type Service struct {
	logger    *logger.Logger
	schedules ScheduleStore
	workflows WorkflowStore
	queue     queue.JobQueue
	now       func() time.Time
}

// NewService creates a scheduler service.
func NewService(log *logger.Logger, schedules ScheduleStore, workflows WorkflowStore, q queue.JobQueue) *Service {
	return &Service{
		logger:    log.WithComponent("scheduler"),
		schedules: schedules,
		workflows: workflows,
		queue:     q,
		now:       time.Now,
	}
}

// ScheduleRequest carries one schedule upsert. OrganizationID and UserID
// come from the authenticated caller, never from the request body.
type ScheduleRequest struct {
	WorkflowID string
	OrgID      string
	UserID     string
	Name       string
	Expression string
	Timezone   string
	Enabled    bool
}

// Schedule validates and stores a cron registration for a workflow, then
// registers or removes its queue job to match the enabled flag.
//
// An expression that does not parse is rejected. An expression that parses
// but cannot currently be evaluated (unknown timezone) is stored degraded:
// next_run_at stays null and no queue job is registered, but the row keeps
// the enabled flag the caller asked for.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*Schedule, error) {
	if vr := Validate(req.Expression, req.Timezone); !vr.Valid {
		return nil, apperrors.Validation(fmt.Sprintf("invalid cron expression: %s", vr.Error)).
			WithDetail("cron_expression", req.Expression)
	}

	wf, err := s.authorizeWorkflow(ctx, req.OrgID, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sched := &Schedule{
		ID:             uuid.New().String(),
		WorkflowID:     wf.ID,
		OrganizationID: wf.OrganizationID,
		CreatedBy:      req.UserID,
		Name:           req.Name,
		Expression:     req.Expression,
		Timezone:       req.Timezone,
		Enabled:        req.Enabled,
		NextRunAt:      NextRunTime(req.Expression, req.Timezone, now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.schedules.Upsert(ctx, sched); err != nil {
		return nil, fmt.Errorf("failed to store schedule for workflow %s: %w", wf.ID, err)
	}

	log := s.logger.WithContext(ctx)
	if !req.Enabled {
		if err := s.queue.Remove(ctx, JobID(wf.ID)); err != nil {
			return nil, fmt.Errorf("failed to remove queue job for workflow %s: %w", wf.ID, err)
		}
		log.Info("schedule stored disabled", "workflow_id", wf.ID, "cron_expression", req.Expression)
		return sched, nil
	}

	if sched.NextRunAt == nil {
		log.Warn("schedule stored degraded, no queue job registered",
			"workflow_id", wf.ID,
			"cron_expression", req.Expression,
			"timezone", req.Timezone,
		)
		return sched, nil
	}

	if err := s.registerJob(ctx, sched); err != nil {
		return nil, err
	}

	log.Info("schedule registered",
		"workflow_id", wf.ID,
		"cron_expression", req.Expression,
		"next_run_at", sched.NextRunAt,
	)
	return sched, nil
}

// Unschedule removes the queue job and disables the stored schedule,
// clearing its next run. It is idempotent: a workflow with no queue job or
// no schedule row ends in the same state without error.
func (s *Service) Unschedule(ctx context.Context, orgID, workflowID string) error {
	if _, err := s.authorizeWorkflow(ctx, orgID, workflowID); err != nil {
		return err
	}

	if err := s.queue.Remove(ctx, JobID(workflowID)); err != nil {
		return fmt.Errorf("failed to remove queue job for workflow %s: %w", workflowID, err)
	}
	if err := s.schedules.SetEnabled(ctx, workflowID, false); err != nil {
		return fmt.Errorf("failed to disable schedule for workflow %s: %w", workflowID, err)
	}

	s.logger.WithContext(ctx).Info("schedule removed", "workflow_id", workflowID)
	return nil
}

// Disable is Unschedule under the name the toggle endpoint uses.
func (s *Service) Disable(ctx context.Context, orgID, workflowID string) error {
	return s.Unschedule(ctx, orgID, workflowID)
}

// Enable re-registers a stored schedule, recomputing its next run.
func (s *Service) Enable(ctx context.Context, orgID, workflowID string) (*Schedule, error) {
	if _, err := s.authorizeWorkflow(ctx, orgID, workflowID); err != nil {
		return nil, err
	}

	sched, err := s.schedules.GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule for workflow %s: %w", workflowID, err)
	}
	if sched == nil {
		return nil, apperrors.NotFound("schedule")
	}

	now := s.now()
	sched.Enabled = true
	sched.NextRunAt = NextRunTime(sched.Expression, sched.Timezone, now)
	sched.UpdatedAt = now

	if err := s.schedules.Upsert(ctx, sched); err != nil {
		return nil, fmt.Errorf("failed to store schedule for workflow %s: %w", workflowID, err)
	}

	if sched.NextRunAt == nil {
		s.logger.WithContext(ctx).Warn("schedule enabled degraded, no queue job registered",
			"workflow_id", workflowID,
			"timezone", sched.Timezone,
		)
		return sched, nil
	}

	if err := s.registerJob(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// Delete removes the schedule row and its queue job entirely.
func (s *Service) Delete(ctx context.Context, orgID, workflowID string) error {
	if _, err := s.authorizeWorkflow(ctx, orgID, workflowID); err != nil {
		return err
	}

	if err := s.queue.Remove(ctx, JobID(workflowID)); err != nil {
		return fmt.Errorf("failed to remove queue job for workflow %s: %w", workflowID, err)
	}
	if err := s.schedules.Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete schedule for workflow %s: %w", workflowID, err)
	}
	return nil
}

// Get returns one workflow's schedule.
func (s *Service) Get(ctx context.Context, orgID, workflowID string) (*Schedule, error) {
	if _, err := s.authorizeWorkflow(ctx, orgID, workflowID); err != nil {
		return nil, err
	}

	sched, err := s.schedules.GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule for workflow %s: %w", workflowID, err)
	}
	if sched == nil {
		return nil, apperrors.NotFound("schedule")
	}
	return sched, nil
}

// List returns all schedules in an organization.
func (s *Service) List(ctx context.Context, orgID string) ([]Schedule, error) {
	scheds, err := s.schedules.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return scheds, nil
}

// UpdateNextRun rolls a schedule's bookkeeping after a fire: last_run_at is
// stamped and next_run_at is recomputed from now. When the expression no
// longer evaluates, next_run_at goes null rather than keeping a stale
// future time.
func (s *Service) UpdateNextRun(ctx context.Context, workflowID string) error {
	sched, err := s.schedules.GetByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load schedule for workflow %s: %w", workflowID, err)
	}
	if sched == nil {
		return nil
	}

	now := s.now()
	next := NextRunTime(sched.Expression, sched.Timezone, now)
	if err := s.schedules.UpdateRunTimes(ctx, workflowID, next, &now); err != nil {
		return fmt.Errorf("failed to update run times for workflow %s: %w", workflowID, err)
	}
	return nil
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	Total         int `json:"total"`
	Registered    int `json:"registered"`
	AlreadyQueued int `json:"already_queued"`
	Failed        int `json:"failed"`
}

// SyncAllSchedules reconciles enabled schedules against the queue at boot:
// whatever is enabled in the database but missing from the queue gets
// registered. The queued-id set is read once up front so every schedule is
// judged against the same snapshot. One schedule failing to register does
// not stop the pass, and re-running it is harmless.
func (s *Service) SyncAllSchedules(ctx context.Context) (*SyncReport, error) {
	enabled, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled schedules: %w", err)
	}

	queued, err := s.queue.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot queue ids: %w", err)
	}

	report := &SyncReport{Total: len(enabled)}
	for i := range enabled {
		sched := &enabled[i]
		if queued[JobID(sched.WorkflowID)] {
			report.AlreadyQueued++
			continue
		}

		if sched.NextRunAt == nil {
			sched.NextRunAt = NextRunTime(sched.Expression, sched.Timezone, s.now())
		}
		if sched.NextRunAt == nil {
			report.Failed++
			s.logger.Warn("sync skipping schedule that does not evaluate",
				"workflow_id", sched.WorkflowID,
				"cron_expression", sched.Expression,
				"timezone", sched.Timezone,
			)
			continue
		}

		if err := s.registerJob(ctx, sched); err != nil {
			report.Failed++
			s.logger.Error("sync failed to register schedule",
				"workflow_id", sched.WorkflowID,
				"error", err,
			)
			continue
		}
		report.Registered++
	}

	s.logger.Info("schedule sync complete",
		"total", report.Total,
		"registered", report.Registered,
		"already_queued", report.AlreadyQueued,
		"failed", report.Failed,
	)
	return report, nil
}

// registerJob upserts the queue entry for an enabled schedule.
func (s *Service) registerJob(ctx context.Context, sched *Schedule) error {
	if sched.NextRunAt == nil {
		return fmt.Errorf("schedule for workflow %s has no computable next run", sched.WorkflowID)
	}

	entry := queue.ScheduledEntry{
		ID:         JobID(sched.WorkflowID),
		WorkflowID: sched.WorkflowID,
		Expression: sched.Expression,
		Timezone:   sched.Timezone,
		Payload: queue.TriggerPayload{
			WorkflowID:     sched.WorkflowID,
			OrganizationID: sched.OrganizationID,
			UserID:         sched.CreatedBy,
			TriggeredBy:    triggeredBySchedule,
			Event: map[string]interface{}{
				"type":            "schedule.fired",
				"cron_expression": sched.Expression,
				"timezone":        sched.Timezone,
			},
		},
		NextFireAt:   *sched.NextRunAt,
		RegisteredAt: s.now(),
	}

	if err := s.queue.Register(ctx, entry); err != nil {
		return fmt.Errorf("failed to register queue job for workflow %s: %w", sched.WorkflowID, err)
	}
	return nil
}

// authorizeWorkflow loads the workflow and checks it belongs to the acting
// organization. A workflow in another organization is reported as forbidden,
// not as missing, so callers can tell the cases apart.
func (s *Service) authorizeWorkflow(ctx context.Context, orgID, workflowID string) (*workflow.Workflow, error) {
	wf, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}
	if wf == nil {
		return nil, apperrors.NotFound("workflow")
	}
	if wf.OrganizationID != orgID {
		return nil, apperrors.Forbidden("workflow does not belong to your organization")
	}
	return wf, nil
}
