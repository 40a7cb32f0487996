package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/events"
)

// Store is the slice of workflow persistence the runner needs. Get returns
// nil without error when no workflow exists.
type Store interface {
	Get(ctx context.Context, id string) (*Workflow, error)
}

// RunStore persists run records.
type RunStore interface {
	Create(ctx context.Context, run *Run) error
	Update(ctx context.Context, run *Run) error
}

// ActionExecutor dispatches one integration action. The integration
// registry satisfies it.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, orgID, integrationID, actionID string, inputs map[string]interface{}) (map[string]interface{}, error)
}

// TriggerRequest asks for one workflow execution.
type TriggerRequest struct {
	WorkflowID  string
	OrgID       string
	UserID      string
	TriggeredBy string
	Event       map[string]interface{}
}

// Runner executes workflows step by step. Steps run in order through the
// integration registry; the first failure stops the run. Every execution
// leaves a run record and a pair of lifecycle events.
type Runner struct {
	logger    *logger.Logger
	workflows Store
	runs      RunStore
	executor  ActionExecutor
	publisher events.Publisher
	now       func() time.Time
}

// NewRunner creates a runner.
func NewRunner(log *logger.Logger, workflows Store, runs RunStore, executor ActionExecutor, publisher events.Publisher) *Runner {
	return &Runner{
		logger:    log.WithComponent("runner"),
		workflows: workflows,
		runs:      runs,
		executor:  executor,
		publisher: publisher,
		now:       time.Now,
	}
}

// Run executes one workflow. The returned error covers infrastructure and
// authorization problems only; a run whose step failed comes back with
// RunStatusFailed and a nil error, since the execution itself completed.
func (r *Runner) Run(ctx context.Context, req TriggerRequest) (*Run, error) {
	wf, err := r.workflows.Get(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}
	if wf == nil {
		return nil, apperrors.NotFound("workflow")
	}
	if wf.OrganizationID != req.OrgID {
		return nil, apperrors.Forbidden("workflow does not belong to your organization")
	}
	if wf.Status != StatusActive {
		return nil, apperrors.Conflict(fmt.Sprintf("workflow %s is not active", wf.ID))
	}

	run := &Run{
		ID:             uuid.New().String(),
		WorkflowID:     wf.ID,
		OrganizationID: wf.OrganizationID,
		TriggeredBy:    req.TriggeredBy,
		Status:         RunStatusRunning,
		StartedAt:      r.now(),
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run for workflow %s: %w", wf.ID, err)
	}

	ctx = logger.ContextWithRunID(ctx, run.ID)
	log := r.logger.WithContext(ctx)
	log.Info("run started",
		"workflow_id", wf.ID,
		"triggered_by", req.TriggeredBy,
		"steps", len(wf.Steps),
	)
	r.publisher.PublishRunEvent(ctx, events.RunEvent{
		Type:           events.EventRunStarted,
		RunID:          run.ID,
		WorkflowID:     wf.ID,
		OrganizationID: wf.OrganizationID,
		TriggeredBy:    req.TriggeredBy,
	})

	r.executeSteps(ctx, wf, run)

	finished := r.now()
	run.FinishedAt = &finished
	if err := r.runs.Update(ctx, run); err != nil {
		log.Error("failed to persist run result", "run_id", run.ID, "error", err)
	}

	eventType := events.EventRunSucceeded
	if run.Status == RunStatusFailed {
		eventType = events.EventRunFailed
		log.Warn("run failed", "workflow_id", wf.ID, "error", run.Error)
	} else {
		log.Info("run succeeded",
			"workflow_id", wf.ID,
			"duration_ms", finished.Sub(run.StartedAt).Milliseconds(),
		)
	}
	r.publisher.PublishRunEvent(ctx, events.RunEvent{
		Type:           eventType,
		RunID:          run.ID,
		WorkflowID:     wf.ID,
		OrganizationID: wf.OrganizationID,
		TriggeredBy:    req.TriggeredBy,
		Error:          run.Error,
	})
	return run, nil
}

// executeSteps walks the steps in order, stopping at the first failure.
func (r *Runner) executeSteps(ctx context.Context, wf *Workflow, run *Run) {
	for _, step := range wf.Steps {
		result := StepResult{
			StepID:      step.ID,
			Integration: step.Integration,
			Action:      step.Action,
			StartedAt:   r.now(),
		}

		out, err := r.executor.ExecuteAction(ctx, wf.OrganizationID, step.Integration, step.Action, step.Inputs)
		result.FinishedAt = r.now()

		if err != nil {
			result.Status = RunStatusFailed
			result.Error = err.Error()
			run.StepResults = append(run.StepResults, result)
			run.Status = RunStatusFailed
			run.Error = fmt.Sprintf("step %s (%s.%s): %v", step.ID, step.Integration, step.Action, err)
			return
		}

		result.Status = RunStatusSucceeded
		result.Output = out
		run.StepResults = append(run.StepResults, result)
	}
	run.Status = RunStatusSucceeded
}
