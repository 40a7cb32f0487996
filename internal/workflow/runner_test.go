package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/events"
)

type fakeWorkflowStore struct {
	rows map[string]*Workflow
}

func (f *fakeWorkflowStore) Get(_ context.Context, id string) (*Workflow, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

type fakeRunStore struct {
	created []*Run
	updated []*Run
}

func (f *fakeRunStore) Create(_ context.Context, run *Run) error {
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunStore) Update(_ context.Context, run *Run) error {
	f.updated = append(f.updated, run)
	return nil
}

// fakeExecutor scripts outcomes per "integration.action" key and records the
// order calls arrive in.
type fakeExecutor struct {
	outputs map[string]map[string]interface{}
	errs    map[string]error
	calls   []string
}

func (f *fakeExecutor) ExecuteAction(_ context.Context, _, integrationID, actionID string, _ map[string]interface{}) (map[string]interface{}, error) {
	key := integrationID + "." + actionID
	f.calls = append(f.calls, key)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.outputs[key], nil
}

type capturingPublisher struct {
	events []events.RunEvent
}

func (c *capturingPublisher) PublishRunEvent(_ context.Context, e events.RunEvent) {
	c.events = append(c.events, e)
}

func (c *capturingPublisher) Close() {}

type runnerFixture struct {
	runner    *Runner
	workflows *fakeWorkflowStore
	runs      *fakeRunStore
	executor  *fakeExecutor
	published *capturingPublisher
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	f := &runnerFixture{
		workflows: &fakeWorkflowStore{rows: make(map[string]*Workflow)},
		runs:      &fakeRunStore{},
		executor: &fakeExecutor{
			outputs: make(map[string]map[string]interface{}),
			errs:    make(map[string]error),
		},
		published: &capturingPublisher{},
	}
	f.runner = NewRunner(logger.NewNop(), f.workflows, f.runs, f.executor, f.published)
	f.runner.now = func() time.Time {
		return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *runnerFixture) addWorkflow(id, orgID string, status Status, steps ...Step) {
	f.workflows.rows[id] = &Workflow{
		ID:             id,
		OrganizationID: orgID,
		Name:           "wf " + id,
		Status:         status,
		Steps:          steps,
	}
}

func (f *runnerFixture) eventTypes() []string {
	out := make([]string, 0, len(f.published.events))
	for _, e := range f.published.events {
		out = append(out, e.Type)
	}
	return out
}

// TestRun tests step execution order, run records and lifecycle events.
func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("executes steps in order and records outputs", func(t *testing.T) {
		f := newRunnerFixture(t)
		f.addWorkflow("wf-1", "org-1", StatusActive,
			Step{ID: "s1", Integration: "slack", Action: "send_message", Inputs: map[string]interface{}{"channel": "#ops"}},
			Step{ID: "s2", Integration: "jira", Action: "create_issue"},
		)
		f.executor.outputs["slack.send_message"] = map[string]interface{}{"ts": "1"}
		f.executor.outputs["jira.create_issue"] = map[string]interface{}{"key": "OPS-7"}

		run, err := f.runner.Run(ctx, TriggerRequest{
			WorkflowID:  "wf-1",
			OrgID:       "org-1",
			TriggeredBy: "schedule",
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"slack.send_message", "jira.create_issue"}, f.executor.calls)
		assert.Equal(t, RunStatusSucceeded, run.Status)
		assert.Empty(t, run.Error)
		require.NotNil(t, run.FinishedAt)

		require.Len(t, run.StepResults, 2)
		assert.Equal(t, "s1", run.StepResults[0].StepID)
		assert.Equal(t, RunStatusSucceeded, run.StepResults[0].Status)
		assert.Equal(t, "1", run.StepResults[0].Output["ts"])
		assert.Equal(t, "OPS-7", run.StepResults[1].Output["key"])

		require.Len(t, f.runs.created, 1)
		require.Len(t, f.runs.updated, 1)
		assert.Equal(t, run.ID, f.runs.created[0].ID)
		assert.Equal(t, "schedule", run.TriggeredBy)

		assert.Equal(t, []string{events.EventRunStarted, events.EventRunSucceeded}, f.eventTypes())
	})

	t.Run("first failure stops the run", func(t *testing.T) {
		f := newRunnerFixture(t)
		f.addWorkflow("wf-1", "org-1", StatusActive,
			Step{ID: "s1", Integration: "slack", Action: "send_message"},
			Step{ID: "s2", Integration: "jira", Action: "create_issue"},
			Step{ID: "s3", Integration: "mailer", Action: "send_email"},
		)
		f.executor.errs["jira.create_issue"] = apperrors.Upstream(502, "bad gateway")

		run, err := f.runner.Run(ctx, TriggerRequest{
			WorkflowID:  "wf-1",
			OrgID:       "org-1",
			TriggeredBy: "manual",
		})
		require.NoError(t, err, "a failed step is a completed execution, not an infrastructure error")

		assert.Equal(t, []string{"slack.send_message", "jira.create_issue"}, f.executor.calls,
			"steps after the failure must not run")
		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Contains(t, run.Error, "step s2")
		assert.Contains(t, run.Error, "jira.create_issue")

		require.Len(t, run.StepResults, 2)
		assert.Equal(t, RunStatusSucceeded, run.StepResults[0].Status)
		assert.Equal(t, RunStatusFailed, run.StepResults[1].Status)
		assert.NotEmpty(t, run.StepResults[1].Error)

		require.Len(t, f.runs.updated, 1)
		assert.Equal(t, RunStatusFailed, f.runs.updated[0].Status)

		types := f.eventTypes()
		require.Len(t, types, 2)
		assert.Equal(t, events.EventRunStarted, types[0])
		assert.Equal(t, events.EventRunFailed, types[1])
		assert.NotEmpty(t, f.published.events[1].Error)
	})

	t.Run("workflow with no steps succeeds", func(t *testing.T) {
		f := newRunnerFixture(t)
		f.addWorkflow("wf-1", "org-1", StatusActive)

		run, err := f.runner.Run(ctx, TriggerRequest{WorkflowID: "wf-1", OrgID: "org-1", TriggeredBy: "manual"})
		require.NoError(t, err)
		assert.Equal(t, RunStatusSucceeded, run.Status)
		assert.Empty(t, run.StepResults)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		f := newRunnerFixture(t)

		_, err := f.runner.Run(ctx, TriggerRequest{WorkflowID: "ghost", OrgID: "org-1"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
		assert.Empty(t, f.runs.created, "no run record for a workflow that does not exist")
	})

	t.Run("cross-organization access is forbidden", func(t *testing.T) {
		f := newRunnerFixture(t)
		f.addWorkflow("wf-1", "org-2", StatusActive)

		_, err := f.runner.Run(ctx, TriggerRequest{WorkflowID: "wf-1", OrgID: "org-1"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("inactive workflow does not run", func(t *testing.T) {
		for _, status := range []Status{StatusDraft, StatusArchived} {
			f := newRunnerFixture(t)
			f.addWorkflow("wf-1", "org-1", status, Step{ID: "s1", Integration: "slack", Action: "send_message"})

			_, err := f.runner.Run(ctx, TriggerRequest{WorkflowID: "wf-1", OrgID: "org-1"})
			require.Error(t, err, string(status))
			assert.True(t, apperrors.Is(err, apperrors.CodeConflict), string(status))
			assert.Empty(t, f.executor.calls)
			assert.Empty(t, f.runs.created)
		}
	})

	t.Run("step error strings survive into the run record", func(t *testing.T) {
		f := newRunnerFixture(t)
		f.addWorkflow("wf-1", "org-1", StatusActive,
			Step{ID: "notify", Integration: "slack", Action: "send_message"},
		)
		f.executor.errs["slack.send_message"] = fmt.Errorf("channel_not_found")

		run, err := f.runner.Run(ctx, TriggerRequest{WorkflowID: "wf-1", OrgID: "org-1"})
		require.NoError(t, err)
		assert.Contains(t, run.StepResults[0].Error, "channel_not_found")
		assert.Contains(t, run.Error, "channel_not_found")
	})
}
