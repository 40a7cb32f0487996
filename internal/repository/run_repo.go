package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/workflow"
)

const runColumns = `id, workflow_id, organization_id, triggered_by, status, step_results, error, started_at, finished_at`

type runRow struct {
	workflow.Run
	StepResultsRaw []byte `db:"step_results"`
}

func (r runRow) toModel() (*workflow.Run, error) {
	run := r.Run
	if len(r.StepResultsRaw) > 0 {
		if err := json.Unmarshal(r.StepResultsRaw, &run.StepResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step results for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

func marshalStepResults(results []workflow.StepResult) ([]byte, error) {
	if results == nil {
		results = []workflow.StepResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step results: %w", err)
	}
	return data, nil
}

// RunRepository persists workflow run records.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run in its initial state.
func (r *RunRepository) Create(ctx context.Context, run *workflow.Run) error {
	results, err := marshalStepResults(run.StepResults)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.WorkflowID, run.OrganizationID, run.TriggeredBy,
		run.Status, results, run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Update writes a run's outcome.
func (r *RunRepository) Update(ctx context.Context, run *workflow.Run) error {
	results, err := marshalStepResults(run.StepResults)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_runs
		SET status = $2, step_results = $3, error = $4, finished_at = $5
		WHERE id = $1`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Status, results, run.Error, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// Get returns a run by id, or nil when it does not exist.
func (r *RunRepository) Get(ctx context.Context, id string) (*workflow.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return row.toModel()
}

// ListByWorkflow returns a workflow's runs, newest first.
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]workflow.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []runRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+runColumns+` FROM workflow_runs
		 WHERE workflow_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runsFromRows(rows)
}

// ListByOrganization returns an organization's runs, newest first.
func (r *RunRepository) ListByOrganization(ctx context.Context, orgID string, limit int) ([]workflow.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []runRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+runColumns+` FROM workflow_runs
		 WHERE organization_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runsFromRows(rows)
}

func runsFromRows(rows []runRow) ([]workflow.Run, error) {
	out := make([]workflow.Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, nil
}
