package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/workflow"
)

const workflowColumns = `id, organization_id, name, description, status, created_by, steps, created_at, updated_at`

// workflowRow carries the raw steps column alongside the model fields.
type workflowRow struct {
	workflow.Workflow
	StepsRaw []byte `db:"steps"`
}

func (r workflowRow) toModel() (*workflow.Workflow, error) {
	wf := r.Workflow
	if len(r.StepsRaw) > 0 {
		if err := json.Unmarshal(r.StepsRaw, &wf.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps for workflow %s: %w", wf.ID, err)
		}
	}
	return &wf, nil
}

func marshalSteps(steps []workflow.Step) ([]byte, error) {
	if steps == nil {
		steps = []workflow.Step{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps: %w", err)
	}
	return data, nil
}

// WorkflowRepository persists workflow definitions.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository creates a workflow repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a workflow.
func (r *WorkflowRepository) Create(ctx context.Context, wf *workflow.Workflow) error {
	steps, err := marshalSteps(wf.Steps)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		wf.ID, wf.OrganizationID, wf.Name, wf.Description, wf.Status,
		wf.CreatedBy, steps, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// Get returns a workflow by id, or nil when it does not exist.
func (r *WorkflowRepository) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	var row workflowRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return row.toModel()
}

// ListByOrganization returns an organization's workflows, newest first.
func (r *WorkflowRepository) ListByOrganization(ctx context.Context, orgID string, limit int) ([]workflow.Workflow, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []workflowRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE organization_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	out := make([]workflow.Workflow, 0, len(rows))
	for _, row := range rows {
		wf, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, *wf)
	}
	return out, nil
}

// Update rewrites the mutable fields of a workflow.
func (r *WorkflowRepository) Update(ctx context.Context, wf *workflow.Workflow) error {
	steps, err := marshalSteps(wf.Steps)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows
		SET name = $2, description = $3, status = $4, steps = $5, updated_at = $6
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		wf.ID, wf.Name, wf.Description, wf.Status, steps, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow %s does not exist", wf.ID)
	}
	return nil
}

// SetStatus changes just the lifecycle status.
func (r *WorkflowRepository) SetStatus(ctx context.Context, id string, status workflow.Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set workflow status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow %s does not exist", id)
	}
	return nil
}

// Delete removes a workflow. Schedules and runs cascade in the schema.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}
