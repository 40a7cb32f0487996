// Package workflow defines automation workflows and executes their runs.
package workflow

import "time"

// Status is the lifecycle state of a workflow definition.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Step is one action call in a workflow. Steps run in order; the first
// failure stops the run.
type Step struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name,omitempty"`
	Integration string                 `json:"integration"`
	Action      string                 `json:"action"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
}

// Workflow is a stored automation definition. Steps live in a JSONB column;
// the repository marshals them.
type Workflow struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description,omitempty"`
	Status         Status    `db:"status" json:"status"`
	CreatedBy      string    `db:"created_by" json:"created_by"`
	Steps          []Step    `db:"-" json:"steps"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// RunStatus is the lifecycle state of one execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// StepResult records one step's outcome inside a run.
type StepResult struct {
	StepID      string                 `json:"step_id"`
	Integration string                 `json:"integration"`
	Action      string                 `json:"action"`
	Status      RunStatus              `json:"status"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
}

// Run is one execution of a workflow.
type Run struct {
	ID             string       `db:"id" json:"id"`
	WorkflowID     string       `db:"workflow_id" json:"workflow_id"`
	OrganizationID string       `db:"organization_id" json:"organization_id"`
	TriggeredBy    string       `db:"triggered_by" json:"triggered_by"`
	Status         RunStatus    `db:"status" json:"status"`
	StepResults    []StepResult `db:"-" json:"step_results,omitempty"`
	Error          string       `db:"error" json:"error,omitempty"`
	StartedAt      time.Time    `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
