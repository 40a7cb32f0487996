package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/repository"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/workflow"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// WorkflowHandler handles workflow CRUD and manual runs.
type WorkflowHandler struct {
	logger    *logger.Logger
	workflows *repository.WorkflowRepository
	runs      *repository.RunRepository
	runner    *workflow.Runner
}

// NewWorkflowHandler creates the workflow handler.
func NewWorkflowHandler(log *logger.Logger, workflows *repository.WorkflowRepository, runs *repository.RunRepository, runner *workflow.Runner) *WorkflowHandler {
	return &WorkflowHandler{
		logger:    log.WithComponent("workflow-handler"),
		workflows: workflows,
		runs:      runs,
		runner:    runner,
	}
}

// RegisterRoutes registers workflow routes on the authenticated router.
func (h *WorkflowHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/workflows", h.Create).Methods("POST")
	r.HandleFunc("/workflows", h.List).Methods("GET")
	r.HandleFunc("/workflows/{id}", h.Get).Methods("GET")
	r.HandleFunc("/workflows/{id}", h.Update).Methods("PUT")
	r.HandleFunc("/workflows/{id}", h.Delete).Methods("DELETE")
	r.HandleFunc("/workflows/{id}/activate", h.Activate).Methods("POST")
	r.HandleFunc("/workflows/{id}/archive", h.Archive).Methods("POST")
	r.HandleFunc("/workflows/{id}/run", h.Run).Methods("POST")
	r.HandleFunc("/workflows/{id}/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/runs", h.ListOrgRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
}

type workflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Steps       []workflow.Step `json:"steps"`
}

func (req *workflowRequest) validate() error {
	if req.Name == "" {
		return errors.Validation("name is required")
	}
	for i, step := range req.Steps {
		if step.Integration == "" || step.Action == "" {
			return errors.Validation("steps must name an integration and an action").
				WithDetail("step_index", i)
		}
	}
	return nil
}

// Create stores a new workflow in draft state.
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req workflowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	now := time.Now().UTC()
	wf := &workflow.Workflow{
		ID:             uuid.New().String(),
		OrganizationID: p.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		Status:         workflow.StatusDraft,
		CreatedBy:      p.UserID,
		Steps:          req.Steps,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if wf.Steps == nil {
		wf.Steps = []workflow.Step{}
	}

	if err := h.workflows.Create(r.Context(), wf); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, wf)
}

// List returns the organization's workflows.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	list, err := h.workflows.ListByOrganization(r.Context(), p.OrganizationID, queryLimit(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": list,
		"count":     len(list),
	})
}

// Get returns one workflow.
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	wf, err := h.authorize(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

// Update replaces a workflow's name, description and steps.
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req workflowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	wf, err := h.authorize(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	wf.Name = req.Name
	wf.Description = req.Description
	wf.Steps = req.Steps
	if wf.Steps == nil {
		wf.Steps = []workflow.Step{}
	}
	wf.UpdatedAt = time.Now().UTC()

	if err := h.workflows.Update(r.Context(), wf); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

// Delete removes a workflow.
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if _, err := h.authorize(r.Context(), p.OrganizationID, mux.Vars(r)["id"]); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.workflows.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate marks a workflow runnable.
func (h *WorkflowHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, workflow.StatusActive)
}

// Archive retires a workflow. Archived workflows refuse new runs.
func (h *WorkflowHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, workflow.StatusArchived)
}

func (h *WorkflowHandler) setStatus(w http.ResponseWriter, r *http.Request, status workflow.Status) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	wf, err := h.authorize(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.workflows.SetStatus(r.Context(), wf.ID, status); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	wf.Status = status
	respondJSON(w, http.StatusOK, wf)
}

// Run triggers a workflow manually and waits for it to finish. The response
// carries the completed run; a failed step shows up as a failed run, not as
// an HTTP error.
func (h *WorkflowHandler) Run(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req struct {
		Event map[string]interface{} `json:"event"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, h.logger, err)
			return
		}
	}

	run, err := h.runner.Run(r.Context(), workflow.TriggerRequest{
		WorkflowID:  mux.Vars(r)["id"],
		OrgID:       p.OrganizationID,
		UserID:      p.UserID,
		TriggeredBy: "manual",
		Event:       req.Event,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// ListRuns returns a workflow's run history, newest first.
func (h *WorkflowHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	wf, err := h.authorize(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	runs, err := h.runs.ListByWorkflow(r.Context(), wf.ID, queryLimit(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ListOrgRuns returns the organization's recent runs across all workflows.
func (h *WorkflowHandler) ListOrgRuns(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	runs, err := h.runs.ListByOrganization(r.Context(), p.OrganizationID, queryLimit(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one run.
func (h *WorkflowHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	run, err := h.runs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if run == nil {
		respondError(w, r, h.logger, errors.NotFound("run"))
		return
	}
	if run.OrganizationID != p.OrganizationID {
		respondError(w, r, h.logger, errors.Forbidden("run does not belong to your organization"))
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// authorize loads a workflow and confirms it belongs to the caller's
// organization.
func (h *WorkflowHandler) authorize(ctx context.Context, orgID, workflowID string) (*workflow.Workflow, error) {
	wf, err := h.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, errors.NotFound("workflow")
	}
	if wf.OrganizationID != orgID {
		return nil, errors.Forbidden("workflow does not belong to your organization")
	}
	return wf, nil
}

// queryLimit parses the limit query parameter, 0 for the store default.
func queryLimit(r *http.Request) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			return limit
		}
	}
	return 0
}
