package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/schedule"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// ScheduleHandler handles cron schedule management.
type ScheduleHandler struct {
	logger  *logger.Logger
	service *schedule.Service
}

// NewScheduleHandler creates the schedule handler.
func NewScheduleHandler(log *logger.Logger, service *schedule.Service) *ScheduleHandler {
	return &ScheduleHandler{
		logger:  log.WithComponent("schedule-handler"),
		service: service,
	}
}

// RegisterRoutes registers schedule routes on the authenticated router.
func (h *ScheduleHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/workflows/{id}/schedule", h.Upsert).Methods("POST", "PUT")
	r.HandleFunc("/workflows/{id}/schedule", h.Get).Methods("GET")
	r.HandleFunc("/workflows/{id}/schedule", h.Delete).Methods("DELETE")
	r.HandleFunc("/workflows/{id}/schedule/enable", h.Enable).Methods("POST")
	r.HandleFunc("/workflows/{id}/schedule/disable", h.Disable).Methods("POST")
	r.HandleFunc("/schedules", h.List).Methods("GET")
	r.HandleFunc("/schedules/validate", h.Validate).Methods("POST")
	r.HandleFunc("/schedules/sync", h.Sync).Methods("POST")
}

type scheduleRequest struct {
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	Enabled        *bool  `json:"enabled"`
}

// Upsert creates or replaces a workflow's schedule.
func (h *ScheduleHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sched, err := h.service.Schedule(r.Context(), schedule.ScheduleRequest{
		WorkflowID: mux.Vars(r)["id"],
		OrgID:      p.OrganizationID,
		UserID:     p.UserID,
		Name:       req.Name,
		Expression: req.CronExpression,
		Timezone:   req.Timezone,
		Enabled:    enabled,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

// Get returns a workflow's schedule.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	sched, err := h.service.Get(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

// Delete removes a workflow's schedule entirely.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.service.Delete(r.Context(), p.OrganizationID, mux.Vars(r)["id"]); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Enable re-enables a schedule and re-registers its queue job.
func (h *ScheduleHandler) Enable(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	sched, err := h.service.Enable(r.Context(), p.OrganizationID, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

// Disable stops future fires. Disabling a workflow that has no schedule or
// no queue job is not an error.
func (h *ScheduleHandler) Disable(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.service.Disable(r.Context(), p.OrganizationID, mux.Vars(r)["id"]); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns the organization's schedules.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	schedules, err := h.service.List(r.Context(), p.OrganizationID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// Validate checks a cron expression without storing anything. A bad
// expression is a 200 with valid=false, never an HTTP error.
func (h *ScheduleHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CronExpression string `json:"cron_expression"`
		Timezone       string `json:"timezone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, schedule.Validate(req.CronExpression, req.Timezone))
}

// Sync reconciles every enabled schedule with the job queue. Admin only.
func (h *ScheduleHandler) Sync(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !p.HasRole("admin") {
		respondError(w, r, h.logger, errors.Forbidden("schedule sync requires the admin role"))
		return
	}

	report, err := h.service.SyncAllSchedules(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
