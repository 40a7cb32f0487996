// Package handler provides the HTTP handlers for the automation API.
package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/middleware"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// errorEnvelope is the uniform error response body.
type errorEnvelope struct {
	Error *errors.AppError `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError maps any error onto the JSON error envelope. AppErrors keep
// their code and status; anything else is logged and hidden behind a 500.
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		log.WithContext(r.Context()).Error("unhandled error", "error", err, "path", r.URL.Path)
		appErr = errors.Internal("internal server error")
	}
	respondJSON(w, appErr.HTTPStatus, errorEnvelope{Error: appErr})
}

// decodeJSON decodes a request body, converting decode failures into a
// client error.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.BadRequest("invalid request body")
	}
	return nil
}

// principal returns the authenticated caller, failing closed when the auth
// middleware did not run.
func principal(r *http.Request) (*middleware.Principal, error) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		return nil, errors.Unauthorized("authentication required")
	}
	return p, nil
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	logger  *logger.Logger
	service string
	deps    map[string]Pinger
}

// NewHealthHandler creates the probe handler. deps maps a dependency name
// to its ping; readiness fails when any dependency does.
func NewHealthHandler(log *logger.Logger, service string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		logger:  log.WithComponent("health"),
		service: service,
		deps:    deps,
	}
}

// RegisterRoutes registers the probe routes.
func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/ready", h.Ready).Methods("GET")
}

// Health is the liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.service,
	})
}

// Ready is the readiness probe: every registered dependency must answer.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.deps))

	for name, dep := range h.deps {
		if err := dep.Ping(r.Context()); err != nil {
			h.logger.Warn("dependency not ready", "dependency", name, "error", err)
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	respondJSON(w, status, map[string]interface{}{
		"status":       readiness(status),
		"dependencies": deps,
	})
}

func readiness(status int) string {
	if status == http.StatusOK {
		return "ready"
	}
	return "unavailable"
}
