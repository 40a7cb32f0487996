package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/config"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/middleware"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

// NewRouter assembles the HTTP surface: probes and the OAuth callback on
// the public router, everything else under /api/v1 behind JWT auth and
// per-client rate limiting.
func NewRouter(
	log *logger.Logger,
	cfg *config.Config,
	health *HealthHandler,
	workflows *WorkflowHandler,
	schedules *ScheduleHandler,
	integrations *IntegrationHandler,
) http.Handler {
	httpLog := log.WithComponent("http")

	r := mux.NewRouter()
	health.RegisterRoutes(r)
	integrations.RegisterPublicRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(
		mux.MiddlewareFunc(middleware.JWTAuth(cfg.Auth.JWTSecret, httpLog)),
		mux.MiddlewareFunc(middleware.RateLimit(cfg.RateLimit, httpLog)),
	)
	workflows.RegisterRoutes(api)
	schedules.RegisterRoutes(api)
	integrations.RegisterRoutes(api)

	chain := middleware.Chain(
		middleware.RequestID(),
		middleware.Recovery(httpLog),
		middleware.Logger(httpLog),
		middleware.CORS(cfg.CORS),
	)
	return chain(r)
}
