package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/config"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/events"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/handler"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration/providers"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/oauth"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/queue"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/ratelimit"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/repository"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/schedule"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/workflow"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New(nil).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	log.SetDefault()

	log.Info("starting service",
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
		"port", cfg.Service.HTTPPort,
	)

	// Root context for background loops; cancelled on shutdown.
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize PostgreSQL and apply migrations
	pg, err := repository.NewPostgres(cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("failed to initialize database")
		os.Exit(1)
	}
	defer pg.Close()

	if err := repository.Migrate(cfg.Database.URL()); err != nil {
		log.WithError(err).Error("failed to apply database migrations")
		os.Exit(1)
	}

	log.Info("database connection established",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database,
	)

	// Initialize the Redis-backed job queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(rootCtx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		log.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}

	jobQueue := queue.NewRedisQueue(redisClient, log, "")

	// Run event publisher (no-op unless Kafka is configured)
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled() {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.WithError(err).Error("failed to initialize kafka publisher")
			os.Exit(1)
		}
		publisher = kafkaPublisher
		log.Info("kafka run events enabled", "topic", cfg.Kafka.Topic)
	}
	defer publisher.Close()

	// Repositories
	workflowRepo := repository.NewWorkflowRepository(pg.DB())
	runRepo := repository.NewRunRepository(pg.DB())
	scheduleRepo := repository.NewScheduleRepository(pg.DB())
	credentialRepo := repository.NewCredentialRepository(pg.DB())

	// Outbound rate limiter with background sweep
	limiter := ratelimit.New()
	limiter.StartSweeping(rootCtx, 5*time.Minute)

	// Integration registry from the provider catalog
	catalog, err := integration.LoadCatalog(cfg.Integrations.CatalogPath)
	if err != nil {
		log.WithError(err).Error("failed to load integration catalog")
		os.Exit(1)
	}

	oauthHandler := oauth.NewHandler(log, cfg.OAuth.RedirectBaseURL+handler.OAuthCallbackPath)

	registry := integration.NewRegistry(log, limiter, credentialRepo)
	registry.SetTokenRefresher(oauthHandler)
	if err := registerIntegrations(log, registry, oauthHandler, catalog); err != nil {
		log.WithError(err).Error("failed to register integrations")
		os.Exit(1)
	}

	// Core services
	scheduler := schedule.NewService(log, scheduleRepo, workflowRepo, jobQueue)
	runner := workflow.NewRunner(log, workflowRepo, runRepo, registry, publisher)

	// Re-register queue jobs for schedules that survived a restart.
	syncCtx, syncCancel := context.WithTimeout(rootCtx, time.Minute)
	report, err := scheduler.SyncAllSchedules(syncCtx)
	syncCancel()
	if err != nil {
		log.WithError(err).Error("failed to sync schedules at boot")
		os.Exit(1)
	}
	log.Info("schedules synced",
		"total", report.Total,
		"registered", report.Registered,
		"already_queued", report.AlreadyQueued,
		"failed", report.Failed,
	)

	// Dispatcher fires due schedules through the workflow runner.
	dispatcher := queue.NewDispatcher(
		jobQueue,
		log,
		schedule.NextAfter,
		scheduleFireHandler(log, scheduler, runner),
		queue.DefaultDispatcherConfig(),
	)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(rootCtx)
		close(dispatcherDone)
	}()

	// HTTP surface
	healthHandler := handler.NewHealthHandler(log, cfg.Service.Name, map[string]handler.Pinger{
		"postgres": pg,
		"queue":    jobQueue,
	})
	workflowHandler := handler.NewWorkflowHandler(log, workflowRepo, runRepo, runner)
	scheduleHandler := handler.NewScheduleHandler(log, scheduler)
	integrationHandler := handler.NewIntegrationHandler(log, registry, oauthHandler)

	router := handler.NewRouter(log, cfg, healthHandler, workflowHandler, scheduleHandler, integrationHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
		IdleTimeout:  cfg.Service.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// Stop the dispatcher and sweeper, then drain the HTTP server.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server forced to shutdown")
	}

	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		log.Warn("dispatcher did not drain before the shutdown deadline")
	}

	log.Info("service stopped")
}

// registerIntegrations wires every built-in provider into the registry with
// its catalog entry, and hands client settings for OAuth2 providers to the
// token handler. A provider missing from the catalog still registers so it
// shows up as unconfigured rather than vanishing.
func registerIntegrations(log *logger.Logger, registry *integration.Registry, oauthHandler *oauth.Handler, catalog *integration.Catalog) error {
	for _, p := range providers.All() {
		cfg, ok := catalog.Provider(p.ID)
		if !ok {
			cfg = integration.ProviderConfig{ID: p.ID}
		}

		if err := registry.Register(p, cfg); err != nil {
			return err
		}

		desc, err := registry.Descriptor(p.ID)
		if err != nil {
			return err
		}
		if desc.AuthType == integration.AuthOAuth2 {
			oauthHandler.RegisterProvider(p.ID, oauth.ClientConfig{
				ClientID:     cfg.Credentials.ClientID,
				ClientSecret: cfg.Credentials.ClientSecret,
				AuthURL:      desc.AuthURL,
				TokenURL:     desc.TokenURL,
				Scopes:       desc.Scopes,
				Offline:      desc.OfflineAccess,
			})
		}

		log.Info("integration registered",
			"integration_id", p.ID,
			"auth_type", string(desc.AuthType),
		)
	}
	return nil
}

// scheduleFireHandler builds the dispatcher callback for fired schedules:
// stamp the schedule row, then run the workflow.
func scheduleFireHandler(log *logger.Logger, scheduler *schedule.Service, runner *workflow.Runner) queue.HandleFunc {
	fireLog := log.WithComponent("schedule_fire")

	return func(ctx context.Context, payload queue.TriggerPayload) error {
		if err := scheduler.UpdateNextRun(ctx, payload.WorkflowID); err != nil {
			// The fire proceeds anyway; the row catches up on the next
			// update or sync.
			fireLog.WithError(err).Warn("failed to stamp schedule run times",
				"workflow_id", payload.WorkflowID,
			)
		}

		_, err := runner.Run(ctx, workflow.TriggerRequest{
			WorkflowID:  payload.WorkflowID,
			OrgID:       payload.OrganizationID,
			UserID:      payload.UserID,
			TriggeredBy: payload.TriggeredBy,
			Event:       payload.Event,
		})
		return err
	}
}
