package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flowforge-ai/flowforge/internal/config"
	"github.com/flowforge-ai/flowforge/internal/dispatch"
	"github.com/flowforge-ai/flowforge/internal/health"
	"github.com/flowforge-ai/flowforge/internal/ingest"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/internal/provider"
	"github.com/flowforge-ai/flowforge/internal/providers/builtin"
	"github.com/flowforge-ai/flowforge/internal/store"
	"github.com/flowforge-ai/flowforge/internal/worklog"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("ENVIRONMENT") == "" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, perr := zerolog.ParseLevel(cfg.LogLevel); perr == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("db_path", cfg.DBPath).
		Msg("starting flowforge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Persistence
	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	// Projects file (per-project provider overrides)
	projects, err := config.LoadProjects(cfg.ProjectsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ProjectsFile).Msg("failed to load projects")
	}
	logger.Info().Int("projects", projects.Len()).Msg("projects loaded")

	m := metrics.New()

	// Provider registry: misconfigured default names fail here, not per-request.
	registry := builtin.Registry(logger)
	if err := registry.Validate(cfg.CapabilityDefaults()); err != nil {
		logger.Fatal().Err(err).Msg("invalid provider defaults")
	}
	resolver := provider.NewResolver(registry, provider.SnapshotFromConfig(cfg), logger).WithMetrics(m)

	// Workflow dispatch queue. The handler is the seam where downstream
	// workflow phases attach; today it acknowledges the continuation.
	queue := dispatch.NewQueue(dispatch.Config{
		Workers:   cfg.DispatchWorkers,
		QueueSize: cfg.DispatchQueueSize,
	}, func(ctx context.Context, ev dispatch.Event) error {
		logger.Info().
			Str("project", ev.ProjectID).
			Int64("ticket_id", ev.TicketID).
			Str("event_type", ev.Webhook.EventType).
			Msg("workflow continuation signal")
		return nil
	}, logger)
	queue.Start(ctx)

	// Time tracking
	tracker := worklog.NewTracker(st, resolver, projects, worklog.Config{
		PushImmediate: cfg.WorklogPushImmediate,
		Actor:         cfg.WorklogActor,
	}, m, logger)

	// Health checks
	checker := health.NewChecker(logger)
	checker.Register("db", func(ctx context.Context) health.Status {
		if err := st.DB().PingContext(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("dispatch", func(ctx context.Context) health.Status {
		return health.StatusOK
	})

	// Ingestion server
	pipeline := ingest.NewPipeline(st, queue, m, logger)
	adapters := map[string]ingest.Adapter{
		"jira":    ingest.NewJiraAdapter(cfg.JiraWebhookSecret, cfg.IsProduction(), logger),
		"generic": ingest.NewGenericAdapter(cfg.GenericWebhookToken, cfg.GenericJWTSecret, cfg.IsProduction(), logger),
	}
	server := ingest.NewServer(cfg.HTTPPort, pipeline, projects, adapters, checker, m, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("ingest server error")
		}
	}()

	// Periodic batch sync of worklogs that failed their immediate push.
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.RunPeriodicSync(ctx, cfg.WorklogSyncInterval)
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("ingest server shutdown error")
	}
	queue.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("flowforge stopped")
}
