package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadintent_backend/internal/archive"
	"leadintent_backend/internal/events"
	apphttp "leadintent_backend/internal/http"
	"leadintent_backend/internal/http/router"
	"leadintent_backend/internal/pipeline"
	"leadintent_backend/internal/rules"
	"leadintent_backend/internal/scheduler"
	"leadintent_backend/internal/tracking"
	trackingservice "leadintent_backend/internal/tracking/service"
	"leadintent_backend/platform/config"
	"leadintent_backend/platform/db"
	"leadintent_backend/platform/logger"
	"leadintent_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	archiver, err := archive.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize payload archive", "error", err)
		panic("failed to initialize payload archive: " + err.Error())
	}
	if archiver == nil {
		log.Warn("MINIO_ENDPOINT not configured; event payload archive disabled")
	}

	// ========================================================================
	// Domain Modules
	// ========================================================================

	rulesModule := rules.NewModule(pool, val, log)
	if err := rulesModule.Service().SeedDefaults(ctx); err != nil {
		log.Error("failed to seed scoring rules", "error", err)
		panic("failed to seed scoring rules: " + err.Error())
	}

	// nil-interface guard: a typed nil *Archiver must not reach the service.
	var payloadArchiver trackingservice.PayloadArchiver
	if archiver != nil {
		payloadArchiver = archiver
	}

	stageScheduler, closeScheduler := initStageScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	trackingModule := tracking.NewModule(pool, rulesModule.Service(), payloadArchiver, eventBus, cfg, val, log)
	pipelineModule := pipeline.NewModule(pool, trackingModule.Service(), rulesModule.Service(), eventBus, stageScheduler, log)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			rulesModule,
			trackingModule,
			pipelineModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initStageScheduler(cfg config.SchedulerConfig, log *logger.Logger) (pipeline.StageRefreshScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; deferred stage refreshes disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Warn("failed to initialize stage refresh scheduler; deferred refreshes disabled", "error", err)
		return nil, nil
	}
	return client, func() { _ = client.Close() }
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
