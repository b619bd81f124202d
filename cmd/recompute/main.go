// Command recompute runs a one-off maintenance recompute: it re-scores every
// event in the window against the current rule set and rebuilds all affected
// rollups. Useful after retroactive rule changes or derived-data incidents.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"leadintent_backend/internal/events"
	"leadintent_backend/internal/rules"
	trackingrepo "leadintent_backend/internal/tracking/repository"
	trackingservice "leadintent_backend/internal/tracking/service"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/config"
	"leadintent_backend/platform/db"
	"leadintent_backend/platform/logger"
)

func main() {
	days := flag.Int("days", 30, "recompute window in days")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	rulesService := rules.NewService(rules.NewRepository(pool), log)
	trackingService := trackingservice.New(trackingrepo.New(pool), rulesService, nil, events.NewInMemoryBus(log), cfg, log)

	result, err := trackingService.Recompute(ctx, transport.RecomputeRequest{Days: days})
	if err != nil {
		log.Error("recompute failed", "error", err)
		os.Exit(1)
	}

	log.Info("recompute finished", "windowDays", *days, "events", result.Processed, "subjects", result.Subjects)
}
