package scheduler

import (
	"context"
	"fmt"

	"leadintent_backend/internal/pipeline"
	tracking "leadintent_backend/internal/tracking/service"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/config"
	"leadintent_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes scheduled tasks.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	tracking *tracking.Service
	pipeline *pipeline.Service
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, trackingSvc *tracking.Service, pipelineSvc *pipeline.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		tracking: trackingSvc,
		pipeline: pipelineSvc,
		log:      log,
	}

	mux.HandleFunc(TaskRecompute, w.handleRecompute)
	mux.HandleFunc(TaskRefreshStage, w.handleRefreshStage)

	return w, nil
}

func (w *Worker) handleRecompute(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRecomputePayload(task)
	if err != nil {
		return err
	}

	req := transport.RecomputeRequest{}
	if payload.Days > 0 {
		req.Days = &payload.Days
	}

	result, err := w.tracking.Recompute(ctx, req)
	if err != nil {
		return err
	}

	w.log.Info("scheduled recompute finished",
		"events", result.Processed,
		"subjects", result.Subjects)
	return nil
}

func (w *Worker) handleRefreshStage(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRefreshStagePayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	_, err = w.pipeline.RefreshStage(ctx, leadID)
	return err
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
