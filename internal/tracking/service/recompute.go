package service

import (
	"context"
	"time"

	"leadintent_backend/internal/scoring"
	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/apperr"

	"golang.org/x/sync/errgroup"
)

const defaultRecomputeDays = 30

// rollupWorkers bounds concurrent rollup recomputes during maintenance.
const rollupWorkers = 8

// Recompute re-scores every event in the window against the current rule
// snapshot and rebuilds the rollups of all affected subjects. This is the
// repair path for stale derived data (failed post-commit pipelines, rule
// changes meant to apply retroactively). It never emits signals: maintenance
// must not wake the sales team.
func (s *Service) Recompute(ctx context.Context, req transport.RecomputeRequest) (transport.RecomputeResponse, error) {
	days := defaultRecomputeDays
	if req.Days != nil {
		days = *req.Days
	}
	since := s.now().AddDate(0, 0, -days)

	snapshot, _, err := s.rules.ActiveSnapshot(ctx)
	if err != nil {
		return transport.RecomputeResponse{}, err
	}

	eventList, err := s.store.ListEventsSince(ctx, since)
	if err != nil {
		return transport.RecomputeResponse{}, apperr.Wrap(apperr.KindInternal, "failed to list events for recompute", err)
	}

	processed := 0
	for _, event := range eventList {
		result := scoring.ScoreEvent(scoring.EventInput{
			EventType:   event.EventType,
			EventSource: event.EventSource,
			HasLeadRef:  event.LeadID != nil,
			Metadata:    event.Metadata,
		}, snapshot)

		err := s.store.UpsertScore(ctx, repository.Score{
			EventID:      event.ID,
			SubjectID:    event.SubjectID,
			Score:        result.Score,
			Confidence:   result.Confidence,
			Reasons:      result.Reasons,
			ModelVersion: result.ModelVersion,
		})
		if err != nil {
			return transport.RecomputeResponse{}, apperr.Wrap(apperr.KindInternal, "failed to upsert score during recompute", err)
		}
		processed++
	}

	subjects, err := s.store.ListSubjectsWithEventsSince(ctx, since)
	if err != nil {
		return transport.RecomputeResponse{}, apperr.Wrap(apperr.KindInternal, "failed to list subjects for recompute", err)
	}

	now := s.now()
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(rollupWorkers)
	for _, subjectID := range subjects {
		group.Go(func() error {
			_, err := s.store.RecomputeRollup(groupCtx, subjectID, now)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return transport.RecomputeResponse{}, apperr.Wrap(apperr.KindInternal, "rollup refresh failed during recompute", err)
	}

	s.logger.Info("maintenance recompute finished",
		"windowDays", days,
		"events", processed,
		"subjects", len(subjects),
		"took", time.Since(now).String())

	return transport.RecomputeResponse{Processed: processed, Subjects: len(subjects)}, nil
}
