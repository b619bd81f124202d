package service

import (
	"context"
	"errors"

	"leadintent_backend/internal/events"
	"leadintent_backend/internal/scoring"
	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/internal/tracking/transport"

	"github.com/google/uuid"
)

// Ingest validates, scores and stores one tracking event, then refreshes the
// subject's rollup and possibly emits a threshold signal.
//
// The client-visible contract is deliberately lenient about persistence:
// browser trackers deliver at-least-once and cannot usefully react to a
// half-failed write, so a store timeout yields Stored=false on an otherwise
// successful response instead of an error. Validation failures, by contrast,
// are always surfaced synchronously. Everything after the committed event
// write (rollup, signal) is non-fatal; failures there leave derived data
// stale until the next event or a maintenance recompute.
func (s *Service) Ingest(ctx context.Context, req transport.IngestEventRequest) (transport.IngestEventResponse, error) {
	now := s.now()

	event, err := s.validateIngest(req, now)
	if err != nil {
		return transport.IngestEventResponse{}, err
	}

	snapshot, _, err := s.rules.ActiveSnapshot(ctx)
	if err != nil {
		return transport.IngestEventResponse{}, err
	}

	result := scoring.ScoreEvent(scoring.EventInput{
		EventType:   event.EventType,
		EventSource: event.EventSource,
		HasLeadRef:  event.LeadID != nil,
		Metadata:    event.Metadata,
	}, snapshot)

	score := repository.Score{
		EventID:      event.ID,
		SubjectID:    event.SubjectID,
		Score:        result.Score,
		Confidence:   result.Confidence,
		Reasons:      result.Reasons,
		ModelVersion: result.ModelVersion,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.GetIngestTimeout())
	defer cancel()

	insert, err := s.store.InsertEventWithScore(storeCtx, event, score)
	if err != nil {
		// Accepted but not guaranteed stored. The caller can retry with the
		// same dedupe key; the uniqueness constraint absorbs the replay.
		s.logger.ScoringError("store_event", event.SubjectID.String(), err)
		s.logger.IngestAccepted(event.EventType, event.SubjectID.String(), result.Score, false)
		return transport.IngestEventResponse{
			EventID:   event.ID,
			SubjectID: event.SubjectID,
			Scored:    false,
			Stored:    false,
		}, nil
	}

	response := transport.IngestEventResponse{
		EventID:      insert.EventID,
		SubjectID:    event.SubjectID,
		Scored:       !insert.Deduplicated,
		Stored:       true,
		Deduplicated: insert.Deduplicated,
	}

	if insert.Deduplicated {
		return response, nil
	}

	if s.archiver != nil {
		go func() {
			bg := context.WithoutCancel(ctx)
			if err := s.archiver.Archive(bg, insert.EventID, req.Metadata); err != nil {
				s.logger.Warn("event payload archive failed",
					"eventId", insert.EventID.String(), "error", err.Error())
			}
		}()
	}

	s.refreshRollupAndSignal(ctx, event)

	s.bus.Publish(ctx, events.EventScored{
		BaseEvent: events.NewBaseEvent(),
		EventID:   insert.EventID,
		SubjectID: event.SubjectID,
		LeadID:    event.LeadID,
		EventType: event.EventType,
		Score:     result.Score,
	})

	s.logger.IngestAccepted(event.EventType, event.SubjectID.String(), result.Score, true)
	return response, nil
}

// refreshRollupAndSignal recomputes the subject's windowed aggregate and
// emits an intent signal when the 7-day score crosses into a higher band.
// Errors are logged and swallowed: the event itself is already committed.
func (s *Service) refreshRollupAndSignal(ctx context.Context, event repository.Event) {
	rollup, err := s.store.RecomputeRollup(ctx, event.SubjectID, s.now())
	if err != nil {
		s.logger.ScoringError("recompute_rollup", event.SubjectID.String(), err)
		return
	}

	band := scoring.BandFromScore(rollup.Score7d)
	var prev *scoring.Band
	if rollup.LastEmittedBand != nil {
		b := scoring.Band(*rollup.LastEmittedBand)
		prev = &b
	}
	if !scoring.ShouldEmit(prev, band) {
		return
	}

	eventType := event.EventType
	occurredAt := event.OccurredAt
	signal := repository.IntentSignal{
		ID:            uuid.New(),
		SubjectID:     event.SubjectID,
		LeadID:        rollup.LeadID,
		Band:          string(band),
		Score7d:       rollup.Score7d,
		Score30d:      rollup.Score30d,
		LastEventType: &eventType,
		LastEventAt:   &occurredAt,
		Payload: map[string]any{
			"trigger_event_id":   event.ID.String(),
			"trigger_event_type": event.EventType,
		},
	}
	if err := s.store.EmitSignal(ctx, signal); err != nil {
		if errors.Is(err, repository.ErrSignalSuperseded) {
			// A concurrent ingest emitted this band or a higher one first.
			return
		}
		s.logger.ScoringError("emit_signal", event.SubjectID.String(), err)
		return
	}

	s.logger.SignalEmitted(event.SubjectID.String(), string(band), rollup.Score7d, rollup.Score30d)
	s.bus.Publish(ctx, events.ThresholdCrossed{
		BaseEvent: events.NewBaseEvent(),
		SubjectID: event.SubjectID,
		LeadID:    rollup.LeadID,
		Band:      string(band),
		Score7d:   rollup.Score7d,
		Score30d:  rollup.Score30d,
	})
}
