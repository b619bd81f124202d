package service

import (
	"context"

	"leadintent_backend/internal/scoring"
	"leadintent_backend/platform/apperr"

	"github.com/google/uuid"
)

// EventHistory returns the subject's events projected for the decay
// classifier.
func (s *Service) EventHistory(ctx context.Context, subjectID uuid.UUID) ([]scoring.HistoricalEvent, error) {
	eventList, err := s.store.ListEventsBySubject(ctx, subjectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load event history", err)
	}
	history := make([]scoring.HistoricalEvent, 0, len(eventList))
	for _, event := range eventList {
		history = append(history, scoring.HistoricalEvent{
			EventType:  event.EventType,
			OccurredAt: event.OccurredAt,
		})
	}
	return history, nil
}
