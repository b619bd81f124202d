package pipeline

import (
	"context"

	"leadintent_backend/internal/events"
)

// RegisterSubscribers hooks the pipeline into the tracking event stream.
// Stage refreshes ride on scored events and identity merges; both handlers
// are no-ops for anonymous subjects, which have no marketing lead yet.
func RegisterSubscribers(bus events.Bus, service *Service) {
	bus.Subscribe("tracking.event.scored", events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		scored, ok := event.(events.EventScored)
		if !ok || scored.LeadID == nil {
			return nil
		}
		_, err := service.RefreshStage(ctx, *scored.LeadID)
		return err
	}))

	bus.Subscribe("tracking.identity.merged", events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		merged, ok := event.(events.IdentityMerged)
		if !ok {
			return nil
		}
		_, err := service.RefreshStage(ctx, merged.LeadID)
		return err
	}))
}
