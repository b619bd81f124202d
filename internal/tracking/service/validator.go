package service

import (
	"encoding/json"
	"fmt"
	"time"

	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/apperr"

	"github.com/google/uuid"
)

// Whitelisted event types. Unknown types are a validation error, not a
// zero-score event: trackers sending garbage should hear about it.
var allowedEventTypes = map[string]bool{
	"page_view":        true,
	"pricing_view":     true,
	"content_download": true,
	"email_open":       true,
	"email_click":      true,
	"chat_message":     true,
	"webinar_attend":   true,
	"demo_request":     true,
	"form_submit":      true,
	"trial_signup":     true,
}

// validateIngest normalizes the raw ingest payload into an event draft.
// Returns a field-keyed validation error on the first pass; pure, no side
// effects.
func (s *Service) validateIngest(req transport.IngestEventRequest, now time.Time) (repository.Event, error) {
	fields := make(map[string]string)

	if !allowedEventTypes[req.EventType] {
		fields["eventType"] = fmt.Sprintf("unknown event type %q", req.EventType)
	}

	if req.LeadID == nil && req.AnonymousID == nil {
		fields["leadId"] = "at least one of leadId or anonymousId is required"
	}

	occurredAt := now
	if req.OccurredAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.OccurredAt)
		if err != nil {
			fields["occurredAt"] = "must be a valid RFC 3339 timestamp"
		} else {
			occurredAt = parsed
		}
	}

	if req.Metadata != nil {
		serialized, err := json.Marshal(req.Metadata)
		if err != nil {
			fields["metadata"] = "must be a JSON object"
		} else if max := s.cfg.GetMetadataMaxBytes(); len(serialized) > max {
			fields["metadata"] = fmt.Sprintf("serialized metadata exceeds %d bytes", max)
		}
	}

	if len(fields) > 0 {
		return repository.Event{}, apperr.ValidationFields("event validation failed", fields)
	}

	source := req.EventSource
	if source == "" {
		source = s.cfg.GetDefaultEventSource()
	}

	subjectID := uuid.UUID{}
	if req.LeadID != nil {
		subjectID = *req.LeadID
	} else {
		subjectID = *req.AnonymousID
	}

	return repository.Event{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		LeadID:      req.LeadID,
		AnonymousID: req.AnonymousID,
		EventType:   req.EventType,
		EventSource: source,
		OccurredAt:  occurredAt,
		Metadata:    req.Metadata,
		DedupeKey:   req.DedupeKey,
	}, nil
}
