// Package transport defines the request/response contracts of the tracking
// API.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// IngestEventRequest is the collaborator-facing ingest payload. At least one
// of LeadID/AnonymousID is required; OccurredAt defaults to now and
// EventSource to the platform default when absent.
type IngestEventRequest struct {
	EventType   string         `json:"eventType" validate:"required,max=100"`
	EventSource string         `json:"eventSource" validate:"omitempty,max=100"`
	LeadID      *uuid.UUID     `json:"leadId"`
	AnonymousID *uuid.UUID     `json:"anonymousId"`
	OccurredAt  *string        `json:"occurredAt"`
	Metadata    map[string]any `json:"metadata"`
	DedupeKey   *string        `json:"dedupeKey" validate:"omitempty,max=200"`
}

// IngestEventResponse reports what ingestion did. Stored=false means the
// event was accepted but persistence could not be confirmed; the caller may
// retry with the same dedupe key.
type IngestEventResponse struct {
	EventID      uuid.UUID `json:"eventId"`
	SubjectID    uuid.UUID `json:"subjectId"`
	Scored       bool      `json:"scored"`
	Stored       bool      `json:"stored"`
	Deduplicated bool      `json:"deduplicated"`
}

// IdentifyRequest ties an anonymous visitor to an identity.
type IdentifyRequest struct {
	AnonymousID uuid.UUID `json:"anonymousId" validate:"required"`
	Email       string    `json:"email" validate:"required,email,max=255"`
	Name        *string   `json:"name" validate:"omitempty,max=255"`
	Phone       *string   `json:"phone" validate:"omitempty,max=50"`
	Source      *string   `json:"source" validate:"omitempty,max=100"`
}

// IdentifyResponse is the merge summary.
type IdentifyResponse struct {
	IdentityID             uuid.UUID `json:"identityId"`
	Merged                 bool      `json:"merged"`
	PreviousAnonymousScore int       `json:"previousAnonymousScore"`
	PreviousIdentityScore  int       `json:"previousIdentityScore"`
	TotalIdentityScore     int       `json:"totalIdentityScore"`
	Band                   string    `json:"band"`
	ThresholdEmitted       bool      `json:"thresholdEmitted"`
}

// RecomputeRequest bounds the maintenance recompute window in days.
type RecomputeRequest struct {
	Days *int `json:"days" validate:"omitempty,gte=1,lte=365"`
}

// RecomputeResponse reports how many events were re-scored.
type RecomputeResponse struct {
	Processed int `json:"processed"`
	Subjects  int `json:"subjects"`
}

// CreateAPIKeyRequest names a new ingest key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// APIKeyResponse describes a stored key. Key is only populated on creation.
type APIKeyResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"keyPrefix"`
	Key        string     `json:"key,omitempty"`
	IsActive   bool       `json:"isActive"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
