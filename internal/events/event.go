// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadintent_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Tracking Domain Events
// =============================================================================

// EventScored is published after a tracking event has been stored and scored.
// Subscribers (pipeline) refresh the lead's marketing stage off this event.
type EventScored struct {
	BaseEvent
	EventID   uuid.UUID  `json:"eventId"`
	SubjectID uuid.UUID  `json:"subjectId"`
	LeadID    *uuid.UUID `json:"leadId,omitempty"`
	EventType string     `json:"eventType"`
	Score     int        `json:"score"`
}

func (e EventScored) EventName() string { return "tracking.event.scored" }

// ThresholdCrossed is published when a subject crosses into a higher
// qualification band and an intent signal row has been written.
type ThresholdCrossed struct {
	BaseEvent
	SubjectID uuid.UUID  `json:"subjectId"`
	LeadID    *uuid.UUID `json:"leadId,omitempty"`
	Band      string     `json:"band"`
	Score7d   int        `json:"score7d"`
	Score30d  int        `json:"score30d"`
}

func (e ThresholdCrossed) EventName() string { return "tracking.threshold.crossed" }

// IdentityMerged is published after anonymous activity has been merged into an
// identified lead.
type IdentityMerged struct {
	BaseEvent
	AnonymousID      uuid.UUID `json:"anonymousId"`
	LeadID           uuid.UUID `json:"leadId"`
	TotalScore       int       `json:"totalScore"`
	Band             string    `json:"band"`
	ThresholdEmitted bool      `json:"thresholdEmitted"`
}

func (e IdentityMerged) EventName() string { return "tracking.identity.merged" }

// =============================================================================
// Pipeline Domain Events
// =============================================================================

// LeadStageChanged is published when the decay classifier moves a lead to a
// different marketing stage.
type LeadStageChanged struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	OldStage string    `json:"oldStage"`
	NewStage string    `json:"newStage"`
}

func (e LeadStageChanged) EventName() string { return "pipeline.stage.changed" }

// LeadAutoPushed is published when a qualified lead has been pushed into the
// downstream sales queue.
type LeadAutoPushed struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	SalesRef uuid.UUID `json:"salesRef"`
	Stage    string    `json:"stage"`
	Score    int       `json:"score"`
}

func (e LeadAutoPushed) EventName() string { return "pipeline.lead.auto_pushed" }
