package pipeline

import (
	"context"
	"errors"
	"time"

	"leadintent_backend/internal/events"
	"leadintent_backend/internal/rules"
	"leadintent_backend/internal/scoring"
	"leadintent_backend/platform/apperr"
	"leadintent_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface of the pipeline service.
type Store interface {
	GetLead(ctx context.Context, id uuid.UUID) (MarketingLead, error)
	UpsertStage(ctx context.Context, id uuid.UUID, stage string, decayedScore int) (MarketingLead, string, error)
	PushToSales(ctx context.Context, leadID uuid.UUID, stage string, score int) (PushResult, error)
	RecordStageChange(ctx context.Context, leadID uuid.UUID, oldStage, newStage string) error
}

// EventHistory supplies a subject's events for the decay classifier.
type EventHistory interface {
	EventHistory(ctx context.Context, subjectID uuid.UUID) ([]scoring.HistoricalEvent, error)
}

// RuleProvider supplies the active rule snapshot and qualification config.
type RuleProvider interface {
	ActiveSnapshot(ctx context.Context) ([]rules.ScoringRule, rules.QualificationConfig, error)
}

// StageRefreshScheduler defers a decay reclassification for one lead. May be
// nil when no task backend is configured; decay drops then only surface on
// the next event or manual refresh.
type StageRefreshScheduler interface {
	ScheduleStageRefresh(ctx context.Context, leadID uuid.UUID, runAt time.Time) error
}

// decayRefreshInterval matches the decay step: one full week per point drop.
const decayRefreshInterval = 7 * 24 * time.Hour

// Service drives stage classification and the auto-push qualifier.
type Service struct {
	store          Store
	history        EventHistory
	rules          RuleProvider
	bus            events.Bus
	stageScheduler StageRefreshScheduler
	logger         *logger.Logger
	now            func() time.Time
}

// NewService creates the pipeline service.
func NewService(store Store, history EventHistory, ruleProvider RuleProvider, bus events.Bus, stageScheduler StageRefreshScheduler, log *logger.Logger) *Service {
	return &Service{
		store:          store,
		history:        history,
		rules:          ruleProvider,
		bus:            bus,
		stageScheduler: stageScheduler,
		logger:         log,
		now:            time.Now,
	}
}

// LeadStatus is the admin view of a marketing lead.
type LeadStatus struct {
	Lead       MarketingLead
	HardIntent bool
}

// GetLead returns the current pipeline state of a lead.
func (s *Service) GetLead(ctx context.Context, leadID uuid.UUID) (MarketingLead, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if errors.Is(err, ErrLeadNotFound) {
		return MarketingLead{}, apperr.NotFound("marketing lead not found")
	}
	if err != nil {
		return MarketingLead{}, apperr.Wrap(apperr.KindInternal, "failed to load marketing lead", err)
	}
	return lead, nil
}

// RefreshStage re-runs the decay classifier for a lead, persists the stage,
// and attempts the auto-push when the lead qualifies. Push failures are
// non-fatal: the lead stays eligible and the next qualifying event retries.
func (s *Service) RefreshStage(ctx context.Context, leadID uuid.UUID) (MarketingLead, error) {
	history, err := s.history.EventHistory(ctx, leadID)
	if err != nil {
		return MarketingLead{}, err
	}

	snapshot, cfg, err := s.rules.ActiveSnapshot(ctx)
	if err != nil {
		return MarketingLead{}, err
	}

	result := scoring.DecayedStage(history, snapshot, cfg, s.now())

	lead, prevStage, err := s.store.UpsertStage(ctx, leadID, string(result.Stage), result.DecayedScore)
	if err != nil {
		return MarketingLead{}, apperr.Wrap(apperr.KindInternal, "failed to persist lead stage", err)
	}

	if prevStage != "" && prevStage != lead.Stage {
		if err := s.store.RecordStageChange(ctx, leadID, prevStage, lead.Stage); err != nil {
			s.logger.ScoringError("record_stage_change", leadID.String(), err)
		}
		s.bus.Publish(ctx, events.LeadStageChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			OldStage:  prevStage,
			NewStage:  lead.Stage,
		})
		s.logger.Info("lead stage changed",
			"leadId", leadID.String(),
			"oldStage", prevStage,
			"newStage", lead.Stage,
			"decayedScore", lead.DecayedScore)
	}

	// Leads go quiet between events; without a deferred refresh a decay-driven
	// stage drop would never be observed. The chain stops once the lead
	// bottoms out at M1.
	if s.stageScheduler != nil && lead.Stage != string(scoring.StageM1) {
		runAt := s.now().Add(decayRefreshInterval)
		if err := s.stageScheduler.ScheduleStageRefresh(ctx, leadID, runAt); err != nil {
			s.logger.ScoringError("schedule_stage_refresh", leadID.String(), err)
		}
	}

	if scoring.AutoPushEligible(result, cfg) {
		if _, err := s.AutoPush(ctx, leadID); err != nil {
			s.logger.ScoringError("auto_push", leadID.String(), err)
		}
	}

	return lead, nil
}

// PushOutcome reports an auto-push decision.
type PushOutcome struct {
	Pushed   bool       `json:"pushed"`
	Reason   string     `json:"reason,omitempty"`
	SalesRef *uuid.UUID `json:"salesRef,omitempty"`
}

// AutoPush pushes a qualified lead into the sales queue, at most once per
// lead. Preconditions are checked in order and short-circuit: push enabled,
// not already pushed, eligible per the decay classifier.
func (s *Service) AutoPush(ctx context.Context, leadID uuid.UUID) (PushOutcome, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if errors.Is(err, ErrLeadNotFound) {
		return PushOutcome{}, apperr.NotFound("marketing lead not found")
	}
	if err != nil {
		return PushOutcome{}, apperr.Wrap(apperr.KindInternal, "failed to load marketing lead", err)
	}

	if !lead.AutoPushEnabled {
		return PushOutcome{Pushed: false, Reason: "auto-push disabled"}, nil
	}
	if lead.SalesRef != nil {
		return PushOutcome{Pushed: false, Reason: "already pushed", SalesRef: lead.SalesRef}, nil
	}

	history, err := s.history.EventHistory(ctx, leadID)
	if err != nil {
		return PushOutcome{}, err
	}
	snapshot, cfg, err := s.rules.ActiveSnapshot(ctx)
	if err != nil {
		return PushOutcome{}, err
	}
	result := scoring.DecayedStage(history, snapshot, cfg, s.now())
	if !scoring.AutoPushEligible(result, cfg) {
		return PushOutcome{Pushed: false, Reason: "not eligible"}, nil
	}

	push, err := s.store.PushToSales(ctx, leadID, string(result.Stage), result.DecayedScore)
	if err != nil {
		return PushOutcome{}, apperr.Wrap(apperr.KindInternal, "sales push failed", err)
	}
	if !push.Pushed {
		// Lost the gate race: someone else pushed between our read and write.
		return PushOutcome{Pushed: false, Reason: "already pushed"}, nil
	}

	s.bus.Publish(ctx, events.LeadAutoPushed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		SalesRef:  *push.SalesRef,
		Stage:     string(result.Stage),
		Score:     result.DecayedScore,
	})
	s.logger.Info("lead auto-pushed",
		"leadId", leadID.String(),
		"salesRef", push.SalesRef.String(),
		"stage", string(result.Stage),
		"decayedScore", result.DecayedScore)

	return PushOutcome{Pushed: true, SalesRef: push.SalesRef}, nil
}
