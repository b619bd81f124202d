package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadintent_backend/internal/events"
	"leadintent_backend/internal/rules"
	"leadintent_backend/internal/scoring"
	"leadintent_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu    sync.Mutex
	leads map[uuid.UUID]*MarketingLead
	sales int
	tasks int
	audit []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: make(map[uuid.UUID]*MarketingLead)}
}

func (f *fakeStore) GetLead(_ context.Context, id uuid.UUID) (MarketingLead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lead, ok := f.leads[id]; ok {
		return *lead, nil
	}
	return MarketingLead{}, ErrLeadNotFound
}

func (f *fakeStore) UpsertStage(_ context.Context, id uuid.UUID, stage string, decayedScore int) (MarketingLead, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		lead = &MarketingLead{ID: id, AutoPushEnabled: true}
		f.leads[id] = lead
	}
	prev := lead.Stage
	lead.Stage = stage
	lead.DecayedScore = decayedScore
	lead.UpdatedAt = time.Now()
	return *lead, prev, nil
}

func (f *fakeStore) PushToSales(_ context.Context, leadID uuid.UUID, stage string, score int) (PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[leadID]
	if !ok || lead.SalesRef != nil {
		return PushResult{Pushed: false}, nil
	}
	ref := uuid.New()
	lead.SalesRef = &ref
	f.sales++
	f.tasks++
	f.audit = append(f.audit, "auto_pushed")
	return PushResult{Pushed: true, SalesRef: &ref}, nil
}

func (f *fakeStore) RecordStageChange(_ context.Context, _ uuid.UUID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit = append(f.audit, "stage_changed")
	return nil
}

type fakeHistory struct {
	events []scoring.HistoricalEvent
}

func (f *fakeHistory) EventHistory(context.Context, uuid.UUID) ([]scoring.HistoricalEvent, error) {
	return f.events, nil
}

type fakeRuleProvider struct {
	snapshot []rules.ScoringRule
	cfg      rules.QualificationConfig
}

func (f *fakeRuleProvider) ActiveSnapshot(context.Context) ([]rules.ScoringRule, rules.QualificationConfig, error) {
	return f.snapshot, f.cfg, nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event)          {}
func (nopBus) PublishSync(context.Context, events.Event) error { return nil }
func (nopBus) Subscribe(string, events.Handler)               {}

func strPtr(s string) *string { return &s }

func testDeps(eventCount int, hardIntent bool) (*fakeStore, *Service) {
	store := newFakeStore()

	snapshot := []rules.ScoringRule{{
		RuleKey:   "base_form_submit",
		RuleType:  rules.RuleTypeBaseScore,
		EventType: strPtr("form_submit"),
		Points:    10,
	}}
	if hardIntent {
		snapshot = append(snapshot, rules.ScoringRule{
			RuleKey:      "base_demo_request",
			RuleType:     rules.RuleTypeBaseScore,
			EventType:    strPtr("demo_request"),
			Points:       15,
			IsHardIntent: true,
			StageHint:    strPtr("M5"),
		})
	}

	history := &fakeHistory{}
	for i := 0; i < eventCount; i++ {
		history.events = append(history.events, scoring.HistoricalEvent{
			EventType:  "form_submit",
			OccurredAt: time.Now(),
		})
	}
	if hardIntent {
		history.events = append(history.events, scoring.HistoricalEvent{
			EventType:  "demo_request",
			OccurredAt: time.Now(),
		})
	}

	provider := &fakeRuleProvider{
		snapshot: snapshot,
		cfg: rules.QualificationConfig{
			M2Min: 5, M3Min: 15, M4Min: 30, M5Min: 50,
			AutoPushThreshold:  40,
			DecayPointsPerWeek: 2,
		},
	}

	svc := NewService(store, history, provider, nopBus{}, nil, logger.New("development"))
	return store, svc
}

type fakeStageScheduler struct {
	scheduled []uuid.UUID
}

func (f *fakeStageScheduler) ScheduleStageRefresh(ctx context.Context, leadID uuid.UUID, runAt time.Time) error {
	f.scheduled = append(f.scheduled, leadID)
	return nil
}

func TestRefreshStage_ClassifiesAndPersists(t *testing.T) {
	store, svc := testDeps(2, false) // 20 points -> M3

	leadID := uuid.New()
	lead, err := svc.RefreshStage(context.Background(), leadID)
	if err != nil {
		t.Fatalf("RefreshStage returned error: %v", err)
	}
	if lead.Stage != "M3" || lead.DecayedScore != 20 {
		t.Fatalf("expected M3/20, got %s/%d", lead.Stage, lead.DecayedScore)
	}
	if store.leads[leadID].SalesRef != nil {
		t.Fatal("M3 lead must not be pushed")
	}
}

func TestRefreshStage_SchedulesDecayFollowup(t *testing.T) {
	_, svc := testDeps(2, false) // 20 points -> M3, still decaying
	sched := &fakeStageScheduler{}
	svc.stageScheduler = sched

	leadID := uuid.New()
	if _, err := svc.RefreshStage(context.Background(), leadID); err != nil {
		t.Fatalf("RefreshStage returned error: %v", err)
	}
	if len(sched.scheduled) != 1 || sched.scheduled[0] != leadID {
		t.Fatalf("expected one deferred refresh for %s, got %v", leadID, sched.scheduled)
	}

	// A lead that has bottomed out stops the refresh chain.
	history := &fakeHistory{}
	svc.history = history
	sched.scheduled = nil
	if _, err := svc.RefreshStage(context.Background(), leadID); err != nil {
		t.Fatalf("RefreshStage returned error: %v", err)
	}
	if len(sched.scheduled) != 0 {
		t.Fatalf("M1 lead must not schedule a follow-up, got %v", sched.scheduled)
	}
}

func TestRefreshStage_QualifiedLeadIsPushedOnce(t *testing.T) {
	store, svc := testDeps(5, false) // 50 points -> M5, eligible

	leadID := uuid.New()
	if _, err := svc.RefreshStage(context.Background(), leadID); err != nil {
		t.Fatalf("RefreshStage returned error: %v", err)
	}
	if store.leads[leadID].SalesRef == nil {
		t.Fatal("expected qualified lead to be pushed")
	}
	if store.sales != 1 || store.tasks != 1 {
		t.Fatalf("expected one sales record and one task, got %d/%d", store.sales, store.tasks)
	}

	// Further qualifying events must not push again.
	for i := 0; i < 3; i++ {
		if _, err := svc.RefreshStage(context.Background(), leadID); err != nil {
			t.Fatalf("repeat RefreshStage returned error: %v", err)
		}
	}
	if store.sales != 1 {
		t.Fatalf("push fired more than once: %d sales records", store.sales)
	}
}

func TestAutoPush_RepeatedCallIsNoOp(t *testing.T) {
	store, svc := testDeps(5, false)
	leadID := uuid.New()
	if _, err := svc.RefreshStage(context.Background(), leadID); err != nil {
		t.Fatalf("RefreshStage returned error: %v", err)
	}

	outcome, err := svc.AutoPush(context.Background(), leadID)
	if err != nil {
		t.Fatalf("AutoPush returned error: %v", err)
	}
	if outcome.Pushed {
		t.Fatal("expected pushed=false on repeat call")
	}
	if outcome.Reason != "already pushed" {
		t.Fatalf("expected reason %q, got %q", "already pushed", outcome.Reason)
	}
	if store.sales != 1 {
		t.Fatalf("expected single sales record, got %d", store.sales)
	}
}

func TestAutoPush_HardIntentForcesEligibility(t *testing.T) {
	// One demo_request: 15 decayed points would only reach M3, but the hard
	// intent hint forces M5 which is always eligible.
	store, svc := testDeps(0, true)
	leadID := uuid.New()

	lead, err := svc.RefreshStage(context.Background(), leadID)
	if err != nil {
		t.Fatalf("RefreshStage returned error: %v", err)
	}
	if lead.Stage != "M5" {
		t.Fatalf("expected M5 from hard intent, got %s", lead.Stage)
	}
	if store.leads[leadID].SalesRef == nil {
		t.Fatal("hard intent lead should be pushed")
	}
}

func TestAutoPush_DisabledLeadIsSkipped(t *testing.T) {
	store, svc := testDeps(5, false)
	leadID := uuid.New()
	store.leads[leadID] = &MarketingLead{ID: leadID, AutoPushEnabled: false}

	outcome, err := svc.AutoPush(context.Background(), leadID)
	if err != nil {
		t.Fatalf("AutoPush returned error: %v", err)
	}
	if outcome.Pushed || outcome.Reason != "auto-push disabled" {
		t.Fatalf("expected disabled skip, got %+v", outcome)
	}
}
