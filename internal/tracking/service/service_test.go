package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadintent_backend/internal/events"
	"leadintent_backend/internal/rules"
	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/apperr"
	"leadintent_backend/platform/logger"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu        sync.Mutex
	events    []repository.Event
	scores    map[uuid.UUID]repository.Score
	rollups   map[uuid.UUID]*repository.Rollup
	signals   []repository.IntentSignal
	apiKeys   map[string]repository.APIKey
	insertErr error
	// afterRecompute fires once, outside the lock, after the next rollup
	// recompute returns. Lets a test interleave a competing writer between a
	// caller's rollup read and its emission decision.
	afterRecompute func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scores:  make(map[uuid.UUID]repository.Score),
		rollups: make(map[uuid.UUID]*repository.Rollup),
		apiKeys: make(map[string]repository.APIKey),
	}
}

func (f *fakeStore) InsertEventWithScore(_ context.Context, event repository.Event, score repository.Score) (repository.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return repository.InsertResult{}, f.insertErr
	}
	if event.DedupeKey != nil {
		for _, existing := range f.events {
			if existing.DedupeKey != nil && existing.EventSource == event.EventSource && *existing.DedupeKey == *event.DedupeKey {
				return repository.InsertResult{EventID: existing.ID, Deduplicated: true}, nil
			}
		}
	}
	f.events = append(f.events, event)
	f.scores[event.ID] = score
	return repository.InsertResult{EventID: event.ID}, nil
}

func (f *fakeStore) UpsertScore(_ context.Context, score repository.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[score.EventID] = score
	return nil
}

func (f *fakeStore) ListEventsBySubject(_ context.Context, subjectID uuid.UUID) ([]repository.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Event
	for _, e := range f.events {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListEventsSince(_ context.Context, since time.Time) ([]repository.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Event
	for _, e := range f.events {
		if !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRollup(_ context.Context, subjectID uuid.UUID) (repository.Rollup, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ro, ok := f.rollups[subjectID]; ok {
		return *ro, true, nil
	}
	return repository.Rollup{}, false, nil
}

func (f *fakeStore) RecomputeRollup(_ context.Context, subjectID uuid.UUID, now time.Time) (repository.Rollup, error) {
	f.mu.Lock()
	ro := f.recomputeLocked(subjectID, now)
	hook := f.afterRecompute
	f.afterRecompute = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ro, nil
}

// recomputeLocked mirrors the SQL full recompute: windowed sums over the
// score rows, preserving the emitted-band pointer.
func (f *fakeStore) recomputeLocked(subjectID uuid.UUID, now time.Time) repository.Rollup {
	ro, ok := f.rollups[subjectID]
	if !ok {
		ro = &repository.Rollup{SubjectID: subjectID}
		f.rollups[subjectID] = ro
	}
	ro.Score7d, ro.Score30d, ro.TotalScore = 0, 0, 0
	for _, e := range f.events {
		if e.SubjectID != subjectID {
			continue
		}
		score := f.scores[e.ID].Score
		ro.TotalScore += score
		if e.OccurredAt.After(now.AddDate(0, 0, -7)) {
			ro.Score7d += score
		}
		if e.OccurredAt.After(now.AddDate(0, 0, -30)) {
			ro.Score30d += score
		}
		occurred := e.OccurredAt
		if ro.LastEventAt == nil || occurred.After(*ro.LastEventAt) {
			ro.LastEventAt = &occurred
		}
		if e.LeadID != nil {
			ro.LeadID = e.LeadID
		}
	}
	return *ro
}

func (f *fakeStore) ListSubjectsWithEventsSince(_ context.Context, since time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, e := range f.events {
		if !e.OccurredAt.Before(since) && !seen[e.SubjectID] {
			seen[e.SubjectID] = true
			out = append(out, e.SubjectID)
		}
	}
	return out, nil
}

var bandRank = map[string]int{"cold": 0, "warm": 1, "hot": 2, "critical": 3}

// EmitSignal mirrors the conditional pointer advance: the signal only lands
// when its band is strictly higher than the stored pointer.
func (f *fakeStore) EmitSignal(_ context.Context, signal repository.IntentSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ro, ok := f.rollups[signal.SubjectID]
	if !ok {
		ro = &repository.Rollup{SubjectID: signal.SubjectID}
		f.rollups[signal.SubjectID] = ro
	}
	if ro.LastEmittedBand != nil && bandRank[*ro.LastEmittedBand] >= bandRank[signal.Band] {
		return repository.ErrSignalSuperseded
	}
	f.signals = append(f.signals, signal)
	band := signal.Band
	ro.LastEmittedBand = &band
	return nil
}

func (f *fakeStore) UpsertIdentity(_ context.Context, email string, name, phone, source *string) (repository.Identity, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Identities keyed by email via a deterministic id so repeated identify
	// calls resolve to the same identity.
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(email))
	return repository.Identity{ID: id, Email: email, Name: name, Phone: phone, Source: source}, false, nil
}

func (f *fakeStore) MergeAnonymous(_ context.Context, anonymousID, identityID uuid.UUID, now time.Time) (repository.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := repository.MergeResult{}
	for i := range f.events {
		if f.events[i].SubjectID == anonymousID && f.events[i].LeadID == nil {
			f.events[i].SubjectID = identityID
			f.events[i].LeadID = &identityID
			result.RepointedEvents++
		}
	}
	for id, score := range f.scores {
		if score.SubjectID == anonymousID {
			score.SubjectID = identityID
			f.scores[id] = score
		}
	}

	if anon, ok := f.rollups[anonymousID]; ok {
		result.PrevAnonymousScore = anon.TotalScore
	}
	if ident, ok := f.rollups[identityID]; ok {
		result.PrevIdentityScore = ident.TotalScore
		result.PreMergeEmittedBand = ident.LastEmittedBand
	}
	result.TotalIdentityScore = result.PrevIdentityScore + result.PrevAnonymousScore

	merged := f.recomputeLocked(identityID, now)
	f.rollups[identityID].TotalScore = result.TotalIdentityScore
	result.Score7d = merged.Score7d
	result.Score30d = merged.Score30d

	if anon, ok := f.rollups[anonymousID]; ok {
		anon.MergedInto = &identityID
	}
	return result, nil
}

func (f *fakeStore) CreateAPIKey(_ context.Context, key repository.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys[key.KeyHash] = key
	return nil
}

func (f *fakeStore) FindActiveAPIKeyByHash(_ context.Context, keyHash string) (repository.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.apiKeys[keyHash]
	if !ok || !key.IsActive {
		return repository.APIKey{}, repository.ErrAPIKeyNotFound
	}
	return key, nil
}

func (f *fakeStore) ListAPIKeys(_ context.Context) ([]repository.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.APIKey
	for _, key := range f.apiKeys {
		out = append(out, key)
	}
	return out, nil
}

func (f *fakeStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, key := range f.apiKeys {
		if key.ID == id {
			key.IsActive = false
			f.apiKeys[hash] = key
			return nil
		}
	}
	return repository.ErrAPIKeyNotFound
}

type fakeRuleProvider struct {
	snapshot []rules.ScoringRule
	cfg      rules.QualificationConfig
}

func (f *fakeRuleProvider) ActiveSnapshot(context.Context) ([]rules.ScoringRule, rules.QualificationConfig, error) {
	return f.snapshot, f.cfg, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (f *fakeBus) Publish(_ context.Context, event events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
}

func (f *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	f.Publish(ctx, event)
	return nil
}

func (f *fakeBus) Subscribe(string, events.Handler) {}

func (f *fakeBus) byName(name string) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeConfig struct{}

func (fakeConfig) GetIngestTimeout() time.Duration { return time.Second }
func (fakeConfig) GetMetadataMaxBytes() int        { return 1024 }
func (fakeConfig) GetDefaultEventSource() string   { return "web" }

func strPtr(s string) *string { return &s }

func baseRule(key, eventType string, points int) rules.ScoringRule {
	return rules.ScoringRule{
		RuleKey:   key,
		RuleType:  rules.RuleTypeBaseScore,
		EventType: strPtr(eventType),
		Points:    points,
	}
}

func newTestService(store *fakeStore, snapshot []rules.ScoringRule) (*Service, *fakeBus) {
	bus := &fakeBus{}
	svc := New(store, &fakeRuleProvider{snapshot: snapshot}, nil, bus, fakeConfig{}, logger.New("development"))
	return svc, bus
}

func ingest(t *testing.T, svc *Service, req transport.IngestEventRequest) transport.IngestEventResponse {
	t.Helper()
	resp, err := svc.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	return resp
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngest_FormSubmitScoresAndEmitsWarmSignal(t *testing.T) {
	store := newFakeStore()
	svc, bus := newTestService(store, []rules.ScoringRule{baseRule("base_form_submit", "form_submit", 10)})

	anonID := uuid.New()
	resp := ingest(t, svc, transport.IngestEventRequest{
		EventType:   "form_submit",
		AnonymousID: &anonID,
	})

	if !resp.Stored || !resp.Scored {
		t.Fatalf("expected stored and scored, got %+v", resp)
	}
	if resp.SubjectID != anonID {
		t.Fatalf("expected subject %s, got %s", anonID, resp.SubjectID)
	}

	rollup := store.rollups[anonID]
	if rollup == nil {
		t.Fatal("expected rollup to exist")
	}
	if rollup.Score7d != 10 || rollup.Score30d != 10 {
		t.Fatalf("expected rollup 10/10, got %d/%d", rollup.Score7d, rollup.Score30d)
	}

	if len(store.signals) != 1 {
		t.Fatalf("expected exactly one signal, got %d", len(store.signals))
	}
	if store.signals[0].Band != "warm" {
		t.Fatalf("expected band warm (10 points), got %s", store.signals[0].Band)
	}

	if got := bus.byName("tracking.event.scored"); len(got) != 1 {
		t.Fatalf("expected one scored event on the bus, got %d", len(got))
	}
	if got := bus.byName("tracking.threshold.crossed"); len(got) != 1 {
		t.Fatalf("expected one threshold event on the bus, got %d", len(got))
	}
}

func TestIngest_DuplicateDeliveryIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, []rules.ScoringRule{baseRule("base_form_submit", "form_submit", 10)})

	anonID := uuid.New()
	key := "evt-123"
	req := transport.IngestEventRequest{
		EventType:   "form_submit",
		AnonymousID: &anonID,
		DedupeKey:   &key,
	}

	first := ingest(t, svc, req)
	second := ingest(t, svc, req)

	if second.Deduplicated != true {
		t.Fatal("expected second delivery to be deduplicated")
	}
	if second.EventID != first.EventID {
		t.Fatalf("expected same event id, got %s and %s", first.EventID, second.EventID)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected one stored event, got %d", len(store.events))
	}
	if store.rollups[anonID].Score7d != 10 {
		t.Fatalf("duplicate must not double-count: got score_7d=%d", store.rollups[anonID].Score7d)
	}
	if len(store.signals) != 1 {
		t.Fatalf("duplicate must not re-emit: got %d signals", len(store.signals))
	}
}

func TestIngest_OneSignalPerBandTransition(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, []rules.ScoringRule{baseRule("base_webinar_attend", "webinar_attend", 8)})

	anonID := uuid.New()
	for i := 0; i < 4; i++ {
		ingest(t, svc, transport.IngestEventRequest{EventType: "webinar_attend", AnonymousID: &anonID})
	}

	if store.rollups[anonID].Score7d != 32 {
		t.Fatalf("expected score_7d 32, got %d", store.rollups[anonID].Score7d)
	}

	critical := 0
	for _, s := range store.signals {
		if s.Band == "critical" {
			critical++
		}
	}
	if critical != 1 {
		t.Fatalf("expected exactly one critical signal, got %d", critical)
	}

	// Bands across emissions must be strictly increasing.
	order := map[string]int{"cold": 0, "warm": 1, "hot": 2, "critical": 3}
	for i := 1; i < len(store.signals); i++ {
		if order[store.signals[i].Band] <= order[store.signals[i-1].Band] {
			t.Fatalf("signal bands not strictly increasing: %s then %s",
				store.signals[i-1].Band, store.signals[i].Band)
		}
	}

	// A fifth event stays critical and must not re-emit.
	before := len(store.signals)
	ingest(t, svc, transport.IngestEventRequest{EventType: "webinar_attend", AnonymousID: &anonID})
	if len(store.signals) != before {
		t.Fatalf("same-band movement re-emitted: %d -> %d signals", before, len(store.signals))
	}
}

func TestIngest_ConcurrentIngestKeepsEmittedBandsMonotonic(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, []rules.ScoringRule{baseRule("base_webinar_attend", "webinar_attend", 8)})

	anonID := uuid.New()

	// Interleave two ingests for the same subject: A recomputes its rollup
	// (8 points, cold) and, before A decides to emit, B's whole ingest lands
	// (16 points, warm) and emits. A then tries to emit cold off its stale
	// read; the store must refuse the lower band.
	store.afterRecompute = func() {
		ingest(t, svc, transport.IngestEventRequest{EventType: "webinar_attend", AnonymousID: &anonID})
	}
	ingest(t, svc, transport.IngestEventRequest{EventType: "webinar_attend", AnonymousID: &anonID})

	if len(store.signals) != 1 {
		t.Fatalf("expected exactly one signal to survive the race, got %d", len(store.signals))
	}
	if store.signals[0].Band != "warm" {
		t.Fatalf("expected the surviving signal to be warm, got %s", store.signals[0].Band)
	}
	if got := store.rollups[anonID].LastEmittedBand; got == nil || *got != "warm" {
		t.Fatalf("band pointer regressed: got %v, want warm", got)
	}

	// The refused emission must not have disarmed the subject: the next
	// upward crossing still emits.
	for i := 0; i < 2; i++ {
		ingest(t, svc, transport.IngestEventRequest{EventType: "webinar_attend", AnonymousID: &anonID})
	}
	last := store.signals[len(store.signals)-1]
	if last.Band != "critical" {
		t.Fatalf("expected a critical emission after the race, got %s", last.Band)
	}
	for i := 1; i < len(store.signals); i++ {
		if bandRank[store.signals[i].Band] <= bandRank[store.signals[i-1].Band] {
			t.Fatalf("signal bands not strictly increasing: %s then %s",
				store.signals[i-1].Band, store.signals[i].Band)
		}
	}
}

func TestIngest_ValidationErrors(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, nil)
	anonID := uuid.New()

	cases := []struct {
		name  string
		req   transport.IngestEventRequest
		field string
	}{
		{
			"unknown event type",
			transport.IngestEventRequest{EventType: "mouse_wiggle", AnonymousID: &anonID},
			"eventType",
		},
		{
			"missing subject reference",
			transport.IngestEventRequest{EventType: "page_view"},
			"leadId",
		},
		{
			"malformed timestamp",
			transport.IngestEventRequest{EventType: "page_view", AnonymousID: &anonID, OccurredAt: strPtr("yesterday")},
			"occurredAt",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tc.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation kind, got %v", err)
			}
			fields, ok := err.(*apperr.Error).Details.(map[string]string)
			if !ok {
				t.Fatalf("expected field map details, got %T", err.(*apperr.Error).Details)
			}
			if _, present := fields[tc.field]; !present {
				t.Fatalf("expected error keyed by %q, got %v", tc.field, fields)
			}
		})
	}

	if len(store.events) != 0 {
		t.Fatalf("validation failures must not store events, got %d", len(store.events))
	}
}

func TestIngest_OversizedMetadataRejected(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, nil)

	anonID := uuid.New()
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'x'
	}
	_, err := svc.Ingest(context.Background(), transport.IngestEventRequest{
		EventType:   "page_view",
		AnonymousID: &anonID,
		Metadata:    map[string]any{"blob": string(big)},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for oversized metadata, got %v", err)
	}
}

func TestIngest_StoreFailureReturnsStoredFalse(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection timeout")
	svc, bus := newTestService(store, []rules.ScoringRule{baseRule("base_form_submit", "form_submit", 10)})

	anonID := uuid.New()
	resp, err := svc.Ingest(context.Background(), transport.IngestEventRequest{
		EventType:   "form_submit",
		AnonymousID: &anonID,
	})
	if err != nil {
		t.Fatalf("persistence failure must not fail the caller, got %v", err)
	}
	if resp.Stored || resp.Scored {
		t.Fatalf("expected stored=false scored=false, got %+v", resp)
	}
	if len(bus.byName("tracking.event.scored")) != 0 {
		t.Fatal("unstored event must not be published")
	}
}

// ---------------------------------------------------------------------------
// Identify / merge
// ---------------------------------------------------------------------------

func TestIdentify_MergeIsCommutative(t *testing.T) {
	// (anon 12, identity 0) and (anon 0, identity 12) both total 12/warm.
	run := func(anonScore, identityScore int) transport.IdentifyResponse {
		store := newFakeStore()
		snapshot := []rules.ScoringRule{baseRule("base_form_submit", "form_submit", 12)}
		svc, _ := newTestService(store, snapshot)

		anonID := uuid.New()
		if anonScore > 0 {
			ingest(t, svc, transport.IngestEventRequest{EventType: "form_submit", AnonymousID: &anonID})
		}

		identityID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("lead@example.com"))
		if identityScore > 0 {
			ingest(t, svc, transport.IngestEventRequest{EventType: "form_submit", LeadID: &identityID})
		}

		resp, err := svc.Identify(context.Background(), transport.IdentifyRequest{
			AnonymousID: anonID,
			Email:       "Lead@Example.com",
		})
		if err != nil {
			t.Fatalf("Identify returned error: %v", err)
		}
		return resp
	}

	a := run(12, 0)
	b := run(0, 12)

	if a.TotalIdentityScore != 12 || b.TotalIdentityScore != 12 {
		t.Fatalf("expected both merge orders to total 12, got %d and %d",
			a.TotalIdentityScore, b.TotalIdentityScore)
	}
	if a.Band != "warm" || b.Band != "warm" {
		t.Fatalf("expected band warm in both orders, got %s and %s", a.Band, b.Band)
	}
}

func TestIdentify_RepeatMergeRefused(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, []rules.ScoringRule{baseRule("base_form_submit", "form_submit", 12)})

	anonID := uuid.New()
	ingest(t, svc, transport.IngestEventRequest{EventType: "form_submit", AnonymousID: &anonID})

	req := transport.IdentifyRequest{AnonymousID: anonID, Email: "lead@example.com"}
	first, err := svc.Identify(context.Background(), req)
	if err != nil {
		t.Fatalf("first identify failed: %v", err)
	}
	if !first.Merged || first.TotalIdentityScore != 12 {
		t.Fatalf("unexpected first merge result %+v", first)
	}

	second, err := svc.Identify(context.Background(), req)
	if err != nil {
		t.Fatalf("second identify failed: %v", err)
	}
	if second.Merged {
		t.Fatal("repeat merge must be refused")
	}
	if second.TotalIdentityScore != 12 {
		t.Fatalf("repeat merge double-added: total %d", second.TotalIdentityScore)
	}
	// The refused response still reports the anonymous aggregate it refused.
	if second.PreviousAnonymousScore != 12 {
		t.Fatalf("expected previous anonymous score 12 on refusal, got %d", second.PreviousAnonymousScore)
	}
}

func TestIdentify_UsesIdentityBandHistory(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, []rules.ScoringRule{baseRule("base_pricing_view", "pricing_view", 5)})

	// Identity has already emitted at hot; merged total of 25 stays hot and
	// must not re-emit, even though the anonymous side never emitted hot.
	identityID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("lead@example.com"))
	for i := 0; i < 4; i++ {
		ingest(t, svc, transport.IngestEventRequest{EventType: "pricing_view", LeadID: &identityID})
	}
	if *store.rollups[identityID].LastEmittedBand != "hot" {
		t.Fatalf("setup: expected identity at hot, got %s", *store.rollups[identityID].LastEmittedBand)
	}

	anonID := uuid.New()
	ingest(t, svc, transport.IngestEventRequest{EventType: "pricing_view", AnonymousID: &anonID})

	before := len(store.signals)
	resp, err := svc.Identify(context.Background(), transport.IdentifyRequest{
		AnonymousID: anonID,
		Email:       "lead@example.com",
	})
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if resp.TotalIdentityScore != 25 {
		t.Fatalf("expected merged total 25, got %d", resp.TotalIdentityScore)
	}
	if resp.ThresholdEmitted {
		t.Fatal("same-band merge must not re-emit")
	}
	if len(store.signals) != before {
		t.Fatalf("expected no new signals, got %d -> %d", before, len(store.signals))
	}
}

// ---------------------------------------------------------------------------
// Recompute
// ---------------------------------------------------------------------------

func TestRecompute_RescoresAndRefreshesWithoutSignals(t *testing.T) {
	store := newFakeStore()
	snapshot := []rules.ScoringRule{baseRule("base_form_submit", "form_submit", 10)}
	provider := &fakeRuleProvider{snapshot: snapshot}
	bus := &fakeBus{}
	svc := New(store, provider, nil, bus, fakeConfig{}, logger.New("development"))

	anonID := uuid.New()
	resp, err := svc.Ingest(context.Background(), transport.IngestEventRequest{
		EventType:   "form_submit",
		AnonymousID: &anonID,
	})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	// Rule change applies retroactively through recompute.
	provider.snapshot = []rules.ScoringRule{baseRule("base_form_submit", "form_submit", 25)}

	signalsBefore := len(store.signals)
	result, err := svc.Recompute(context.Background(), transport.RecomputeRequest{})
	if err != nil {
		t.Fatalf("Recompute returned error: %v", err)
	}
	if result.Processed != 1 || result.Subjects != 1 {
		t.Fatalf("expected 1 event / 1 subject, got %+v", result)
	}
	if store.scores[resp.EventID].Score != 25 {
		t.Fatalf("expected re-scored value 25, got %d", store.scores[resp.EventID].Score)
	}
	if store.rollups[anonID].Score7d != 25 {
		t.Fatalf("expected rollup refreshed to 25, got %d", store.rollups[anonID].Score7d)
	}
	if len(store.signals) != signalsBefore {
		t.Fatal("maintenance recompute must not emit signals")
	}
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func TestAPIKeys_CreateAuthenticateRevoke(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, nil)
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, transport.CreateAPIKeyRequest{Name: "site tracker"})
	if err != nil {
		t.Fatalf("CreateAPIKey returned error: %v", err)
	}
	if created.Key == "" || created.Key[:4] != "trk_" {
		t.Fatalf("expected trk_ prefixed plaintext key, got %q", created.Key)
	}

	if err := svc.Authenticate(ctx, created.Key); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	if err := svc.Authenticate(ctx, "trk_bogus"); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized for bogus key, got %v", err)
	}

	if err := svc.RevokeAPIKey(ctx, created.ID); err != nil {
		t.Fatalf("RevokeAPIKey returned error: %v", err)
	}
	if err := svc.Authenticate(ctx, created.Key); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized after revoke, got %v", err)
	}
}
