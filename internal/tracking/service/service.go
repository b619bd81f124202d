// Package service implements the tracking orchestration: ingest, scoring
// pipeline, identity merge, maintenance recompute and ingest key management.
package service

import (
	"context"
	"time"

	"leadintent_backend/internal/events"
	"leadintent_backend/internal/rules"
	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/platform/config"
	"leadintent_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the tracking service depends on.
type Store interface {
	InsertEventWithScore(ctx context.Context, event repository.Event, score repository.Score) (repository.InsertResult, error)
	UpsertScore(ctx context.Context, score repository.Score) error
	ListEventsBySubject(ctx context.Context, subjectID uuid.UUID) ([]repository.Event, error)
	ListEventsSince(ctx context.Context, since time.Time) ([]repository.Event, error)

	GetRollup(ctx context.Context, subjectID uuid.UUID) (repository.Rollup, bool, error)
	RecomputeRollup(ctx context.Context, subjectID uuid.UUID, now time.Time) (repository.Rollup, error)
	ListSubjectsWithEventsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error)
	EmitSignal(ctx context.Context, signal repository.IntentSignal) error

	UpsertIdentity(ctx context.Context, email string, name, phone, source *string) (repository.Identity, bool, error)
	MergeAnonymous(ctx context.Context, anonymousID, identityID uuid.UUID, now time.Time) (repository.MergeResult, error)

	CreateAPIKey(ctx context.Context, key repository.APIKey) error
	FindActiveAPIKeyByHash(ctx context.Context, keyHash string) (repository.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]repository.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// RuleProvider supplies the active rule snapshot. Read fresh on every scoring
// pass so rule edits apply to the very next event.
type RuleProvider interface {
	ActiveSnapshot(ctx context.Context) ([]rules.ScoringRule, rules.QualificationConfig, error)
}

// PayloadArchiver stores raw event payloads off the hot path. Best effort;
// failures must not affect ingestion.
type PayloadArchiver interface {
	Archive(ctx context.Context, eventID uuid.UUID, payload map[string]any) error
}

// Service orchestrates the tracking bounded context.
type Service struct {
	store    Store
	rules    RuleProvider
	archiver PayloadArchiver
	bus      events.Bus
	logger   *logger.Logger
	cfg      config.TrackingConfig
	now      func() time.Time
}

// New creates the tracking service. archiver may be nil when archiving is
// disabled.
func New(store Store, ruleProvider RuleProvider, archiver PayloadArchiver, bus events.Bus, cfg config.TrackingConfig, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		rules:    ruleProvider,
		archiver: archiver,
		bus:      bus,
		logger:   log,
		cfg:      cfg,
		now:      time.Now,
	}
}
