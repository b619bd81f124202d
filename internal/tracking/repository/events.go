package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Event is a stored tracking event. SubjectID is the lead id when the event
// is identified, otherwise the anonymous id.
type Event struct {
	ID          uuid.UUID
	SubjectID   uuid.UUID
	LeadID      *uuid.UUID
	AnonymousID *uuid.UUID
	EventType   string
	EventSource string
	OccurredAt  time.Time
	Metadata    map[string]any
	DedupeKey   *string
	CreatedAt   time.Time
}

// Score is the 1:1 computed score for an event, upserted by event id.
type Score struct {
	EventID      uuid.UUID
	SubjectID    uuid.UUID
	Score        int
	Confidence   float64
	Reasons      []string
	ModelVersion string
}

// InsertResult reports what the atomic event+score write did.
type InsertResult struct {
	EventID      uuid.UUID
	Deduplicated bool
}

// InsertEventWithScore stores an event and its computed score in one
// transaction. At-least-once delivery is absorbed here: when the
// (event_source, dedupe_key) pair already exists the existing event id is
// returned and no second row is created. The score upsert is keyed by
// event_id, so re-scoring the same event replaces rather than duplicates.
func (r *Repository) InsertEventWithScore(ctx context.Context, event Event, score Score) (InsertResult, error) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return InsertResult{}, fmt.Errorf("marshal event metadata: %w", err)
	}
	reasons, err := json.Marshal(score.Reasons)
	if err != nil {
		return InsertResult{}, fmt.Errorf("marshal score reasons: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return InsertResult{}, err
	}
	defer tx.Rollback(ctx)

	result := InsertResult{EventID: event.ID}

	err = tx.QueryRow(ctx, `
		INSERT INTO tracking_events
			(id, subject_id, lead_id, anonymous_id, event_type, event_source,
			 occurred_at, metadata, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_source, dedupe_key) WHERE dedupe_key IS NOT NULL
		DO NOTHING
		RETURNING id
	`, event.ID, event.SubjectID, event.LeadID, event.AnonymousID, event.EventType,
		event.EventSource, event.OccurredAt, metadata, event.DedupeKey).Scan(&result.EventID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate delivery: resolve the winning row and report the dedupe.
		result.Deduplicated = true
		err = tx.QueryRow(ctx, `
			SELECT id FROM tracking_events
			WHERE event_source = $1 AND dedupe_key = $2
		`, event.EventSource, *event.DedupeKey).Scan(&result.EventID)
	}
	if err != nil {
		return InsertResult{}, err
	}

	if !result.Deduplicated {
		_, err = tx.Exec(ctx, `
			INSERT INTO event_scores
				(event_id, subject_id, score, confidence, reasons, model_version)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_id) DO UPDATE SET
				score = EXCLUDED.score,
				confidence = EXCLUDED.confidence,
				reasons = EXCLUDED.reasons,
				model_version = EXCLUDED.model_version,
				computed_at = now()
		`, result.EventID, score.SubjectID, score.Score, score.Confidence, reasons, score.ModelVersion)
		if err != nil {
			return InsertResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return InsertResult{}, err
	}
	return result, nil
}

// UpsertScore replaces the stored score for an event (recompute path).
func (r *Repository) UpsertScore(ctx context.Context, score Score) error {
	reasons, err := json.Marshal(score.Reasons)
	if err != nil {
		return fmt.Errorf("marshal score reasons: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO event_scores
			(event_id, subject_id, score, confidence, reasons, model_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO UPDATE SET
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			reasons = EXCLUDED.reasons,
			model_version = EXCLUDED.model_version,
			computed_at = now()
	`, score.EventID, score.SubjectID, score.Score, score.Confidence, reasons, score.ModelVersion)
	return err
}

const eventColumns = `id, subject_id, lead_id, anonymous_id, event_type, event_source,
		occurred_at, metadata, dedupe_key, created_at`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	var metadata []byte
	err := row.Scan(&e.ID, &e.SubjectID, &e.LeadID, &e.AnonymousID, &e.EventType,
		&e.EventSource, &e.OccurredAt, &metadata, &e.DedupeKey, &e.CreatedAt)
	if err != nil {
		return Event{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return Event{}, err
		}
	}
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var result []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ListEventsBySubject returns all events for a subject, oldest first.
func (r *Repository) ListEventsBySubject(ctx context.Context, subjectID uuid.UUID) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM tracking_events
		WHERE subject_id = $1
		ORDER BY occurred_at
	`, subjectID)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ListEventsSince returns all events with occurred_at after the cutoff,
// oldest first. Used by the maintenance recompute.
func (r *Repository) ListEventsSince(ctx context.Context, since time.Time) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM tracking_events
		WHERE occurred_at >= $1
		ORDER BY occurred_at
	`, since)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}
