package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Rollup is the per-subject windowed aggregate. LastEmittedBand is the
// hysteresis state for threshold emission; MergedInto marks an anonymous
// rollup that has been folded into an identity (kept for audit).
type Rollup struct {
	SubjectID       uuid.UUID
	LeadID          *uuid.UUID
	Score7d         int
	Score30d        int
	TotalScore      int
	LastEventAt     *time.Time
	LastEmittedBand *string
	MergedInto      *uuid.UUID
	UpdatedAt       time.Time
}

const rollupColumns = `subject_id, lead_id, score_7d, score_30d, total_score,
		last_event_at, last_emitted_band, merged_into, updated_at`

func scanRollup(row pgx.Row) (Rollup, error) {
	var ro Rollup
	err := row.Scan(&ro.SubjectID, &ro.LeadID, &ro.Score7d, &ro.Score30d, &ro.TotalScore,
		&ro.LastEventAt, &ro.LastEmittedBand, &ro.MergedInto, &ro.UpdatedAt)
	return ro, err
}

// GetRollup returns the rollup for a subject. The bool reports existence.
func (r *Repository) GetRollup(ctx context.Context, subjectID uuid.UUID) (Rollup, bool, error) {
	ro, err := scanRollup(r.pool.QueryRow(ctx, `
		SELECT `+rollupColumns+`
		FROM lead_rollups
		WHERE subject_id = $1
	`, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rollup{}, false, nil
	}
	if err != nil {
		return Rollup{}, false, err
	}
	return ro, true, nil
}

// RecomputeRollup rebuilds a subject's windowed sums from the score rows and
// upserts the rollup. Always a full recompute from source, never an
// incremental delta: concurrent writers then converge on a value consistent
// with all committed scores, and retroactive rule changes cannot cause drift.
// last_emitted_band and merged_into are preserved across recomputes.
func (r *Repository) RecomputeRollup(ctx context.Context, subjectID uuid.UUID, now time.Time) (Rollup, error) {
	ro, err := scanRollup(r.pool.QueryRow(ctx, `
		INSERT INTO lead_rollups (subject_id, lead_id, score_7d, score_30d, total_score, last_event_at, updated_at)
		SELECT $1,
			(SELECT lead_id FROM tracking_events
			 WHERE subject_id = $1 AND lead_id IS NOT NULL
			 ORDER BY occurred_at DESC LIMIT 1),
			COALESCE(SUM(s.score) FILTER (WHERE e.occurred_at > $2 - interval '7 days'), 0),
			COALESCE(SUM(s.score) FILTER (WHERE e.occurred_at > $2 - interval '30 days'), 0),
			COALESCE(SUM(s.score), 0),
			MAX(e.occurred_at),
			now()
		FROM tracking_events e
		LEFT JOIN event_scores s ON s.event_id = e.id
		WHERE e.subject_id = $1
		ON CONFLICT (subject_id) DO UPDATE SET
			lead_id = COALESCE(EXCLUDED.lead_id, lead_rollups.lead_id),
			score_7d = EXCLUDED.score_7d,
			score_30d = EXCLUDED.score_30d,
			total_score = EXCLUDED.total_score,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = now()
		RETURNING `+rollupColumns+`
	`, subjectID, now))
	return ro, err
}

// ListSubjectsWithEventsSince returns the distinct subjects that have at
// least one event after the cutoff (recompute fan-out).
func (r *Repository) ListSubjectsWithEventsSince(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT subject_id
		FROM tracking_events
		WHERE occurred_at >= $1
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		subjects = append(subjects, id)
	}
	return subjects, rows.Err()
}
