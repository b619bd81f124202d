package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IntentSignal is one append-only threshold emission.
type IntentSignal struct {
	ID            uuid.UUID
	SubjectID     uuid.UUID
	LeadID        *uuid.UUID
	Band          string
	Score7d       int
	Score30d      int
	LastEventType *string
	LastEventAt   *time.Time
	Payload       map[string]any
	EmittedAt     time.Time
}

// ErrSignalSuperseded reports that a concurrent emitter already advanced the
// subject's band pointer to this band or higher; no signal row was written.
var ErrSignalSuperseded = errors.New("signal superseded by a concurrent emission")

// EmitSignal appends an intent signal and advances the subject's
// last-emitted-band pointer in the same transaction. The caller decides to
// emit from a snapshot read, so the pointer advance re-checks the ordering
// under the row lock: it only matches when the new band is strictly higher
// than the stored one. A concurrent emitter that got there first makes this
// update match zero rows; the transaction rolls back without a signal row and
// the caller gets ErrSignalSuperseded. That conditional write is what keeps
// each subject's emitted band sequence strictly increasing.
func (r *Repository) EmitSignal(ctx context.Context, signal IntentSignal) error {
	payload, err := json.Marshal(signal.Payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE lead_rollups
		SET last_emitted_band = $2, updated_at = now()
		WHERE subject_id = $1
		  AND (last_emitted_band IS NULL
		       OR array_position(ARRAY['cold','warm','hot','critical'], last_emitted_band)
		        < array_position(ARRAY['cold','warm','hot','critical'], $2))
	`, signal.SubjectID, signal.Band)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSignalSuperseded
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO intent_signals
			(id, subject_id, lead_id, band, score_7d, score_30d,
			 last_event_type, last_event_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, signal.ID, signal.SubjectID, signal.LeadID, signal.Band, signal.Score7d,
		signal.Score30d, signal.LastEventType, signal.LastEventAt, payload)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListSignalsBySubject returns a subject's emissions, oldest first.
func (r *Repository) ListSignalsBySubject(ctx context.Context, subjectID uuid.UUID) ([]IntentSignal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject_id, lead_id, band, score_7d, score_30d,
		       last_event_type, last_event_at, payload, emitted_at
		FROM intent_signals
		WHERE subject_id = $1
		ORDER BY emitted_at
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []IntentSignal
	for rows.Next() {
		var s IntentSignal
		var payload []byte
		err := rows.Scan(&s.ID, &s.SubjectID, &s.LeadID, &s.Band, &s.Score7d,
			&s.Score30d, &s.LastEventType, &s.LastEventAt, &payload, &s.EmittedAt)
		if err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &s.Payload); err != nil {
				return nil, err
			}
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
