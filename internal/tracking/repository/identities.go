package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Identity is an identified subject, keyed by normalized email.
type Identity struct {
	ID          uuid.UUID
	Email       string
	Name        *string
	Phone       *string
	Source      *string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// UpsertIdentity finds or creates the identity for a normalized email and
// refreshes its last-seen bookkeeping. The bool reports whether the row was
// created by this call.
func (r *Repository) UpsertIdentity(ctx context.Context, email string, name, phone, source *string) (Identity, bool, error) {
	var identity Identity
	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identities (id, email, name, phone, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, identities.name),
			phone = COALESCE(EXCLUDED.phone, identities.phone),
			last_seen_at = now()
		RETURNING id, email, name, phone, source, first_seen_at, last_seen_at,
		          (created_at = last_seen_at) AS created
	`, uuid.New(), email, name, phone, source).Scan(
		&identity.ID, &identity.Email, &identity.Name, &identity.Phone,
		&identity.Source, &identity.FirstSeenAt, &identity.LastSeenAt, &created)
	return identity, created, err
}

// MergeResult summarizes the anonymous-to-identity merge mutation.
type MergeResult struct {
	RepointedEvents    int
	PrevAnonymousScore int
	PrevIdentityScore  int
	TotalIdentityScore int
	Score7d            int
	Score30d           int
	// PreMergeEmittedBand is the identity's emitted band before the merge;
	// the caller uses it, not the anonymous subject's band, as emission
	// history.
	PreMergeEmittedBand *string
}

// MergeAnonymous folds an anonymous subject's activity into an identity as
// one transaction: re-point events and scores still referencing the anonymous
// id, add the anonymous aggregate onto the identity's, and mark the anonymous
// rollup as merged. The "lead_id IS NULL" filter makes the backfill safe to
// run twice; the aggregate addition is not, which is why the anonymous rollup
// gets a merged_into marker the service checks before merging again. The
// anonymous rollup row itself is kept for audit.
func (r *Repository) MergeAnonymous(ctx context.Context, anonymousID, identityID uuid.UUID, now time.Time) (MergeResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE tracking_events
		SET lead_id = $2, subject_id = $2
		WHERE subject_id = $1 AND lead_id IS NULL
	`, anonymousID, identityID)
	if err != nil {
		return MergeResult{}, err
	}
	result := MergeResult{RepointedEvents: int(tag.RowsAffected())}

	_, err = tx.Exec(ctx, `
		UPDATE event_scores SET subject_id = $2 WHERE subject_id = $1
	`, anonymousID, identityID)
	if err != nil {
		return MergeResult{}, err
	}

	var anonTotal int
	var anonLastEvent *time.Time
	err = tx.QueryRow(ctx, `
		SELECT total_score, last_event_at FROM lead_rollups WHERE subject_id = $1
	`, anonymousID).Scan(&anonTotal, &anonLastEvent)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return MergeResult{}, err
	}
	result.PrevAnonymousScore = anonTotal

	var identTotal int
	var identLastEvent *time.Time
	err = tx.QueryRow(ctx, `
		SELECT total_score, last_event_at, last_emitted_band
		FROM lead_rollups WHERE subject_id = $1
	`, identityID).Scan(&identTotal, &identLastEvent, &result.PreMergeEmittedBand)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return MergeResult{}, err
	}
	result.PrevIdentityScore = identTotal
	result.TotalIdentityScore = identTotal + anonTotal

	lastEvent := maxTime(anonLastEvent, identLastEvent)

	// Windowed sums come from the freshly re-pointed score rows; the total is
	// the additive snapshot of the two aggregates.
	err = tx.QueryRow(ctx, `
		INSERT INTO lead_rollups (subject_id, lead_id, score_7d, score_30d, total_score, last_event_at, updated_at)
		SELECT $1, $1,
			COALESCE(SUM(s.score) FILTER (WHERE e.occurred_at > $3 - interval '7 days'), 0),
			COALESCE(SUM(s.score) FILTER (WHERE e.occurred_at > $3 - interval '30 days'), 0),
			$2,
			$4,
			now()
		FROM tracking_events e
		LEFT JOIN event_scores s ON s.event_id = e.id
		WHERE e.subject_id = $1
		ON CONFLICT (subject_id) DO UPDATE SET
			lead_id = $1,
			score_7d = EXCLUDED.score_7d,
			score_30d = EXCLUDED.score_30d,
			total_score = EXCLUDED.total_score,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = now()
		RETURNING score_7d, score_30d
	`, identityID, result.TotalIdentityScore, now, lastEvent).Scan(&result.Score7d, &result.Score30d)
	if err != nil {
		return MergeResult{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE lead_rollups SET merged_into = $2, updated_at = now()
		WHERE subject_id = $1
	`, anonymousID, identityID)
	if err != nil {
		return MergeResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeResult{}, err
	}
	return result, nil
}

func maxTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}
