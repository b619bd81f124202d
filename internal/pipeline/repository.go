// Package pipeline owns the marketing lead lifecycle: decay-based stage
// classification and the one-shot auto-push into the sales queue.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLeadNotFound = errors.New("marketing lead not found")

// MarketingLead tracks a lead's qualification state. SalesRef is set at most
// once; a non-nil value means the lead has been pushed.
type MarketingLead struct {
	ID              uuid.UUID
	Stage           string
	DecayedScore    int
	AutoPushEnabled bool
	SalesRef        *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository provides pipeline data access.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new pipeline repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, stage, decayed_score, auto_push_enabled, sales_ref, created_at, updated_at`

func scanLead(row pgx.Row) (MarketingLead, error) {
	var l MarketingLead
	err := row.Scan(&l.ID, &l.Stage, &l.DecayedScore, &l.AutoPushEnabled,
		&l.SalesRef, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// GetLead returns a marketing lead by id.
func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (MarketingLead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM marketing_leads WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return MarketingLead{}, ErrLeadNotFound
	}
	return lead, err
}

// UpsertStage creates the lead row if needed and records the freshly
// classified stage and decayed score. Returns the previous stage ("" when the
// row is new) so the caller can detect transitions.
func (r *Repository) UpsertStage(ctx context.Context, id uuid.UUID, stage string, decayedScore int) (MarketingLead, string, error) {
	var lead MarketingLead
	var prevStage string
	err := r.pool.QueryRow(ctx, `
		WITH previous AS (
			SELECT stage FROM marketing_leads WHERE id = $1
		)
		INSERT INTO marketing_leads (id, stage, decayed_score)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			decayed_score = EXCLUDED.decayed_score,
			updated_at = now()
		RETURNING `+leadColumns+`, COALESCE((SELECT stage FROM previous), '')
	`, id, stage, decayedScore).Scan(&lead.ID, &lead.Stage, &lead.DecayedScore,
		&lead.AutoPushEnabled, &lead.SalesRef, &lead.CreatedAt, &lead.UpdatedAt, &prevStage)
	if err != nil {
		return MarketingLead{}, "", err
	}
	return lead, prevStage, nil
}

// PushResult reports the outcome of a sales-queue push attempt.
type PushResult struct {
	Pushed   bool
	SalesRef *uuid.UUID
}

// PushToSales performs the one-shot push as a single transaction: a sales
// queue record, a follow-up task, the sales_ref gate on the lead, and an
// audit event. The gate is the conditional UPDATE: a concurrent or repeated
// push matches zero rows, the transaction rolls back, and no duplicate
// downstream record survives.
func (r *Repository) PushToSales(ctx context.Context, leadID uuid.UUID, stage string, score int) (PushResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return PushResult{}, err
	}
	defer tx.Rollback(ctx)

	salesRef := uuid.New()

	tag, err := tx.Exec(ctx, `
		UPDATE marketing_leads
		SET sales_ref = $2, updated_at = now()
		WHERE id = $1 AND sales_ref IS NULL
	`, leadID, salesRef)
	if err != nil {
		return PushResult{}, err
	}
	if tag.RowsAffected() == 0 {
		return PushResult{Pushed: false}, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sales_queue (id, lead_id, stage, score)
		VALUES ($1, $2, $3, $4)
	`, salesRef, leadID, stage, score)
	if err != nil {
		return PushResult{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO followup_tasks (id, lead_id, title, due_at)
		VALUES ($1, $2, $3, now() + interval '1 day')
	`, uuid.New(), leadID, fmt.Sprintf("Follow up qualified lead (stage %s)", stage))
	if err != nil {
		return PushResult{}, err
	}

	if err := r.appendAudit(ctx, tx, leadID, "auto_pushed", map[string]any{
		"sales_ref": salesRef.String(),
		"stage":     stage,
		"score":     score,
	}); err != nil {
		return PushResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PushResult{}, err
	}
	return PushResult{Pushed: true, SalesRef: &salesRef}, nil
}

// RecordStageChange appends a stage transition to the audit trail.
func (r *Repository) RecordStageChange(ctx context.Context, leadID uuid.UUID, oldStage, newStage string) error {
	return r.appendAudit(ctx, r.pool, leadID, "stage_changed", map[string]any{
		"old_stage": oldStage,
		"new_stage": newStage,
	})
}

// execer abstracts the pool and an open transaction for audit writes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *Repository) appendAudit(ctx context.Context, exec execer, leadID uuid.UUID, action string, detail map[string]any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, `
		INSERT INTO audit_events (id, lead_id, action, detail)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), leadID, action, payload)
	return err
}
