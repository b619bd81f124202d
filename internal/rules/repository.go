// Package rules provides the scoring-rule store bounded context.
// It owns the active rule set read by the scoring engine and the
// qualification (stage/decay) configuration singleton.
package rules

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRuleNotFound = errors.New("scoring rule not found")

// Rule types.
const (
	RuleTypeBaseScore = "base_score"
	RuleTypeModifier  = "modifier"
)

// ModifierCondition is the named predicate evaluated against event metadata.
// Exactly one of Equals/Min applies; Field names the metadata key.
type ModifierCondition struct {
	Field  string   `json:"field"`
	Equals *string  `json:"equals,omitempty"`
	Min    *float64 `json:"min,omitempty"`
}

// ScoringRule is one row of the active rule set.
type ScoringRule struct {
	ID           uuid.UUID
	RuleKey      string
	RuleType     string
	EventType    *string
	Condition    *ModifierCondition
	Points       int
	IsHardIntent bool
	StageHint    *string
	IsActive     bool
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QualificationConfig is the singleton stage/decay configuration.
// Thresholds are ascending: M2Min <= M3Min <= M4Min <= M5Min.
type QualificationConfig struct {
	M2Min              int
	M3Min              int
	M4Min              int
	M5Min              int
	AutoPushThreshold  int
	DecayPointsPerWeek int
	UpdatedAt          time.Time
}

// Repository provides data access for scoring rules and qualification config.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new rules repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, rule_key, rule_type, event_type, modifier_condition, points,
		is_hard_intent, stage_hint, is_active, description, created_at, updated_at`

func scanRule(row pgx.Row) (ScoringRule, error) {
	var r ScoringRule
	var condition []byte
	err := row.Scan(
		&r.ID, &r.RuleKey, &r.RuleType, &r.EventType, &condition, &r.Points,
		&r.IsHardIntent, &r.StageHint, &r.IsActive, &r.Description, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return ScoringRule{}, err
	}
	if len(condition) > 0 {
		var cond ModifierCondition
		if err := json.Unmarshal(condition, &cond); err != nil {
			return ScoringRule{}, err
		}
		r.Condition = &cond
	}
	return r, nil
}

// ListActive returns a point-in-time projection of all active rules.
// Called fresh on every scoring pass; rules are never cached across calls.
func (r *Repository) ListActive(ctx context.Context) ([]ScoringRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM scoring_rules
		WHERE is_active = true
		ORDER BY rule_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScoringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

// List returns all rules including inactive ones (admin listing).
func (r *Repository) List(ctx context.Context) ([]ScoringRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM scoring_rules
		ORDER BY rule_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScoringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

// GetByKey returns a single rule by its unique key.
func (r *Repository) GetByKey(ctx context.Context, ruleKey string) (ScoringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM scoring_rules
		WHERE rule_key = $1
	`, ruleKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return ScoringRule{}, ErrRuleNotFound
	}
	return rule, err
}

// UpdateRuleParams carries the admin-updatable rule fields.
// Nil pointers leave the column untouched.
type UpdateRuleParams struct {
	Points      *int
	IsActive    *bool
	Description *string
}

// Update patches a rule and returns the updated row.
func (r *Repository) Update(ctx context.Context, ruleKey string, p UpdateRuleParams) (ScoringRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `
		UPDATE scoring_rules
		SET points = COALESCE($2, points),
		    is_active = COALESCE($3, is_active),
		    description = COALESCE($4, description),
		    updated_at = now()
		WHERE rule_key = $1
		RETURNING `+ruleColumns+`
	`, ruleKey, p.Points, p.IsActive, p.Description))
	if errors.Is(err, pgx.ErrNoRows) {
		return ScoringRule{}, ErrRuleNotFound
	}
	return rule, err
}

// SeedRule is a default rule loaded from the embedded seed file.
type SeedRule struct {
	RuleKey      string             `yaml:"rule_key"`
	RuleType     string             `yaml:"rule_type"`
	EventType    *string            `yaml:"event_type"`
	Condition    *ModifierCondition `yaml:"condition"`
	Points       int                `yaml:"points"`
	IsHardIntent bool               `yaml:"is_hard_intent"`
	StageHint    *string            `yaml:"stage_hint"`
	Description  string             `yaml:"description"`
}

// Seed inserts default rules, skipping any rule_key that already exists.
func (r *Repository) Seed(ctx context.Context, seeds []SeedRule) error {
	for _, s := range seeds {
		var condition []byte
		if s.Condition != nil {
			data, err := json.Marshal(s.Condition)
			if err != nil {
				return err
			}
			condition = data
		}
		_, err := r.pool.Exec(ctx, `
			INSERT INTO scoring_rules
				(rule_key, rule_type, event_type, modifier_condition, points,
				 is_hard_intent, stage_hint, is_active, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8)
			ON CONFLICT (rule_key) DO NOTHING
		`, s.RuleKey, s.RuleType, s.EventType, condition, s.Points, s.IsHardIntent, s.StageHint, s.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetConfig returns the qualification config singleton.
func (r *Repository) GetConfig(ctx context.Context) (QualificationConfig, error) {
	var cfg QualificationConfig
	err := r.pool.QueryRow(ctx, `
		SELECT m2_min, m3_min, m4_min, m5_min, auto_push_threshold, decay_points_per_week, updated_at
		FROM qualification_config
		WHERE id = 1
	`).Scan(&cfg.M2Min, &cfg.M3Min, &cfg.M4Min, &cfg.M5Min, &cfg.AutoPushThreshold, &cfg.DecayPointsPerWeek, &cfg.UpdatedAt)
	return cfg, err
}

// SaveConfig overwrites the qualification config singleton.
func (r *Repository) SaveConfig(ctx context.Context, cfg QualificationConfig) (QualificationConfig, error) {
	var saved QualificationConfig
	err := r.pool.QueryRow(ctx, `
		UPDATE qualification_config
		SET m2_min = $1, m3_min = $2, m4_min = $3, m5_min = $4,
		    auto_push_threshold = $5, decay_points_per_week = $6, updated_at = now()
		WHERE id = 1
		RETURNING m2_min, m3_min, m4_min, m5_min, auto_push_threshold, decay_points_per_week, updated_at
	`, cfg.M2Min, cfg.M3Min, cfg.M4Min, cfg.M5Min, cfg.AutoPushThreshold, cfg.DecayPointsPerWeek).Scan(
		&saved.M2Min, &saved.M3Min, &saved.M4Min, &saved.M5Min,
		&saved.AutoPushThreshold, &saved.DecayPointsPerWeek, &saved.UpdatedAt,
	)
	return saved, err
}
