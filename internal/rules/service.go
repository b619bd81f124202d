package rules

import (
	"context"
	_ "embed"
	"fmt"

	"leadintent_backend/platform/apperr"
	"leadintent_backend/platform/logger"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var seedFile []byte

type seedDocument struct {
	Rules []SeedRule `yaml:"rules"`
}

// Service manages the scoring rule set and qualification configuration.
type Service struct {
	repo   *Repository
	logger *logger.Logger
}

// NewService creates a new rules service.
func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log}
}

// SeedDefaults loads the embedded default rule set into the store.
// Existing rule keys are left untouched so admin edits survive restarts.
func (s *Service) SeedDefaults(ctx context.Context) error {
	var doc seedDocument
	if err := yaml.Unmarshal(seedFile, &doc); err != nil {
		return fmt.Errorf("parse rule seed: %w", err)
	}
	if err := s.repo.Seed(ctx, doc.Rules); err != nil {
		return fmt.Errorf("seed scoring rules: %w", err)
	}
	s.logger.Info("scoring rule seed applied", "rules", len(doc.Rules))
	return nil
}

// ActiveSnapshot returns the current active rule set plus the qualification
// config as one consistent read. The scoring path calls this per batch; a rule
// change applies to subsequently scored events only, never retroactively.
func (s *Service) ActiveSnapshot(ctx context.Context) ([]ScoringRule, QualificationConfig, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, QualificationConfig{}, apperr.Wrap(apperr.KindInternal, "failed to load scoring rules", err)
	}
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return nil, QualificationConfig{}, apperr.Wrap(apperr.KindInternal, "failed to load qualification config", err)
	}
	return active, cfg, nil
}

// ListRules returns all rules, active and inactive, for the admin surface.
func (s *Service) ListRules(ctx context.Context) ([]ScoringRule, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list scoring rules", err)
	}
	return list, nil
}

// UpdateRule patches an existing rule. Point values must be non-negative;
// rule keys, types and conditions are immutable after seeding.
func (s *Service) UpdateRule(ctx context.Context, ruleKey string, params UpdateRuleParams) (ScoringRule, error) {
	if params.Points != nil && *params.Points < 0 {
		return ScoringRule{}, apperr.Validation("points must be non-negative")
	}
	if params.Description != nil && len(*params.Description) > 500 {
		return ScoringRule{}, apperr.Validation("description must be at most 500 characters")
	}

	rule, err := s.repo.Update(ctx, ruleKey, params)
	if err != nil {
		if err == ErrRuleNotFound {
			return ScoringRule{}, apperr.NotFound("scoring rule not found")
		}
		return ScoringRule{}, apperr.Wrap(apperr.KindInternal, "failed to update scoring rule", err)
	}

	s.logger.Info("scoring rule updated",
		"ruleKey", rule.RuleKey,
		"points", rule.Points,
		"isActive", rule.IsActive)
	return rule, nil
}

// GetConfig returns the qualification config singleton.
func (s *Service) GetConfig(ctx context.Context) (QualificationConfig, error) {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return QualificationConfig{}, apperr.Wrap(apperr.KindInternal, "failed to load qualification config", err)
	}
	return cfg, nil
}

// UpdateConfigParams carries a partial qualification config update.
type UpdateConfigParams struct {
	M2Min              *int
	M3Min              *int
	M4Min              *int
	M5Min              *int
	AutoPushThreshold  *int
	DecayPointsPerWeek *int
}

// UpdateConfig merges the partial update onto the stored config, validates the
// result and saves it. Thresholds must be non-negative and ascending.
func (s *Service) UpdateConfig(ctx context.Context, params UpdateConfigParams) (QualificationConfig, error) {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return QualificationConfig{}, apperr.Wrap(apperr.KindInternal, "failed to load qualification config", err)
	}

	if params.M2Min != nil {
		cfg.M2Min = *params.M2Min
	}
	if params.M3Min != nil {
		cfg.M3Min = *params.M3Min
	}
	if params.M4Min != nil {
		cfg.M4Min = *params.M4Min
	}
	if params.M5Min != nil {
		cfg.M5Min = *params.M5Min
	}
	if params.AutoPushThreshold != nil {
		cfg.AutoPushThreshold = *params.AutoPushThreshold
	}
	if params.DecayPointsPerWeek != nil {
		cfg.DecayPointsPerWeek = *params.DecayPointsPerWeek
	}

	if err := validateConfig(cfg); err != nil {
		return QualificationConfig{}, err
	}

	saved, err := s.repo.SaveConfig(ctx, cfg)
	if err != nil {
		return QualificationConfig{}, apperr.Wrap(apperr.KindInternal, "failed to save qualification config", err)
	}

	s.logger.Info("qualification config updated",
		"m2Min", saved.M2Min,
		"m5Min", saved.M5Min,
		"autoPushThreshold", saved.AutoPushThreshold,
		"decayPointsPerWeek", saved.DecayPointsPerWeek)
	return saved, nil
}

func validateConfig(cfg QualificationConfig) error {
	if cfg.M2Min < 0 || cfg.DecayPointsPerWeek < 0 || cfg.AutoPushThreshold < 0 {
		return apperr.Validation("config values must be non-negative")
	}
	if cfg.M2Min > cfg.M3Min || cfg.M3Min > cfg.M4Min || cfg.M4Min > cfg.M5Min {
		return apperr.Validation("stage thresholds must be ascending: m2_min <= m3_min <= m4_min <= m5_min")
	}
	return nil
}
