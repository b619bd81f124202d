package rules

import (
	"context"
	"testing"

	"leadintent_backend/platform/apperr"
	"leadintent_backend/platform/logger"

	"gopkg.in/yaml.v3"
)

func TestUpdateRule_RejectsInvalidInput(t *testing.T) {
	svc := NewService(nil, logger.New("development"))

	negative := -5
	_, err := svc.UpdateRule(context.Background(), "base_page_view", UpdateRuleParams{Points: &negative})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for negative points, got %v", err)
	}

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}
	desc := string(long)
	_, err = svc.UpdateRule(context.Background(), "base_page_view", UpdateRuleParams{Description: &desc})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for over-long description, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     QualificationConfig
		wantErr bool
	}{
		{"ascending", QualificationConfig{M2Min: 5, M3Min: 15, M4Min: 30, M5Min: 50, AutoPushThreshold: 40, DecayPointsPerWeek: 2}, false},
		{"equal thresholds allowed", QualificationConfig{M2Min: 10, M3Min: 10, M4Min: 10, M5Min: 10}, false},
		{"m3 below m2", QualificationConfig{M2Min: 15, M3Min: 5, M4Min: 30, M5Min: 50}, true},
		{"m5 below m4", QualificationConfig{M2Min: 5, M3Min: 15, M4Min: 50, M5Min: 30}, true},
		{"negative decay", QualificationConfig{M2Min: 5, M3Min: 15, M4Min: 30, M5Min: 50, DecayPointsPerWeek: -1}, true},
		{"negative threshold", QualificationConfig{M2Min: 5, M3Min: 15, M4Min: 30, M5Min: 50, AutoPushThreshold: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if tt.wantErr && !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSeedFileParses(t *testing.T) {
	var doc seedDocument
	if err := yaml.Unmarshal(seedFile, &doc); err != nil {
		t.Fatalf("embedded seed does not parse: %v", err)
	}
	if len(doc.Rules) == 0 {
		t.Fatal("embedded seed contains no rules")
	}

	byKey := make(map[string]SeedRule, len(doc.Rules))
	for _, rule := range doc.Rules {
		if rule.RuleKey == "" {
			t.Fatal("seed rule with empty rule_key")
		}
		if _, dup := byKey[rule.RuleKey]; dup {
			t.Fatalf("duplicate seed rule key %q", rule.RuleKey)
		}
		if rule.Points < 0 {
			t.Fatalf("seed rule %q has negative points", rule.RuleKey)
		}
		byKey[rule.RuleKey] = rule
	}

	trial, ok := byKey["base_trial_signup"]
	if !ok {
		t.Fatal("seed is missing base_trial_signup")
	}
	if !trial.IsHardIntent || trial.StageHint == nil || *trial.StageHint != "M5" {
		t.Fatalf("trial signup must be a hard intent rule with stage hint M5, got %+v", trial)
	}
}
