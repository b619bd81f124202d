package scoring

import (
	"testing"
	"time"

	"leadintent_backend/internal/rules"
)

func decaySnapshot() []rules.ScoringRule {
	return []rules.ScoringRule{
		{
			RuleKey:   "base_form_submit",
			RuleType:  rules.RuleTypeBaseScore,
			EventType: strPtr("form_submit"),
			Points:    10,
		},
		{
			RuleKey:      "base_demo_request",
			RuleType:     rules.RuleTypeBaseScore,
			EventType:    strPtr("demo_request"),
			Points:       15,
			IsHardIntent: true,
			StageHint:    strPtr("M5"),
		},
	}
}

func decayConfig() rules.QualificationConfig {
	return rules.QualificationConfig{
		M2Min:              5,
		M3Min:              15,
		M4Min:              30,
		M5Min:              50,
		AutoPushThreshold:  40,
		DecayPointsPerWeek: 2,
	}
}

func TestDecayedStage_LinearWeeklyDecay(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		age  time.Duration
		want int
	}{
		{"fresh event keeps full points", 0, 10},
		{"six days is not a full week", 6 * 24 * time.Hour, 10},
		{"one full week decays once", 7 * 24 * time.Hour, 8},
		{"three weeks decays three times", 21 * 24 * time.Hour, 4},
		{"old event floors at zero", 100 * 24 * time.Hour, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := []HistoricalEvent{{EventType: "form_submit", OccurredAt: now.Add(-tc.age)}}
			result := DecayedStage(events, decaySnapshot(), decayConfig(), now)
			if result.DecayedScore != tc.want {
				t.Fatalf("expected decayed score %d, got %d", tc.want, result.DecayedScore)
			}
		})
	}
}

func TestDecayedStage_StageLadder(t *testing.T) {
	now := time.Now()
	cfg := decayConfig()

	// Each fresh form_submit is worth 10 undecayed points.
	cases := []struct {
		events int
		want   Stage
	}{
		{0, StageM1},
		{1, StageM2}, // 10 >= m2_min(5)
		{2, StageM3}, // 20 >= m3_min(15)
		{3, StageM4}, // 30 >= m4_min(30)
		{5, StageM5}, // 50 >= m5_min(50)
	}
	for _, tc := range cases {
		events := make([]HistoricalEvent, tc.events)
		for i := range events {
			events[i] = HistoricalEvent{EventType: "form_submit", OccurredAt: now}
		}
		result := DecayedStage(events, decaySnapshot(), cfg, now)
		if result.Stage != tc.want {
			t.Errorf("%d events: expected stage %s, got %s (score %d)",
				tc.events, tc.want, result.Stage, result.DecayedScore)
		}
	}
}

func TestDecayedStage_HardIntentForcesM5(t *testing.T) {
	now := time.Now()
	events := []HistoricalEvent{{EventType: "demo_request", OccurredAt: now}}

	result := DecayedStage(events, decaySnapshot(), decayConfig(), now)
	if result.Stage != StageM5 {
		t.Fatalf("hard intent event should force M5, got %s", result.Stage)
	}
	if !result.HardIntent {
		t.Fatal("expected HardIntent flag set")
	}
	// 15 points alone would only reach M3 via the ladder.
	if result.DecayedScore != 15 {
		t.Fatalf("expected decayed score 15, got %d", result.DecayedScore)
	}
}

func TestDecayedStage_UnknownEventTypesIgnored(t *testing.T) {
	now := time.Now()
	events := []HistoricalEvent{
		{EventType: "page_view", OccurredAt: now},
		{EventType: "form_submit", OccurredAt: now},
	}
	result := DecayedStage(events, decaySnapshot(), decayConfig(), now)
	if result.DecayedScore != 10 {
		t.Fatalf("expected only form_submit to contribute, got %d", result.DecayedScore)
	}
}

func TestAutoPushEligible(t *testing.T) {
	cfg := decayConfig()

	cases := []struct {
		name   string
		result StageResult
		want   bool
	}{
		{"M5 is always eligible", StageResult{Stage: StageM5, DecayedScore: 0}, true},
		{"score at threshold is eligible", StageResult{Stage: StageM4, DecayedScore: 40}, true},
		{"below threshold and below M5 is not", StageResult{Stage: StageM4, DecayedScore: 39}, false},
		{"cold lead is not", StageResult{Stage: StageM1, DecayedScore: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AutoPushEligible(tc.result, cfg); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
