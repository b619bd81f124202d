package scoring

import (
	"strings"
	"testing"

	"leadintent_backend/internal/rules"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func testSnapshot() []rules.ScoringRule {
	return []rules.ScoringRule{
		{
			RuleKey:   "base_form_submit",
			RuleType:  rules.RuleTypeBaseScore,
			EventType: strPtr("form_submit"),
			Points:    10,
		},
		{
			RuleKey:   "base_email_click",
			RuleType:  rules.RuleTypeBaseScore,
			EventType: strPtr("email_click"),
			Points:    3,
		},
		{
			RuleKey:   "mod_email_clicks",
			RuleType:  rules.RuleTypeModifier,
			EventType: strPtr("email_click"),
			Condition: &rules.ModifierCondition{Field: "clicks", Min: f64Ptr(1)},
		},
		{
			RuleKey:   "mod_paid_medium",
			RuleType:  rules.RuleTypeModifier,
			Condition: &rules.ModifierCondition{Field: "utm_medium", Equals: strPtr("paid")},
			Points:    2,
		},
	}
}

func TestScoreEvent_BaseRule(t *testing.T) {
	result := ScoreEvent(EventInput{
		EventType:   "form_submit",
		EventSource: "website",
		HasLeadRef:  true,
	}, testSnapshot())

	if result.Score != 10 {
		t.Fatalf("expected score 10, got %d", result.Score)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", result.Confidence)
	}
	if result.ModelVersion != "rules_v1" {
		t.Fatalf("unexpected model version %q", result.ModelVersion)
	}
	if len(result.Reasons) != 1 || !strings.Contains(result.Reasons[0], "base_form_submit") {
		t.Fatalf("unexpected reasons %v", result.Reasons)
	}
}

func TestScoreEvent_UnknownEventTypeScoresZero(t *testing.T) {
	result := ScoreEvent(EventInput{
		EventType:   "page_view",
		EventSource: "website",
		HasLeadRef:  true,
	}, testSnapshot())

	if result.Score != 0 {
		t.Fatalf("expected score 0 for unscored event type, got %d", result.Score)
	}
	if len(result.Reasons) == 0 || !strings.Contains(result.Reasons[0], "no base rule") {
		t.Fatalf("expected omission reason, got %v", result.Reasons)
	}
}

func TestScoreEvent_ClicksModifierCapped(t *testing.T) {
	cases := []struct {
		clicks any
		want   int
	}{
		{float64(3), 3 + 3},   // base 3 + 3 clicks
		{float64(50), 3 + 20}, // capped at 20
		{float64(0), 3},       // below min, modifier skipped
	}
	for _, tc := range cases {
		result := ScoreEvent(EventInput{
			EventType:   "email_click",
			EventSource: "email",
			HasLeadRef:  true,
			Metadata:    map[string]any{"clicks": tc.clicks},
		}, testSnapshot())
		if result.Score != tc.want {
			t.Errorf("clicks=%v: expected score %d, got %d", tc.clicks, tc.want, result.Score)
		}
	}
}

func TestScoreEvent_EqualsModifier(t *testing.T) {
	result := ScoreEvent(EventInput{
		EventType:   "form_submit",
		EventSource: "website",
		HasLeadRef:  true,
		Metadata:    map[string]any{"utm_medium": "paid"},
	}, testSnapshot())

	if result.Score != 12 {
		t.Fatalf("expected base 10 + modifier 2 = 12, got %d", result.Score)
	}
}

func TestScoreEvent_ConfidenceTiers(t *testing.T) {
	snapshot := testSnapshot()

	lowTier := ScoreEvent(EventInput{EventType: "form_submit", EventSource: "zapier", HasLeadRef: true}, snapshot)
	if lowTier.Confidence != 0.6 {
		t.Fatalf("third-party source: expected confidence 0.6, got %v", lowTier.Confidence)
	}

	anonymous := ScoreEvent(EventInput{EventType: "form_submit", EventSource: "website", HasLeadRef: false}, snapshot)
	if anonymous.Confidence != 0.5 {
		t.Fatalf("anonymous subject: expected confidence floored to 0.5, got %v", anonymous.Confidence)
	}
}

func TestScoreEvent_Deterministic(t *testing.T) {
	event := EventInput{
		EventType:   "email_click",
		EventSource: "email",
		HasLeadRef:  true,
		Metadata:    map[string]any{"clicks": float64(5), "utm_medium": "paid"},
	}
	snapshot := testSnapshot()

	first := ScoreEvent(event, snapshot)
	for i := 0; i < 10; i++ {
		again := ScoreEvent(event, snapshot)
		if again.Score != first.Score || again.Confidence != first.Confidence {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}
