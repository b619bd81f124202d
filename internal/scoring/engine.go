// Package scoring contains the pure scoring functions: event scoring against
// the active rule snapshot, band classification with one-shot emission, and
// the decay-based marketing stage classifier. Nothing in this package touches
// the database; callers pass snapshots in and write results back.
package scoring

import (
	"fmt"
	"time"

	"leadintent_backend/internal/rules"
)

// ModelVersion tags every computed score row with the engine revision that
// produced it.
const ModelVersion = "rules_v1"

// clicksCap bounds the per-event contribution of click-count modifiers.
const clicksCap = 20

// EventInput is the scored projection of a tracking event.
type EventInput struct {
	EventType   string
	EventSource string
	// HasLeadRef reports whether the event carries an identified lead
	// reference. Anonymous-only events are scored at reduced confidence.
	HasLeadRef bool
	Metadata   map[string]any
}

// Result is the deterministic output of ScoreEvent.
type Result struct {
	Score        int
	Confidence   float64
	Reasons      []string
	ModelVersion string
}

// First-party sources score at high confidence; everything else is treated
// as lower-trust telemetry.
var firstPartySources = map[string]bool{
	"website": true,
	"web":     true,
	"crm":     true,
}

// ScoreEvent computes the score for one event against a rule snapshot.
// Pure and deterministic: the same event and snapshot always produce the
// same result, which is what makes the score upsert idempotent.
func ScoreEvent(event EventInput, snapshot []rules.ScoringRule) Result {
	score := 0
	reasons := make([]string, 0, 4)

	baseFound := false
	for _, rule := range snapshot {
		if rule.RuleType != rules.RuleTypeBaseScore || rule.EventType == nil {
			continue
		}
		if *rule.EventType == event.EventType {
			score += rule.Points
			reasons = append(reasons, fmt.Sprintf("base:%s:+%d", rule.RuleKey, rule.Points))
			baseFound = true
			break
		}
	}
	if !baseFound {
		reasons = append(reasons, fmt.Sprintf("no base rule for event_type %q", event.EventType))
	}

	for _, rule := range snapshot {
		if rule.RuleType != rules.RuleTypeModifier || rule.Condition == nil {
			continue
		}
		if rule.EventType != nil && *rule.EventType != event.EventType {
			continue
		}
		if !conditionHolds(*rule.Condition, event.Metadata) {
			continue
		}
		points := modifierPoints(rule, event.Metadata)
		if points == 0 {
			continue
		}
		score += points
		reasons = append(reasons, fmt.Sprintf("modifier:%s:+%d", rule.RuleKey, points))
	}

	if score < 0 {
		score = 0
	}

	confidence := 0.6
	if firstPartySources[event.EventSource] {
		confidence = 0.9
	}
	if !event.HasLeadRef && confidence > 0.5 {
		confidence = 0.5
		reasons = append(reasons, "confidence floored: no lead reference")
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Result{
		Score:        score,
		Confidence:   confidence,
		Reasons:      reasons,
		ModelVersion: ModelVersion,
	}
}

func conditionHolds(cond rules.ModifierCondition, metadata map[string]any) bool {
	if cond.Field == "" {
		return false
	}
	value, ok := metadata[cond.Field]
	if !ok {
		return false
	}
	if cond.Equals != nil {
		str, ok := value.(string)
		return ok && str == *cond.Equals
	}
	if cond.Min != nil {
		num, ok := numericValue(value)
		return ok && num >= *cond.Min
	}
	return false
}

// modifierPoints is condition-specific: a clicks condition contributes the
// capped click count rather than the rule's flat point value.
func modifierPoints(rule rules.ScoringRule, metadata map[string]any) int {
	if rule.Condition.Field == "clicks" {
		num, ok := numericValue(metadata["clicks"])
		if !ok {
			return 0
		}
		clicks := int(num)
		if clicks > clicksCap {
			clicks = clicksCap
		}
		if clicks < 0 {
			clicks = 0
		}
		return clicks
	}
	return rule.Points
}

// numericValue handles the types JSON decoding produces for numbers.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// HistoricalEvent is the minimal projection the decay classifier needs.
type HistoricalEvent struct {
	EventType  string
	OccurredAt time.Time
}
