package scoring

import (
	"time"

	"leadintent_backend/internal/rules"
)

// Stage is the five-level marketing qualification stage.
type Stage string

const (
	StageM1 Stage = "M1"
	StageM2 Stage = "M2"
	StageM3 Stage = "M3"
	StageM4 Stage = "M4"
	StageM5 Stage = "M5"
)

// StageResult is the output of the decay classifier.
type StageResult struct {
	Stage        Stage
	DecayedScore int
	// HardIntent is set when a contributing rule forced M5 via its stage
	// hint, bypassing the threshold ladder.
	HardIntent bool
}

// DecayedStage computes a subject's overall decayed score and marketing
// stage. Each historical event contributes its rule's flat point value minus
// decay_points_per_week for every full week since the event, floored at 0 per
// event. This deliberately uses undecayed rule points rather than the stored
// Score rows: modifiers reflect in-the-moment intent and would distort the
// long-horizon decay curve.
func DecayedStage(events []HistoricalEvent, snapshot []rules.ScoringRule, cfg rules.QualificationConfig, now time.Time) StageResult {
	type ruleInfo struct {
		points     int
		hardIntent bool
		stageHint  *string
	}
	byType := make(map[string]ruleInfo)
	for _, rule := range snapshot {
		if rule.RuleType != rules.RuleTypeBaseScore || rule.EventType == nil {
			continue
		}
		byType[*rule.EventType] = ruleInfo{
			points:     rule.Points,
			hardIntent: rule.IsHardIntent,
			stageHint:  rule.StageHint,
		}
	}

	total := 0
	hardM5 := false
	for _, event := range events {
		info, ok := byType[event.EventType]
		if !ok {
			continue
		}
		weeks := int(now.Sub(event.OccurredAt).Hours() / 24 / 7)
		if weeks < 0 {
			weeks = 0
		}
		contribution := info.points - cfg.DecayPointsPerWeek*weeks
		if contribution < 0 {
			contribution = 0
		}
		total += contribution

		if info.hardIntent && info.stageHint != nil && Stage(*info.stageHint) == StageM5 {
			hardM5 = true
		}
	}

	if hardM5 {
		return StageResult{Stage: StageM5, DecayedScore: total, HardIntent: true}
	}
	return StageResult{Stage: stageFromScore(total, cfg), DecayedScore: total}
}

func stageFromScore(score int, cfg rules.QualificationConfig) Stage {
	switch {
	case score >= cfg.M5Min:
		return StageM5
	case score >= cfg.M4Min:
		return StageM4
	case score >= cfg.M3Min:
		return StageM3
	case score >= cfg.M2Min:
		return StageM2
	default:
		return StageM1
	}
}

// AutoPushEligible reports whether the classified lead qualifies for the
// one-shot push into the sales queue.
func AutoPushEligible(result StageResult, cfg rules.QualificationConfig) bool {
	return result.Stage == StageM5 || result.DecayedScore >= cfg.AutoPushThreshold
}
