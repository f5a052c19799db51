package safety

import (
	"context"
	"log/slog"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

// Scorer is a pluggable scoring capability, e.g. a hosted moderation model.
// Implementations must respect ctx cancellation.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
	Name() string
}

// EmotionClassifier is a pluggable emotion-detection capability.
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) (emotion string, confidence float64, err error)
	Name() string
}

// ToxicityLayer combines age-scoped pattern matching with an optional
// external scoring capability. The external score can only raise the
// pattern-derived score, and an unavailable scorer degrades to pattern-only
// scoring with reduced confidence instead of silently returning zero.
type ToxicityLayer struct {
	scorer Scorer
}

func NewToxicityLayer(scorer Scorer) *ToxicityLayer {
	return &ToxicityLayer{scorer: scorer}
}

func (l *ToxicityLayer) Name() string { return LayerToxicity }

func (l *ToxicityLayer) Analyze(ctx context.Context, req AnalysisRequest, cfg *config.SafetyConfig, patterns *PatternIndex) (LayerResult, error) {
	matches := patterns.Scan(req.Text, req.ChildAge)

	patternScore := combineScores(cfg.CombineRule, matchWeights(req.ChildAge, matches))
	reasons := make([]string, 0, len(matches))
	for _, m := range matches {
		reasons = append(reasons, m.PatternID)
	}

	score := patternScore
	confidence := 0.9

	if l.scorer != nil {
		external, err := l.scorer.Score(ctx, req.Text)
		if err != nil {
			slog.Warn("toxicity scorer unavailable, falling back to patterns",
				"scorer", l.scorer.Name(), "error", err)
			confidence = 0.6
			reasons = append(reasons, "scorer_unavailable")
		} else if external > score {
			score = external
			reasons = append(reasons, "external_score")
		}
	}

	return LayerResult{
		Score:            clamp01(score),
		TriggeredReasons: reasons,
		Confidence:       confidence,
	}, nil
}

// matchWeights applies the age sensitivity multiplier to each matched
// category. Younger children get amplified severity for the same keyword.
func matchWeights(childAge int, matches []PatternMatch) []float64 {
	weights := make([]float64, len(matches))
	for i, m := range matches {
		weights[i] = clamp01(m.Weight * ageSensitivity(childAge))
	}
	return weights
}

func ageSensitivity(age int) float64 {
	switch {
	case age <= 4:
		return 1.25
	case age <= 8:
		return 1.1
	default:
		return 1.0
	}
}

// combineScores applies the configured within-layer combination rule.
// "max" keeps the single worst signal; "weighted" lets multiple distinct
// hits compound, still dominated by the worst one.
func combineScores(rule string, scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	max := 0.0
	sum := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
		sum += s
	}
	if rule == "weighted" {
		return clamp01(max + 0.1*(sum-max))
	}
	return max
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
