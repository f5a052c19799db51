package safety

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

// emotionLexicons back the deterministic fallback classifier.
var emotionLexicons = map[string][]string{
	"joy":      {"happy", "excited", "fun", "laughing", "cheerful", "yay"},
	"sadness":  {"sad", "crying", "upset", "disappointed", "lonely"},
	"fear":     {"scared", "afraid", "frightened", "worried", "anxious"},
	"anger":    {"angry", "mad", "furious", "frustrated", "annoyed"},
	"surprise": {"surprised", "amazed", "wow", "unexpected"},
	"disgust":  {"yucky", "gross", "eww", "disgusting"},
}

// emotionImpact is the signed impact table: positive values are beneficial,
// negative values are harmful. Unknown emotions resolve to neutral.
var emotionImpact = map[string]float64{
	"joy":      0.8,
	"surprise": 0.3,
	"sadness":  -0.4,
	"disgust":  -0.3,
	"anger":    -0.6,
	"fear":     -0.6,
	"neutral":  0,
}

// EmotionalImpactLayer maps the detected primary emotion to an age-weighted
// negative-impact score. Positive emotions contribute no risk.
type EmotionalImpactLayer struct {
	classifier EmotionClassifier
}

func NewEmotionalImpactLayer(classifier EmotionClassifier) *EmotionalImpactLayer {
	return &EmotionalImpactLayer{classifier: classifier}
}

func (l *EmotionalImpactLayer) Name() string { return LayerEmotion }

func (l *EmotionalImpactLayer) Analyze(ctx context.Context, req AnalysisRequest, _ *config.SafetyConfig, _ *PatternIndex) (LayerResult, error) {
	emotion, confidence := detectEmotion(req.Text)

	if l.classifier != nil {
		external, externalConf, err := l.classifier.Classify(ctx, req.Text)
		if err != nil {
			slog.Warn("emotion classifier unavailable, using lexicon fallback",
				"classifier", l.classifier.Name(), "error", err)
			confidence = minFloat(confidence, 0.6)
		} else if externalConf >= confidence {
			emotion, confidence = external, externalConf
		}
	}

	impact, ok := emotionImpact[emotion]
	if !ok {
		// Unrecognized labels clamp to neutral rather than erroring.
		emotion, impact = "neutral", 0
	}

	score := 0.0
	var reasons []string
	if impact < 0 {
		score = clamp01(-impact * emotionAgeWeight(req.ChildAge))
		reasons = append(reasons, "negative_emotion:"+emotion)
	}

	return LayerResult{
		Score:            score,
		TriggeredReasons: reasons,
		Confidence:       confidence,
	}, nil
}

// detectEmotion picks the lexicon with the most keyword hits. Ties resolve
// to the first in a fixed order so results stay deterministic.
func detectEmotion(text string) (string, float64) {
	lower := strings.ToLower(text)

	order := []string{"fear", "anger", "sadness", "disgust", "joy", "surprise"}
	best := "neutral"
	bestHits := 0
	for _, emotion := range order {
		hits := 0
		for _, kw := range emotionLexicons[emotion] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = emotion, hits
		}
	}
	if bestHits == 0 {
		return "neutral", 0.7
	}
	return best, 0.7
}

// emotionAgeWeight amplifies negative impact for younger children, matching
// the stricter emotional guidelines of the lower bands.
func emotionAgeWeight(age int) float64 {
	switch {
	case age <= 4:
		return 1.4
	case age <= 6:
		return 1.2
	case age <= 8:
		return 1.05
	default:
		return 0.9
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
