package safety

import (
	"context"
	"strings"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

// topicLexicons maps forbidden-topic categories to the keywords that signal
// them. Categories are referenced by the age band tables in bands.go.
var topicLexicons = map[string][]string{
	"violence": {
		"violence", "violent", "fight", "weapon", "war", "kill", "blood",
	},
	"scary": {
		"scary", "monster", "nightmare", "ghost", "horror", "terrifying",
	},
	"adult_themes": {
		"dating", "romance", "boyfriend", "girlfriend", "kissing", "marriage",
	},
	"complex_emotions": {
		"depression", "anxiety", "grief", "despair", "trauma", "hopeless",
	},
	"mature_themes": {
		"death", "divorce", "politics", "poverty", "crime", "gambling",
	},
}

// AgeAppropriatenessLayer validates content against the band's forbidden
// categories and vocabulary complexity limit. A score of zero means the
// content is age appropriate.
type AgeAppropriatenessLayer struct{}

func NewAgeAppropriatenessLayer() *AgeAppropriatenessLayer {
	return &AgeAppropriatenessLayer{}
}

func (l *AgeAppropriatenessLayer) Name() string { return LayerAge }

func (l *AgeAppropriatenessLayer) Analyze(_ context.Context, req AnalysisRequest, cfg *config.SafetyConfig, _ *PatternIndex) (LayerResult, error) {
	band := bandFor(req.ChildAge)
	lower := strings.ToLower(req.Text)

	var reasons []string
	var hits []float64
	for _, category := range band.ForbiddenCategories {
		for _, kw := range topicLexicons[category] {
			if strings.Contains(lower, kw) {
				reasons = append(reasons, "forbidden_topic:"+category)
				hits = append(hits, categorySeverity(category))
				break
			}
		}
	}

	if avg := avgWordLength(req.Text); avg > band.MaxAvgWordLength {
		reasons = append(reasons, "vocabulary_too_complex")
		hits = append(hits, 0.3)
	}

	return LayerResult{
		Score:            combineScores(cfg.CombineRule, hits),
		TriggeredReasons: reasons,
		Confidence:       0.85,
	}, nil
}

func categorySeverity(category string) float64 {
	switch category {
	case "violence":
		return 0.85
	case "scary":
		return 0.65
	case "complex_emotions":
		return 0.6
	case "adult_themes", "mature_themes":
		return 0.55
	default:
		return 0.5
	}
}

func avgWordLength(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, w := range words {
		total += len(strings.Trim(w, ".,!?'\""))
	}
	return float64(total) / float64(len(words))
}
