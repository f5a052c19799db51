package safety

import (
	"context"
	"sort"
	"strings"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

// skillTaxonomies group the learning signals the layer looks for. The
// breakdown follows common early-learning frameworks: cognitive domains,
// learning styles and skill areas.
var skillTaxonomies = map[string][]string{
	"remember":        {"recall", "list", "name", "what is", "identify"},
	"understand":      {"explain", "describe", "why", "how", "what does"},
	"apply":           {"use", "solve", "show", "practice", "try"},
	"create":          {"design", "build", "make", "invent", "imagine", "draw"},
	"literacy":        {"read", "story", "book", "letter", "word", "write"},
	"numeracy":        {"count", "number", "math", "add", "shape", "pattern"},
	"science":         {"experiment", "nature", "animal", "planet", "space", "plant"},
	"arts":            {"music", "song", "paint", "color", "dance", "craft"},
	"social":          {"friend", "share", "team", "help", "kind", "together"},
	"self_regulation": {"calm", "patience", "feelings", "breathe", "practice"},
}

// learningVerbs signal explicit learning intent regardless of subject.
var learningVerbs = []string{"learn", "teach", "study", "discover", "explore"}

// EducationalValueLayer scores learning potential against age-appropriate
// skill taxonomies. Its score is inverted relative to the risk layers:
// higher is better. It never raises risk on its own; the orchestrator uses
// it to prioritize content, not to block it.
type EducationalValueLayer struct{}

func NewEducationalValueLayer() *EducationalValueLayer {
	return &EducationalValueLayer{}
}

func (l *EducationalValueLayer) Name() string { return LayerEducational }

func (l *EducationalValueLayer) Analyze(_ context.Context, req AnalysisRequest, _ *config.SafetyConfig, _ *PatternIndex) (LayerResult, error) {
	lower := strings.ToLower(req.Text)

	var categories []string
	for category, keywords := range skillTaxonomies {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				categories = append(categories, "skill:"+category)
				break
			}
		}
	}
	// Keep map-derived reasons byte-stable for the remote cache tier.
	sort.Strings(categories)

	score := 0.25 * float64(len(categories))
	for _, verb := range learningVerbs {
		if strings.Contains(lower, verb) {
			score += 0.3
			categories = append(categories, "learning_intent")
			break
		}
	}
	if strings.Contains(lower, "?") {
		score += 0.1 // questions invite engagement
	}

	return LayerResult{
		Score:            clamp01(score),
		TriggeredReasons: dedupe(categories),
		Confidence:       0.75,
	}, nil
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
