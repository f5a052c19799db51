package safety

import (
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

// riskLayers are the layers that contribute to the overall risk level, in
// the order modifications are emitted. Educational value is informational
// and deliberately excluded.
var riskLayers = []string{LayerToxicity, LayerAge, LayerContext, LayerEmotion}

var safeAlternatives = map[string]string{
	LayerToxicity: "Let's talk about something fun instead! What's your favorite animal?",
	LayerAge:      "That's a big topic! How about a story or a game instead?",
	LayerContext:  "Let's play a guessing game! I'm thinking of something round and bouncy.",
	LayerEmotion:  "I'm here with you. Want to hear a happy story together?",
}

var layerModifications = map[string]Modification{
	LayerToxicity: {Type: ModRedact, Reason: "toxic or harmful content detected"},
	LayerAge:      {Type: ModSimplify, Reason: "content not appropriate for age band"},
	LayerContext:  {Type: ModRedirect, Reason: "concerning conversation pattern"},
	LayerEmotion:  {Type: ModReframe, Reason: "negative emotional impact"},
}

// Aggregate combines per-layer results into one verdict. The rule is max,
// never average: a single severe signal must not be diluted by benign ones.
// failedLayers names risk layers that errored or timed out; any failure
// forces the level to at least HIGH, since safety cannot be proven.
func Aggregate(req AnalysisRequest, layers map[string]LayerResult, failedLayers []string, cfg *config.SafetyConfig) *AnalysisResult {
	band := bandFor(req.ChildAge)
	toxThreshold, highThreshold, critThreshold := cfg.ThresholdsFor(band.Name)

	maxScore := 0.0
	triggered := make([]string, 0, len(riskLayers))
	for _, name := range riskLayers {
		lr, ok := layers[name]
		if !ok {
			continue
		}
		if lr.Score > maxScore {
			maxScore = lr.Score
		}
		if lr.Score > 0 {
			triggered = append(triggered, name)
		}
	}

	var level RiskLevel
	switch {
	case maxScore == 0:
		level = RiskSafe
	case maxScore < toxThreshold:
		level = RiskLow
	case maxScore < highThreshold:
		level = RiskMedium
	case maxScore < critThreshold:
		level = RiskHigh
	default:
		level = RiskCritical
	}

	degraded := len(failedLayers) > 0
	if degraded && level < RiskHigh {
		level = RiskHigh
	}

	isSafe := level <= RiskLow
	if cfg.StrictMode && level > RiskSafe {
		isSafe = false
	}

	ageResult := layers[LayerAge]
	ageAppropriate := ageResult.Score == 0
	for _, failed := range failedLayers {
		if failed == LayerAge {
			ageAppropriate = false
		}
	}

	var modifications []Modification
	var alternative string
	if !isSafe {
		for _, name := range triggered {
			modifications = append(modifications, layerModifications[name])
			if alternative == "" {
				alternative = safeAlternatives[name]
			}
		}
		if len(modifications) == 0 {
			// Unsafe purely due to degraded analysis.
			modifications = append(modifications, Modification{
				Type: ModRedirect, Reason: "analysis degraded, content withheld",
			})
			alternative = safeAlternatives[LayerContext]
		}
	}

	confidence := aggregateConfidence(layers, degraded)

	return &AnalysisResult{
		RequestID:                  req.RequestID,
		IsSafe:                     isSafe,
		OverallRiskLevel:           level,
		ConfidenceScore:            confidence,
		LayerResults:               layers,
		AgeAppropriate:             ageAppropriate,
		RequiredModifications:      modifications,
		ParentNotificationRequired: cfg.NotifyParentsOnRisk && level >= RiskMedium,
		SafeAlternative:            alternative,
		EducationalScore:           layers[LayerEducational].Score,
		Degraded:                   degraded,
	}
}

func aggregateConfidence(layers map[string]LayerResult, degraded bool) float64 {
	if len(layers) == 0 {
		return 0
	}
	sum := 0.0
	n := 0
	for _, name := range riskLayers {
		if lr, ok := layers[name]; ok {
			sum += lr.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	confidence := sum / float64(n)
	if degraded {
		confidence *= 0.5
	}
	return confidence
}

// FailSafeResult is the verdict used when analysis itself fails: block,
// critical, notify. Uncertainty always resolves toward blocking.
func FailSafeResult(req AnalysisRequest, cfg *config.SafetyConfig) *AnalysisResult {
	return &AnalysisResult{
		RequestID:        req.RequestID,
		IsSafe:           false,
		OverallRiskLevel: RiskCritical,
		ConfidenceScore:  0,
		LayerResults:     map[string]LayerResult{},
		AgeAppropriate:   false,
		RequiredModifications: []Modification{
			{Type: ModRedirect, Reason: "analysis failed, content withheld"},
		},
		ParentNotificationRequired: cfg.NotifyParentsOnRisk,
		SafeAlternative:            safeAlternatives[LayerContext],
		Degraded:                   true,
	}
}
