package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

func layerMap(scores map[string]float64) map[string]LayerResult {
	out := make(map[string]LayerResult, len(scores))
	for name, score := range scores {
		out[name] = LayerResult{Score: score, Confidence: 0.8}
	}
	return out
}

// TestAggregate_MaxNotAverage verifies one severe signal dominates even
// when every other layer reports zero.
func TestAggregate_MaxNotAverage(t *testing.T) {
	cfg := testSafetyConfig()
	req := AnalysisRequest{Text: "x", ChildAge: 8, RequestID: "r"}

	result := Aggregate(req, layerMap(map[string]float64{
		LayerToxicity: 0.9,
		LayerAge:      0,
		LayerContext:  0,
		LayerEmotion:  0,
	}), nil, &cfg)

	assert.Equal(t, RiskCritical, result.OverallRiskLevel)
	assert.False(t, result.IsSafe)
}

// TestAggregate_ThresholdBoundaries verifies a score equal to a threshold
// lands in the higher bucket.
func TestAggregate_ThresholdBoundaries(t *testing.T) {
	cfg := testSafetyConfig()
	req := AnalysisRequest{ChildAge: 10}

	cases := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskSafe},
		{0.1, RiskLow},
		{0.29, RiskLow},
		{0.3, RiskMedium},
		{0.59, RiskMedium},
		{0.6, RiskHigh},
		{0.8, RiskCritical},
		{1.0, RiskCritical},
	}
	for _, tc := range cases {
		result := Aggregate(req, layerMap(map[string]float64{LayerToxicity: tc.score}), nil, &cfg)
		assert.Equal(t, tc.want, result.OverallRiskLevel, "score %.2f", tc.score)
	}
}

// TestAggregate_Monotone verifies pointwise-higher layer scores never
// produce a lower overall risk level.
func TestAggregate_Monotone(t *testing.T) {
	cfg := testSafetyConfig()
	req := AnalysisRequest{ChildAge: 8}

	lower := map[string]float64{LayerToxicity: 0.2, LayerAge: 0.1, LayerContext: 0, LayerEmotion: 0.3}
	steps := []map[string]float64{
		lower,
		{LayerToxicity: 0.2, LayerAge: 0.35, LayerContext: 0, LayerEmotion: 0.3},
		{LayerToxicity: 0.65, LayerAge: 0.35, LayerContext: 0.1, LayerEmotion: 0.3},
		{LayerToxicity: 0.65, LayerAge: 0.9, LayerContext: 0.1, LayerEmotion: 0.3},
	}

	prev := Aggregate(req, layerMap(steps[0]), nil, &cfg).OverallRiskLevel
	for _, scores := range steps[1:] {
		level := Aggregate(req, layerMap(scores), nil, &cfg).OverallRiskLevel
		assert.GreaterOrEqual(t, level, prev)
		prev = level
	}
	assert.Equal(t, RiskCritical, prev)
}

// TestAggregate_FailedLayerForcesHigh verifies a failed risk layer can
// never leave the verdict below HIGH.
func TestAggregate_FailedLayerForcesHigh(t *testing.T) {
	cfg := testSafetyConfig()
	req := AnalysisRequest{ChildAge: 8}

	result := Aggregate(req, layerMap(map[string]float64{
		LayerAge:     0,
		LayerContext: 0,
		LayerEmotion: 0,
	}), []string{LayerToxicity}, &cfg)

	assert.True(t, result.Degraded)
	assert.Equal(t, RiskHigh, result.OverallRiskLevel)
	assert.False(t, result.IsSafe)
	assert.NotEmpty(t, result.RequiredModifications)
	assert.NotEmpty(t, result.SafeAlternative)
}

// TestAggregate_DegradedNeverLowersLevel verifies degradation only raises.
func TestAggregate_DegradedNeverLowersLevel(t *testing.T) {
	cfg := testSafetyConfig()
	req := AnalysisRequest{ChildAge: 8}

	result := Aggregate(req, layerMap(map[string]float64{
		LayerToxicity: 0.95,
	}), []string{LayerEmotion}, &cfg)

	assert.Equal(t, RiskCritical, result.OverallRiskLevel)
	assert.True(t, result.Degraded)
}

// TestAggregate_DegradedHalvesConfidence verifies the confidence penalty.
func TestAggregate_DegradedHalvesConfidence(t *testing.T) {
	cfg := testSafetyConfig()
	req := AnalysisRequest{ChildAge: 8}
	layers := layerMap(map[string]float64{LayerToxicity: 0, LayerAge: 0})

	clean := Aggregate(req, layers, nil, &cfg)
	degraded := Aggregate(req, layers, []string{LayerContext}, &cfg)

	assert.InDelta(t, clean.ConfidenceScore/2, degraded.ConfidenceScore, 1e-9)
}

// TestAggregate_StrictMode verifies strict mode treats anything above SAFE
// as undeliverable.
func TestAggregate_StrictMode(t *testing.T) {
	req := AnalysisRequest{ChildAge: 8}
	layers := layerMap(map[string]float64{LayerEmotion: 0.1})

	relaxed := testSafetyConfig()
	assert.True(t, Aggregate(req, layers, nil, &relaxed).IsSafe)

	strict := testSafetyConfig()
	strict.StrictMode = true
	result := Aggregate(req, layers, nil, &strict)
	assert.False(t, result.IsSafe)
	assert.Equal(t, RiskLow, result.OverallRiskLevel)
	assert.NotEmpty(t, result.RequiredModifications)
}

// TestAggregate_ParentNotification verifies the notification flag follows
// the config toggle and the MEDIUM floor.
func TestAggregate_ParentNotification(t *testing.T) {
	req := AnalysisRequest{ChildAge: 8}

	cfg := testSafetyConfig()
	low := Aggregate(req, layerMap(map[string]float64{LayerToxicity: 0.1}), nil, &cfg)
	assert.False(t, low.ParentNotificationRequired)

	medium := Aggregate(req, layerMap(map[string]float64{LayerToxicity: 0.4}), nil, &cfg)
	assert.True(t, medium.ParentNotificationRequired)

	cfg.NotifyParentsOnRisk = false
	silent := Aggregate(req, layerMap(map[string]float64{LayerToxicity: 0.9}), nil, &cfg)
	assert.False(t, silent.ParentNotificationRequired)
}

// TestAggregate_EducationalNeverRaisesRisk verifies a high educational
// score contributes nothing to the risk level.
func TestAggregate_EducationalNeverRaisesRisk(t *testing.T) {
	cfg := testSafetyConfig()
	req := AnalysisRequest{ChildAge: 8}

	result := Aggregate(req, layerMap(map[string]float64{
		LayerToxicity:    0,
		LayerEducational: 0.95,
	}), nil, &cfg)

	assert.Equal(t, RiskSafe, result.OverallRiskLevel)
	assert.True(t, result.IsSafe)
	assert.InDelta(t, 0.95, result.EducationalScore, 1e-9)
}

// TestAggregate_AgeBandOverrides verifies per-band threshold deltas change
// the verdict for that band only.
func TestAggregate_AgeBandOverrides(t *testing.T) {
	cfg := testSafetyConfig()
	cfg.AgeBandOverrides = map[string]config.ThresholdDelta{
		"toddler": {Toxicity: -0.25, HighRisk: -0.25, Critical: -0.25},
	}
	layers := layerMap(map[string]float64{LayerToxicity: 0.4})

	toddler := Aggregate(AnalysisRequest{ChildAge: 3}, layers, nil, &cfg)
	assert.Equal(t, RiskHigh, toddler.OverallRiskLevel)

	preteen := Aggregate(AnalysisRequest{ChildAge: 10}, layers, nil, &cfg)
	assert.Equal(t, RiskMedium, preteen.OverallRiskLevel)
}

func TestFailSafeResult(t *testing.T) {
	cfg := testSafetyConfig()
	result := FailSafeResult(AnalysisRequest{RequestID: "r", ChildAge: 6}, &cfg)

	assert.False(t, result.IsSafe)
	assert.Equal(t, RiskCritical, result.OverallRiskLevel)
	assert.True(t, result.Degraded)
	assert.True(t, result.ParentNotificationRequired)
	assert.Zero(t, result.ConfidenceScore)
	assert.NotEmpty(t, result.RequiredModifications)
	assert.NotEmpty(t, result.SafeAlternative)
	assert.Equal(t, "r", result.RequestID)
}
