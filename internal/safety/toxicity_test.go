package safety

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	score float64
	err   error
}

func (stubScorer) Name() string { return "stub" }

func (s stubScorer) Score(context.Context, string) (float64, error) {
	return s.score, s.err
}

func runToxicityLayer(t *testing.T, scorer Scorer, text string, age int) LayerResult {
	t.Helper()
	cfg := testSafetyConfig()
	patterns, err := NewPatternIndex(DefaultPatternCategories())
	require.NoError(t, err)

	result, err := NewToxicityLayer(scorer).Analyze(context.Background(), AnalysisRequest{
		Text:     text,
		ChildAge: age,
	}, &cfg, patterns)
	require.NoError(t, err)
	return result
}

func TestToxicityLayer_PatternOnly(t *testing.T) {
	result := runToxicityLayer(t, nil, "I will punch you", 10)
	assert.InDelta(t, 0.9, result.Score, 1e-9)
	assert.Contains(t, result.TriggeredReasons, "violence:punch")

	clean := runToxicityLayer(t, nil, "what a lovely day", 10)
	assert.Zero(t, clean.Score)
	assert.Empty(t, clean.TriggeredReasons)
}

// TestToxicityLayer_AgeSensitivity verifies the same text scores higher for
// younger children.
func TestToxicityLayer_AgeSensitivity(t *testing.T) {
	text := "no more smoking near me"

	toddler := runToxicityLayer(t, nil, text, 3)
	preteen := runToxicityLayer(t, nil, text, 10)

	assert.Greater(t, toddler.Score, preteen.Score)
	assert.InDelta(t, 0.7*1.25, toddler.Score, 1e-9)
	assert.InDelta(t, 0.7, preteen.Score, 1e-9)
}

// TestToxicityLayer_ExternalOnlyRaises verifies the external score can
// raise but never lower the pattern-derived score.
func TestToxicityLayer_ExternalOnlyRaises(t *testing.T) {
	raised := runToxicityLayer(t, stubScorer{score: 0.9}, "what a lovely day", 10)
	assert.InDelta(t, 0.9, raised.Score, 1e-9)
	assert.Contains(t, raised.TriggeredReasons, "external_score")

	lowered := runToxicityLayer(t, stubScorer{score: 0.1}, "I will punch you", 10)
	assert.InDelta(t, 0.9, lowered.Score, 1e-9)
	assert.NotContains(t, lowered.TriggeredReasons, "external_score")
}

// TestToxicityLayer_ScorerUnavailable verifies a failing scorer degrades to
// pattern-only scoring with reduced confidence, never a silent zero.
func TestToxicityLayer_ScorerUnavailable(t *testing.T) {
	result := runToxicityLayer(t, stubScorer{err: fmt.Errorf("socket closed")}, "I will punch you", 10)

	assert.InDelta(t, 0.9, result.Score, 1e-9)
	assert.InDelta(t, 0.6, result.Confidence, 1e-9)
	assert.Contains(t, result.TriggeredReasons, "scorer_unavailable")
}

func TestCombineScores(t *testing.T) {
	scores := []float64{0.5, 0.3, 0.2}

	assert.InDelta(t, 0.5, combineScores("max", scores), 1e-9)
	assert.InDelta(t, 0.55, combineScores("weighted", scores), 1e-9)
	assert.Zero(t, combineScores("max", nil))

	// The weighted rule stays dominated by the worst signal and clamped.
	assert.InDelta(t, 1.0, combineScores("weighted", []float64{1.0, 1.0, 1.0}), 1e-9)
}
