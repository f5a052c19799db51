package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runContextLayer(t *testing.T, text string, history []Turn) LayerResult {
	t.Helper()
	cfg := testSafetyConfig()
	result, err := NewContextLayer().Analyze(context.Background(), AnalysisRequest{
		Text:     text,
		ChildAge: 7,
		History:  history,
	}, &cfg, nil)
	require.NoError(t, err)
	return result
}

func childTurns(texts ...string) []Turn {
	turns := make([]Turn, len(texts))
	for i, text := range texts {
		turns[i] = Turn{Role: "child", Text: text}
	}
	return turns
}

// TestContextLayer_EmergencyKeyword verifies an emergency phrase in the
// current turn forces the maximum score regardless of anything else.
func TestContextLayer_EmergencyKeyword(t *testing.T) {
	result := runContextLayer(t, "please help me, I'm hurt", nil)

	assert.Equal(t, 1.0, result.Score)
	assert.Contains(t, result.TriggeredReasons, "emergency_keyword:help me")
}

// TestContextLayer_RepeatedTheme verifies a concerning topic recurring
// across the window trips the repetition signal.
func TestContextLayer_RepeatedTheme(t *testing.T) {
	history := childTurns(
		"I feel so sad today",
		"still sad about my toy",
		"what games do you know",
	)

	result := runContextLayer(t, "I'm sad again", history)
	assert.Contains(t, result.TriggeredReasons, "repeated_theme:sadness")
	assert.Greater(t, result.Score, 0.0)

	// Two mentions stay under the trigger of three.
	calm := runContextLayer(t, "I'm sad again", childTurns("I feel so sad today"))
	assert.NotContains(t, calm.TriggeredReasons, "repeated_theme:sadness")
}

// TestContextLayer_ReasonsDeterministic verifies several repeated themes
// come out in sorted order every run, so identical conversations produce
// byte-identical reason lists.
func TestContextLayer_ReasonsDeterministic(t *testing.T) {
	history := childTurns(
		"I'm scared and sad",
		"still scared, still sad",
		"so scared and so angry",
		"angry and sad again",
	)

	want := []string{"repeated_theme:anger", "repeated_theme:fear", "repeated_theme:sadness"}
	for i := 0; i < 20; i++ {
		result := runContextLayer(t, "scared, sad and angry", history)
		assert.Equal(t, want, result.TriggeredReasons)
	}
}

// TestContextLayer_PrivacyProbe verifies a probe in the current turn flags
// immediately while a single historical mention does not.
func TestContextLayer_PrivacyProbe(t *testing.T) {
	current := runContextLayer(t, "where do you live exactly?", nil)
	assert.Contains(t, current.TriggeredReasons, "privacy_probe")

	historicalOnce := runContextLayer(t, "let's play a game", childTurns("what school do you go to"))
	assert.NotContains(t, historicalOnce.TriggeredReasons, "privacy_probe")

	historicalRepeated := runContextLayer(t, "let's play a game", childTurns(
		"what school do you go to",
		"tell me your phone number",
	))
	assert.Contains(t, historicalRepeated.TriggeredReasons, "privacy_probe")
}

// TestContextLayer_SessionLength verifies both the turn ceiling and the
// timestamp-based bound trip the session signal.
func TestContextLayer_SessionLength(t *testing.T) {
	long := make([]Turn, 40)
	for i := range long {
		long[i] = Turn{Role: "child", Text: "ok"}
	}
	byTurns := runContextLayer(t, "one more story", long)
	assert.Contains(t, byTurns.TriggeredReasons, "session_length_exceeded")

	start := time.Now().Add(-2 * time.Hour)
	timed := []Turn{
		{Role: "child", Text: "hi", Timestamp: start},
		{Role: "assistant", Text: "hello", Timestamp: start.Add(90 * time.Minute)},
	}
	byTime := runContextLayer(t, "one more story", timed)
	assert.Contains(t, byTime.TriggeredReasons, "session_length_exceeded")

	short := runContextLayer(t, "one more story", childTurns("hi", "hello"))
	assert.NotContains(t, short.TriggeredReasons, "session_length_exceeded")
}

// TestContextLayer_SignalsAccumulate verifies independent signals sum and
// the score stays clamped to one.
func TestContextLayer_SignalsAccumulate(t *testing.T) {
	history := childTurns(
		"I feel sad and alone",
		"so sad, nobody likes me",
		"what school do you go to",
		"what is your home address",
	)

	result := runContextLayer(t, "I'm sad, where do you live?", history)
	assert.Contains(t, result.TriggeredReasons, "repeated_theme:sadness")
	assert.Contains(t, result.TriggeredReasons, "privacy_probe")
	assert.InDelta(t, 0.85, result.Score, 1e-9)
	assert.LessOrEqual(t, result.Score, 1.0)
}

// TestContextLayer_HistoryNotMutated verifies the layer treats the caller's
// history as read-only.
func TestContextLayer_HistoryNotMutated(t *testing.T) {
	history := childTurns("I feel sad", "still sad", "sad again")
	snapshot := make([]Turn, len(history))
	copy(snapshot, history)

	runContextLayer(t, "so sad", history)
	assert.Equal(t, snapshot, history)
}
