package safety

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

// concerningThemes are topics whose recurrence across the history window
// signals behavioral drift worth flagging.
var concerningThemes = map[string][]string{
	"loneliness": {"alone", "lonely", "no friends", "nobody likes me"},
	"sadness":    {"sad", "crying", "upset"},
	"fear":       {"scared", "afraid", "nightmare"},
	"anger":      {"angry", "mad", "hate"},
	"secrecy":    {"secret", "don't tell"},
}

var privacyProbes = []*regexp.Regexp{
	regexp.MustCompile(`where\s+(do\s+you|you)\s+live`),
	regexp.MustCompile(`(home\s+)?address`),
	regexp.MustCompile(`phone\s+number`),
	regexp.MustCompile(`what\s+school`),
	regexp.MustCompile(`(full|last)\s+name`),
	regexp.MustCompile(`send\s+(me\s+)?(a\s+)?(photo|picture)`),
}

// emergencyKeywords in the current turn force a critical verdict outright.
var emergencyKeywords = []string{
	"help me", "emergency", "i'm hurt", "i am hurt", "bleeding", "fire",
	"call the police", "ambulance", "can't breathe",
}

const (
	signalWeightRepetition = 0.35
	signalWeightSession    = 0.3
	signalWeightPrivacy    = 0.5
)

// ContextLayer analyzes the bounded conversation-history window together
// with the current text. It is the only layer whose input spans turns; the
// caller-supplied history is read-only and never mutated.
type ContextLayer struct{}

func NewContextLayer() *ContextLayer {
	return &ContextLayer{}
}

func (l *ContextLayer) Name() string { return LayerContext }

func (l *ContextLayer) Analyze(_ context.Context, req AnalysisRequest, cfg *config.SafetyConfig, _ *PatternIndex) (LayerResult, error) {
	window := historyWindow(req.History, cfg.HistoryWindow)
	current := strings.ToLower(req.Text)

	var reasons []string
	score := 0.0

	for _, kw := range emergencyKeywords {
		if strings.Contains(current, kw) {
			return LayerResult{
				Score:            1.0,
				TriggeredReasons: []string{"emergency_keyword:" + kw},
				Confidence:       0.95,
			}, nil
		}
	}

	if themes := repeatedThemes(window, current, cfg.RepetitionTrigger); len(themes) > 0 {
		for _, t := range themes {
			reasons = append(reasons, "repeated_theme:"+t)
		}
		score += signalWeightRepetition
	}

	if sessionTooLong(req.History, cfg.SessionTurnCeiling) {
		reasons = append(reasons, "session_length_exceeded")
		score += signalWeightSession
	}

	if probes := privacyProbeHits(window, current); len(probes) > 0 {
		reasons = append(reasons, probes...)
		score += signalWeightPrivacy
	}

	return LayerResult{
		Score:            clamp01(score),
		TriggeredReasons: reasons,
		Confidence:       0.8,
	}, nil
}

func historyWindow(history []Turn, n int) []Turn {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// repeatedThemes returns themes appearing in at least trigger turns of the
// window (the current text counts as one turn).
func repeatedThemes(window []Turn, current string, trigger int) []string {
	if trigger <= 0 {
		trigger = 3
	}

	counts := make(map[string]int, len(concerningThemes))
	texts := make([]string, 0, len(window)+1)
	for _, t := range window {
		texts = append(texts, strings.ToLower(t.Text))
	}
	texts = append(texts, current)

	for _, text := range texts {
		for theme, keywords := range concerningThemes {
			for _, kw := range keywords {
				if strings.Contains(text, kw) {
					counts[theme]++
					break
				}
			}
		}
	}

	var repeated []string
	for theme, n := range counts {
		if n >= trigger {
			repeated = append(repeated, theme)
		}
	}
	// Keep the reason list byte-stable across processes for the remote
	// cache tier.
	sort.Strings(repeated)
	return repeated
}

// sessionTooLong looks at the full history, not the bounded window, since
// session length is a property of the whole conversation.
func sessionTooLong(history []Turn, ceiling int) bool {
	if ceiling > 0 && len(history) >= ceiling {
		return true
	}
	// With timestamps available, also bound elapsed session time.
	if len(history) >= 2 && !history[0].Timestamp.IsZero() && !history[len(history)-1].Timestamp.IsZero() {
		return history[len(history)-1].Timestamp.Sub(history[0].Timestamp) > time.Hour
	}
	return false
}

func privacyProbeHits(window []Turn, current string) []string {
	texts := make([]string, 0, len(window)+1)
	for _, t := range window {
		texts = append(texts, strings.ToLower(t.Text))
	}
	texts = append(texts, current)

	hits := 0
	for _, text := range texts {
		for _, re := range privacyProbes {
			if re.MatchString(text) {
				hits++
				break
			}
		}
	}

	// A single mention can be innocuous; repeated probing is the signal,
	// except in the current turn where one probe is enough.
	currentProbed := false
	for _, re := range privacyProbes {
		if re.MatchString(current) {
			currentProbed = true
			break
		}
	}
	if !currentProbed && hits < 2 {
		return nil
	}
	if hits == 0 {
		return nil
	}
	return []string{"privacy_probe"}
}
