package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RiskLevel is the ordered severity classification assigned to analyzed
// content. Aggregation always takes the maximum across layers, never an
// average, so a single catastrophic signal cannot be diluted.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskSafe:     "safe",
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("risk(%d)", int(r))
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for level, name := range riskNames {
		if name == s {
			*r = level
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", s)
}

// Turn is a single prior exchange in the conversation history.
type Turn struct {
	Role      string    `json:"role"` // "child" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// AnalysisRequest is one piece of text to analyze. Immutable once
// constructed; the engine never mutates History.
type AnalysisRequest struct {
	Text      string `json:"text"`
	ChildAge  int    `json:"child_age"`
	History   []Turn `json:"history,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// LayerResult is the output of a single analysis layer.
type LayerResult struct {
	Score            float64  `json:"score"`
	TriggeredReasons []string `json:"triggered_reasons,omitempty"`
	Confidence       float64  `json:"confidence"`
}

type ModificationType string

const (
	ModRedact   ModificationType = "redact"
	ModSimplify ModificationType = "simplify"
	ModRedirect ModificationType = "redirect"
	ModReframe  ModificationType = "reframe"
)

// Modification is a change the orchestrator must apply before delivery.
type Modification struct {
	Type   ModificationType `json:"type"`
	Reason string           `json:"reason"`
}

// AnalysisResult is the aggregated verdict for one request. Immutable and
// safe to cache and share across readers.
type AnalysisResult struct {
	RequestID                  string                 `json:"request_id,omitempty"`
	IsSafe                     bool                   `json:"is_safe"`
	OverallRiskLevel           RiskLevel              `json:"overall_risk_level"`
	ConfidenceScore            float64                `json:"confidence_score"`
	LayerResults               map[string]LayerResult `json:"layer_results"`
	AgeAppropriate             bool                   `json:"age_appropriate"`
	RequiredModifications      []Modification         `json:"required_modifications,omitempty"`
	ParentNotificationRequired bool                   `json:"parent_notification_required"`
	SafeAlternative            string                 `json:"safe_alternative,omitempty"`
	EducationalScore           float64                `json:"educational_score"`
	Degraded                   bool                   `json:"degraded,omitempty"`
	ProcessingTimeMs           float64                `json:"processing_time_ms"`
}

// ErrInputTooLarge is returned when text exceeds the configured maximum
// length. Oversized input is rejected outright rather than truncated, since
// truncation could hide risk signals past the cut point.
var ErrInputTooLarge = errors.New("input exceeds maximum length")

// Layer names used as keys in AnalysisResult.LayerResults.
const (
	LayerToxicity    = "toxicity"
	LayerAge         = "age_appropriateness"
	LayerContext     = "context"
	LayerEmotion     = "emotional_impact"
	LayerEducational = "educational_value"
)
