// Package scorer provides the pluggable scoring capabilities the safety
// engine can be configured with. Every scorer is optional: the engine falls
// back to its deterministic layers when one is absent or failing.
package scorer

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIModeration scores text through the OpenAI moderation endpoint and
// reports the worst category score as the toxicity score.
type OpenAIModeration struct {
	client *openai.Client
	model  string
}

func NewOpenAIModeration(apiKey string) *OpenAIModeration {
	return &OpenAIModeration{
		client: openai.NewClient(apiKey),
		model:  openai.ModerationTextLatest,
	}
}

func (s *OpenAIModeration) Name() string { return "openai_moderation" }

func (s *OpenAIModeration) Score(ctx context.Context, text string) (float64, error) {
	resp, err := s.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: s.model,
	})
	if err != nil {
		return 0, fmt.Errorf("openai moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("openai moderation: empty result")
	}

	scores := resp.Results[0].CategoryScores
	worst := maxScore(
		scores.Hate,
		scores.HateThreatening,
		scores.Harassment,
		scores.HarassmentThreatening,
		scores.SelfHarm,
		scores.SelfHarmIntent,
		scores.SelfHarmInstructions,
		scores.Sexual,
		scores.SexualMinors,
		scores.Violence,
		scores.ViolenceGraphic,
	)
	return float64(worst), nil
}

func maxScore(scores ...float32) float32 {
	var worst float32
	for _, s := range scores {
		if s > worst {
			worst = s
		}
	}
	return worst
}
