package scorer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const emotionSystemPrompt = `You classify the primary emotion a message would evoke in a young child.
Reply with ONLY one of these words:
joy, sadness, fear, anger, surprise, disgust, neutral`

var knownEmotions = map[string]bool{
	"joy": true, "sadness": true, "fear": true, "anger": true,
	"surprise": true, "disgust": true, "neutral": true,
}

// AnthropicEmotion classifies the primary emotion of a text with a small,
// deterministic prompt against the Anthropic Messages API.
type AnthropicEmotion struct {
	client anthropic.Client
	model  string
}

func NewAnthropicEmotion(apiKey, model string) *AnthropicEmotion {
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	return &AnthropicEmotion{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (s *AnthropicEmotion) Name() string { return "anthropic_emotion" }

func (s *AnthropicEmotion) Classify(ctx context.Context, text string) (string, float64, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   5,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: emotionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("anthropic emotion: %w", err)
	}

	content := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	emotion := strings.ToLower(strings.TrimSpace(content))
	if !knownEmotions[emotion] {
		// Unexpected labels resolve to neutral instead of erroring.
		return "neutral", 0.5, nil
	}
	return emotion, 0.9, nil
}
