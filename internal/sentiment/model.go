package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sectorpulse/internal/llm"
	"sectorpulse/pkg/models"
)

const classifyPrompt = `Classify the sentiment of the following financial text. Respond with only a JSON object: {"label":"positive|neutral|negative","score":<-1.0 to 1.0>,"confidence":<0.0 to 1.0>}

Text: %s`

// LLMClassifier is the Tier-2 classifier backed by a chat model.
type LLMClassifier struct {
	provider llm.Provider
	opts     *llm.ChatOptions
}

// NewLLMClassifier creates a model-backed classifier.
func NewLLMClassifier(provider llm.Provider, opts *llm.ChatOptions) *LLMClassifier {
	return &LLMClassifier{provider: provider, opts: opts}
}

// Ping probes the backing provider.
func (c *LLMClassifier) Ping(ctx context.Context) error {
	return c.provider.Ping(ctx)
}

// Classify asks the model for a label, score, and confidence.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (models.Sentiment, error) {
	resp, err := c.provider.Chat(ctx,
		[]llm.Message{llm.UserMessage(fmt.Sprintf(classifyPrompt, text))},
		nil, c.opts)
	if err != nil {
		return models.Sentiment{}, fmt.Errorf("sentiment: model classify: %w", err)
	}

	var parsed struct {
		Label      string  `json:"label"`
		Score      float64 `json:"score"`
		Confidence float64 `json:"confidence"`
	}
	raw := extractJSON(resp.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return models.Sentiment{}, fmt.Errorf("sentiment: parse model output %q: %w", resp.Content, err)
	}

	label := models.SentimentLabel(strings.ToLower(parsed.Label))
	switch label {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
	default:
		return models.Sentiment{}, fmt.Errorf("sentiment: model returned unknown label %q", parsed.Label)
	}

	return models.Sentiment{
		Label:      label,
		Score:      clamp(parsed.Score, -1, 1),
		Confidence: clamp(parsed.Confidence, 0, 1),
		Tier:       models.TierModel,
	}, nil
}

// extractJSON trims any prose or code fencing around the JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
