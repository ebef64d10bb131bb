package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"torchlight/internal/domain/models"
)

// OpenAIClient speaks to any OpenAI-compatible chat completion
// endpoint.
type OpenAIClient struct {
	client oai.Client
	model  string
}

// NewOpenAIClient builds a client for the given endpoint. baseURL may
// point at any compatible server; empty means api.openai.com.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: oai.NewClient(opts...), model: model}
}

// Complete sends the prompt as the system message and the turn context
// as a JSON user message, returning the raw completion text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, *models.TokenUsage, error) {
	contextDoc, err := json.Marshal(map[string]any{
		"session":       req.Session,
		"state":         req.State,
		"prior_state":   req.PriorState,
		"player_intent": req.PlayerIntent,
		"diff":          req.Diff,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", nil, fmt.Errorf("encode narration context: %w", err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(req.Prompt),
			oai.UserMessage(string(contextDoc)),
		},
		Temperature: param.NewOpt(0.7),
	})
	if err != nil {
		return "", nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("chat completion returned no choices")
	}

	usage := &models.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}
