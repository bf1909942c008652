package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// Client wraps the external completion service. Prompt + model in, text and
// token usage out; everything else about the service is a collaborator detail.
type Client struct {
	openai openai.Client
	model  string
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	log.Info().Str("model", model).Msg("AI completion client configured")

	return &Client{openai: openai.NewClient(opts...), model: model}, nil
}

// Complete sends a system+user prompt and returns the completion text plus
// total token usage.
func (c *Client) Complete(ctx context.Context, system, user string) (string, int, error) {
	resp, err := c.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(400),
	})
	if err != nil {
		return "", 0, fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", int(resp.Usage.TotalTokens), fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, int(resp.Usage.TotalTokens), nil
}
