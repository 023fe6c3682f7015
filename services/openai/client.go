// Package openai adapts the OpenAI chat completions API to the
// conversation engine's completion gateway.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/advisorop/advisorop-api/services"
	goopenai "github.com/sashabaranov/go-openai"
)

// ErrNoAPIKey indicates the client was constructed without credentials.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY is not set")

// Client implements services.CompletionGateway against OpenAI.
type Client struct {
	api *goopenai.Client
}

// NewClient creates a gateway client. baseURL is optional and allows
// pointing at an OpenAI-compatible endpoint.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Client{api: goopenai.NewClientWithConfig(cfg)}, nil
}

// Complete sends the assembled context plus the new user turn and returns
// the raw completion text.
func (c *Client) Complete(ctx context.Context, turns []services.ContextTurn, newUserText string, params services.ModelParams) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(turns)+1)
	for _, turn := range turns {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    apiRole(turn.Role),
			Content: turn.Text,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: newUserText,
	})

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

func apiRole(role string) string {
	if role == services.TurnRoleAssistant {
		return goopenai.ChatMessageRoleAssistant
	}
	return goopenai.ChatMessageRoleUser
}
