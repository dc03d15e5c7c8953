// Package vendors wraps third-party service clients
package vendors

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xiaoyuanzhu-com/claude-deck/config"
)

const titleSystemPrompt = "You name coding sessions. Given the user's first prompt, " +
	"reply with a short title (at most six words) describing the task. " +
	"Reply with the title only, no quotes, no punctuation at the end."

// OpenAI generates session titles through a chat-completion endpoint.
// The base URL is configurable so any OpenAI-compatible server works.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns a titling client, or nil when no API key is configured.
// Callers treat nil as "titling disabled".
func NewOpenAI() *OpenAI {
	cfg := config.Get()
	if cfg.OpenAIAPIKey == "" {
		return nil
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.OpenAIModel,
	}
}

// GenerateTitle produces a short display name from a session's first prompt
func (o *OpenAI) GenerateTitle(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: 32,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("title completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("title completion returned no choices")
	}

	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	title = strings.Trim(title, `"'`)
	if title == "" {
		return "", fmt.Errorf("title completion returned empty text")
	}
	return title, nil
}
