// Package llm wraps the chat completion calls shared by the code generator and
// the evaluator.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/programme-lv/pagesforge/conf"
	"github.com/sashabaranov/go-openai"
)

// Completer is the subset of *openai.Client used here.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var ErrEmptyResponse = errors.New("llm returned no choices")

func NewClient(c conf.OpenAI) *openai.Client {
	cfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: c.Timeout}
	return openai.NewClientWithConfig(cfg)
}

// Prompt is one system plus user exchange answered in JSON object mode.
type Prompt struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// CompleteJSON runs the prompt and decodes the reply into out.
func CompleteJSON(ctx context.Context, c Completer, p Prompt, out any) error {
	resp, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature:    p.Temperature,
		MaxTokens:      p.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode completion %q: %w", truncate(content, 200), err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
