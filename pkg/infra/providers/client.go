package providers

import (
	"context"
)

// Config is passed on every call so one client can serve several models.
type Config struct {
	APIKey       string         `json:"-"`
	Model        string         `json:"model"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	Temperature  float64        `json:"temperature,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Instructions []string       `json:"instructions,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

//go:generate mockery --name=Client --dir=. --output=./mocks --filename=client_mock.go --case=underscore --with-expecter

type Client interface {
	Ask(ctx context.Context, config *Config, prompt string) (*CompletionResponse, error)
}
