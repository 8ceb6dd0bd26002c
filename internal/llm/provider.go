// Package llm summarises portal conflicts and proposes alternative names with a chat model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/IliaW/name-check-worker/config"
)

var ErrNoAPIKey = errors.New("llm api key is not configured")

// Provider sends one system and user prompt pair to a chat model and returns the reply text.
type Provider interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
	Name() string
}

// NewProvider creates the provider named in cfg.
func NewProvider(cfg *config.LlmConfig) (Provider, error) {
	if cfg.ApiKey == "" {
		return nil, ErrNoAPIKey
	}
	switch cfg.Provider {
	case "claude", "anthropic":
		return NewClaudeProvider(cfg), nil
	case "openai", "gpt", "":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", cfg.Provider)
	}
}
