package llm

import (
	"context"
	"fmt"

	"github.com/recallbox/recallbox/internal/config"
)

// Message is one turn of a conversation, oldest first.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Provider generates study-card content from a prompt and prior conversation.
type Provider interface {
	// GenerateResponse returns the model's completion for prompt, given the
	// conversation history (oldest first). Blocks until the provider responds
	// or ctx is cancelled.
	GenerateResponse(ctx context.Context, prompt string, history []Message) (string, error)

	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// New selects a provider implementation from configuration. The provider is
// chosen once at startup; an unknown name is a configuration error.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAI(cfg), nil
	case "anthropic":
		return newAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
