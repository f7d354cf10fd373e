package llm

import (
	"context"
	"fmt"

	"riskai/internal/config"
)

// Request contains the data sent to an LLM for completion.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response contains the raw response from an LLM.
type Response struct {
	Content    string
	TokensUsed int
}

// Client is the provider abstraction interface.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// New creates a provider client by name.
func New(cfg config.Config) (Client, error) {
	switch cfg.Provider {
	case "gigachat":
		return NewGigaChat(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
