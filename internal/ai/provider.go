// Package ai produces assistant replies for claim conversations from a
// black-box completion provider.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/liliang-cn/claimdesk/internal/config"
)

// ErrProviderUnavailable is returned when no reply could be produced in
// time. Callers fall back to a canned acknowledgement.
var ErrProviderUnavailable = errors.New("ai provider unavailable")

// Roles in a completion conversation
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation sent to a provider
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a provider-neutral completion call
type CompletionRequest struct {
	System   string
	Messages []Message
}

// Provider turns a conversation into the next assistant message
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}

// Provider names accepted in configuration
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// NewProvider builds the provider selected by configuration
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(cfg), nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	case ProviderNone:
		return unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// unavailable always fails so every turn takes the fallback path. Used when
// no provider is configured.
type unavailable struct{}

func (unavailable) Complete(context.Context, CompletionRequest) (string, error) {
	return "", ErrProviderUnavailable
}

func (unavailable) Name() string { return ProviderNone }
