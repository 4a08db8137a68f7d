package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/streamchat/internal/config"
)

const (
	// NoResponse is returned by Complete when the model produced no text.
	NoResponse = "No response"
	// CompletionErrorText is what callers show when Complete fails.
	CompletionErrorText = "Error: Failed to get response from OpenAI"
)

var (
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrGeneration  = errors.New("completion request failed")
)

// Source talks to a hosted completion endpoint.
type Source interface {
	// Stream delivers the reply to prompt fragment by fragment, in arrival
	// order, and returns once the provider is done. Empty fragments are
	// never delivered.
	Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error
	// Complete returns the whole reply in one call.
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewSource builds the Source selected by cfg.Provider.
func NewSource(ctx context.Context, cfg config.AIConfig) (Source, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, config.ErrAIDisabled)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAISource(cfg)
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewEinoSource(ctx, chatModel, cfg.SystemPrompt)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

var log = logrus.WithField("component", "ai")
