package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// EinoSource streams through an eino chat model, e.g. Ark.
type EinoSource struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
}

// NewEinoSource compiles a template+model chain around chatModel.
func NewEinoSource(ctx context.Context, chatModel model.BaseChatModel, systemPrompt string) (*EinoSource, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	// Placeholders pass messages through untouched, so braces in user text
	// are never treated as template variables.
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system", true),
		schema.MessagesPlaceholder("conversation", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &EinoSource{
		chain:        runnable,
		systemPrompt: strings.TrimSpace(systemPrompt),
	}, nil
}

// Stream implements Source.
func (s *EinoSource) Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	stream, err := s.chain.Stream(ctx, s.input(prompt))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	defer stream.Close()

	delivered := 0
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return fmt.Errorf("%w: %w", ErrGeneration, recvErr)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		delivered++
		if err := onChunk(chunk.Content); err != nil {
			return err
		}
	}

	log.WithField("chunks", delivered).Debug("[ai] stream completed")
	return nil
}

// Complete implements Source.
func (s *EinoSource) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	response, err := s.chain.Invoke(ctx, s.input(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if response == nil || response.Content == "" {
		return NoResponse, nil
	}
	return response.Content, nil
}

func (s *EinoSource) input(prompt string) map[string]any {
	var system []*schema.Message
	if s.systemPrompt != "" {
		system = []*schema.Message{schema.SystemMessage(s.systemPrompt)}
	}
	return map[string]any{
		"system":       system,
		"conversation": []*schema.Message{schema.UserMessage(prompt)},
	}
}

var _ Source = (*EinoSource)(nil)
