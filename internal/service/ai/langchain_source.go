package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/zhouzirui/streamchat/internal/config"
)

// LangChainSource streams through any langchaingo model.
type LangChainSource struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

// NewOpenAISource connects to the OpenAI chat completions API.
func NewOpenAISource(cfg config.AIConfig) (*LangChainSource, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.OpenAI.APIKey),
		openai.WithModel(cfg.OpenAI.Model),
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return NewLangChainSource(llm, cfg), nil
}

// NewLangChainSource wraps llm with the sampling settings from cfg.
func NewLangChainSource(llm llms.Model, cfg config.AIConfig) *LangChainSource {
	var callOpts []llms.CallOption
	if cfg.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		callOpts = append(callOpts, llms.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens != nil {
		callOpts = append(callOpts, llms.WithMaxTokens(*cfg.MaxTokens))
	}

	return &LangChainSource{
		llm:          llm,
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		callOpts:     callOpts,
	}
}

// Stream implements Source.
func (s *LangChainSource) Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	delivered := 0
	streamingFunc := func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		delivered++
		return onChunk(string(chunk))
	}

	opts := make([]llms.CallOption, 0, len(s.callOpts)+1)
	opts = append(opts, s.callOpts...)
	opts = append(opts, llms.WithStreamingFunc(streamingFunc))

	if _, err := s.llm.GenerateContent(ctx, s.messages(prompt), opts...); err != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	log.WithField("chunks", delivered).Debug("[ai] stream completed")
	return nil
}

// Complete implements Source.
func (s *LangChainSource) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := s.llm.GenerateContent(ctx, s.messages(prompt), s.callOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return NoResponse, nil
	}
	return resp.Choices[0].Content, nil
}

func (s *LangChainSource) messages(prompt string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, 2)
	if s.systemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, s.systemPrompt))
	}
	return append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))
}

var _ Source = (*LangChainSource)(nil)
