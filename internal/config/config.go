package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"

	DefaultOpenAIModel = "gpt-3.5-turbo"
)

var ErrAIDisabled = errors.New("ai provider credentials or model missing")

// Config aggregates every setting the service reads.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Stream StreamConfig
	Log    LogConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// StreamConfig tunes the transcript engine.
type StreamConfig struct {
	// Timeout bounds one stream; zero leaves streams unbounded.
	Timeout     time.Duration
	EventBuffer int
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string
	Format string
}

// AIConfig selects and configures the completion provider.
type AIConfig struct {
	Provider     string
	SystemPrompt string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	OpenAI       OpenAIConfig
	Ark          ArkConfig
}

// OpenAIConfig holds OpenAI-compatible endpoint settings.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ArkConfig holds Volcengine Ark settings.
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled reports whether the selected provider has what it needs.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAI.APIKey != "" && c.OpenAI.Model != ""
	case ProviderArk:
		return c.Ark.Model != "" && (c.Ark.APIKey != "" || (c.Ark.AccessKey != "" && c.Ark.SecretKey != ""))
	default:
		return false
	}
}

// NewChatModel builds the Ark chat model from the shared sampling settings.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("ark: %w", ErrAIDisabled)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.Ark.BaseURL,
		Region:      c.Ark.Region,
		APIKey:      c.Ark.APIKey,
		AccessKey:   c.Ark.AccessKey,
		SecretKey:   c.Ark.SecretKey,
		Model:       c.Ark.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

// Defaults registers every key with its default so AutomaticEnv can see it.
func Defaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("ai_provider", ProviderOpenAI)
	v.SetDefault("ai_system_prompt", "")
	v.SetDefault("ai_temperature", "")
	v.SetDefault("ai_top_p", "")
	v.SetDefault("ai_max_tokens", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", DefaultOpenAIModel)
	v.SetDefault("openai_base_url", "")
	v.SetDefault("ark_api_key", "")
	v.SetDefault("ark_access_key", "")
	v.SetDefault("ark_secret_key", "")
	v.SetDefault("ark_model", "")
	v.SetDefault("ark_base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ark_region", "cn-beijing")
	v.SetDefault("stream_timeout", "")
	v.SetDefault("event_buffer", 256)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load resolves configuration from v. A nil v reads the environment only.
// If v has a config file set, it is read first; env values still win.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	Defaults(v)
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	stream, err := loadStreamConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Stream: stream,
		Log: LogConfig{
			Level:  getString(v, "log_level"),
			Format: getString(v, "log_format"),
		},
	}, nil
}

func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := getString(v, "port")
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// accepts ":8080" and "127.0.0.1:8080"
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	provider := strings.ToLower(getString(v, "ai_provider"))
	switch provider {
	case ProviderOpenAI, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloat(v, "ai_temperature")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloat(v, "ai_top_p")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalInt(v, "ai_max_tokens")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:     provider,
		SystemPrompt: getString(v, "ai_system_prompt"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		OpenAI: OpenAIConfig{
			APIKey:  getString(v, "openai_api_key"),
			Model:   getString(v, "openai_model"),
			BaseURL: getString(v, "openai_base_url"),
		},
		Ark: ArkConfig{
			APIKey:    getString(v, "ark_api_key"),
			AccessKey: getString(v, "ark_access_key"),
			SecretKey: getString(v, "ark_secret_key"),
			Model:     getString(v, "ark_model"),
			BaseURL:   getString(v, "ark_base_url"),
			Region:    getString(v, "ark_region"),
		},
	}, nil
}

func loadStreamConfig(v *viper.Viper) (StreamConfig, error) {
	var timeout time.Duration
	if raw := getString(v, "stream_timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return StreamConfig{}, fmt.Errorf("invalid STREAM_TIMEOUT value %q: %w", raw, err)
		}
		if parsed < 0 {
			return StreamConfig{}, fmt.Errorf("invalid STREAM_TIMEOUT value %q: must not be negative", raw)
		}
		timeout = parsed
	}

	buffer, err := parseOptionalInt(v, "event_buffer")
	if err != nil {
		return StreamConfig{}, err
	}
	eventBuffer := 256
	if buffer != nil && *buffer > 0 {
		eventBuffer = *buffer
	}

	return StreamConfig{Timeout: timeout, EventBuffer: eventBuffer}, nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	value := getString(v, key)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), value, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	value := getString(v, key)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", strings.ToUpper(key), value, err)
	}
	return &val, nil
}
