package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/logging"
	"github.com/zhouzirui/streamchat/internal/service/ai"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "streamchat",
		Short:         "Browser chat that streams replies from a hosted LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "optional config file (yaml, json or toml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringP("log-level", "l", "info", "log level")
	flags.String("provider", config.ProviderOpenAI, "completion provider: openai or ark")
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("ai_provider", flags.Lookup("provider"))

	root.AddCommand(a.newServeCmd(), a.newAskCmd())
	return root
}

// setup loads configuration and the logger; it runs before every command.
func (a *app) setup() (*config.Config, error) {
	if err := godotenv.Load(a.envFile); err != nil {
		logrus.WithError(err).Debug("no dotenv file loaded, using process environment only")
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.Setup(cfg.Log, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngine creates the completion source and the transcript engine on
// top of it. A missing provider is not fatal: replies resolve to the error
// marker until credentials are supplied.
func buildEngine(ctx context.Context, cfg *config.Config) (*chatService.Engine, ai.Source, error) {
	source, err := ai.NewSource(ctx, cfg.AI)
	if err != nil {
		logrus.WithError(err).Warn("AI provider unavailable, replies will fail until it is configured")
		source = ai.NewUnavailableSource(err)
	} else {
		logrus.WithField("provider", cfg.AI.Provider).Info("AI provider initialized")
	}

	engine, err := chatService.NewEngine(source, chatService.Options{
		Timeout:     cfg.Stream.Timeout,
		EventBuffer: cfg.Stream.EventBuffer,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, source, nil
}
