// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/streamchat/internal/config"
)

// Setup applies level and formatter to the standard logrus logger.
func Setup(cfg config.LogConfig, out io.Writer) error {
	logger := logrus.StandardLogger()
	if out != nil {
		logger.SetOutput(out)
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	formatter, err := newFormatter(cfg.Format)
	if err != nil {
		return err
	}
	logger.SetFormatter(formatter)
	return nil
}

// ParseLevel maps a config string to a logrus level; blank means info.
func ParseLevel(raw string) (logrus.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value %q: %w", raw, err)
	}
	return level, nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return &logrus.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}
}
