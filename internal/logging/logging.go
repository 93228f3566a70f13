package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"jupyter-proxy-apps/internal/config"
)

// New builds the process logger. Every entry carries the service name.
func New(cfg config.LogConfig, name string) (*logrus.Entry, error) {
	return newWithOutput(cfg, name, os.Stderr)
}

func newWithOutput(cfg config.LogConfig, name string, out io.Writer) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.Out = out

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level failed: %w", err)
	}
	logger.Level = level

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return logger.WithField("service", name), nil
}

// Discard is a logger for tests and tools that must stay quiet.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.Out = io.Discard
	return logrus.NewEntry(logger)
}
