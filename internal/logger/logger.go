package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/classify-api/internal/config"
	log "github.com/sirupsen/logrus"
)

// New creates the process logger. Output always goes to stdout and, when a
// log directory is configured, is also appended to server.log there.
func New(cfg *config.Config) (*log.Logger, error) {
	logger := log.New()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	logger.SetOutput(os.Stdout)
	if cfg.LogDirectory != "" {
		file, err := openLogFile(cfg.LogDirectory)
		if err != nil {
			return nil, err
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	}

	return logger, nil
}

// openLogFile opens or creates server.log for appending.
func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	filename := filepath.Join(dir, "server.log")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	return file, nil
}
