// Package logging builds the process logger from LogConfig.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chenchongli/kinetic-go/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// New returns a logrus logger configured by cfg. The returned closer
// releases the log file, if any.
func New(cfg *config.LogConfig) (*logrus.Logger, io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("log config cannot be nil")
	}

	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.Warnf("Invalid log level '%s', using 'info' as default", cfg.Level)
	}
	logger.SetLevel(level)

	if err := setFormatter(logger, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to set log formatter: %w", err)
	}

	closer, err := setOutput(logger, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set log output: %w", err)
	}

	logger.SetReportCaller(cfg.Caller)
	return logger, closer, nil
}

func setFormatter(logger *logrus.Logger, cfg *config.LogConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setOutput(logger *logrus.Logger, cfg *config.LogConfig) (io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr", "":
		logger.SetOutput(os.Stderr)
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		// Debug sessions also echo to the console.
		if strings.EqualFold(cfg.Level, "debug") {
			logger.SetOutput(io.MultiWriter(os.Stderr, lj))
		} else {
			logger.SetOutput(lj)
		}
		return lj, nil
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
	return nopCloser{}, nil
}
