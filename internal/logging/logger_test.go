package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenchongli/kinetic-go/internal/config"
)

func TestNewFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kineticadm.log")
	logger, closer, err := New(&config.LogConfig{Level: "warn", Format: "json", Output: "file", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.WithField("op", "lock").Warn("admin call failed")
	logger.Info("dropped")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "admin call failed", entry["message"])
	assert.Equal(t, "lock", entry["op"])
	assert.Equal(t, "warning", entry["level"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewDefaultsAndFallbacks(t *testing.T) {
	logger, closer, err := New(&config.LogConfig{Level: "shouty"})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.LogConfig
	}{
		{"nil", nil},
		{"format", &config.LogConfig{Level: "info", Format: "xml"}},
		{"output", &config.LogConfig{Level: "info", Output: "syslog"}},
		{"file without path", &config.LogConfig{Level: "info", Output: "file"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}
