package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Load starts from Defaults, merges the YAML file at path when it exists,
// applies KINETIC_* environment overrides and validates the result. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	config := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFromFile(config, path); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile decodes YAML over the current values. Keys absent from the
// file keep their current value.
func loadFromFile(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, config)
}

// applyEnvOverrides applies KINETIC_* environment variables. Values that do
// not parse are ignored.
func applyEnvOverrides(config *Config) {
	if val := os.Getenv("KINETIC_HOST"); val != "" {
		config.Device.Host = val
	}
	if val := os.Getenv("KINETIC_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Device.Port = port
		}
	}
	if val := os.Getenv("KINETIC_TLS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Device.UseSSL = b
		}
	}
	if val := os.Getenv("KINETIC_CA_FILE"); val != "" {
		config.Device.CAFile = val
	}
	if val := os.Getenv("KINETIC_IDENTITY"); val != "" {
		if id, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Device.Identity = id
		}
	}
	if val := os.Getenv("KINETIC_SECRET"); val != "" {
		config.Device.Secret = val
	}
	if val := os.Getenv("KINETIC_CLUSTER_VERSION"); val != "" {
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Device.ClusterVersion = v
		}
	}
	if val := os.Getenv("KINETIC_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Device.Timeout = d
		}
	}
	if val := os.Getenv("KINETIC_PROXY"); val != "" {
		config.Device.Proxy = val
	}

	if val := os.Getenv("KINETIC_LOG_LEVEL"); val != "" {
		config.Log.Level = val
	}
	if val := os.Getenv("KINETIC_LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}

	if val := os.Getenv("KINETIC_AUDIT_DIR"); val != "" {
		config.Audit.Dir = val
		config.Audit.Enabled = true
	}

	if val := os.Getenv("KINETIC_AUTH_SECRET"); val != "" {
		config.Auth.Secret = val
	}
}
