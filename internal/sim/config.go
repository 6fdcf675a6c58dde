package sim

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config represents the complete configuration for the device simulator
type Config struct {
	Network    NetworkConfig    `yaml:"network"`
	Device     DeviceConfig     `yaml:"device"`
	Identities []IdentityConfig `yaml:"identities"`
	Mode       string           `yaml:"mode"`
}

// NetworkConfig holds listener settings
type NetworkConfig struct {
	Port           int      `yaml:"port"`
	TLSPort        int      `yaml:"tlsPort"`
	CertFile       string   `yaml:"certFile"`
	KeyFile        string   `yaml:"keyFile"`
	AllowedCIDRs   []string `yaml:"allowedCidrs"`
	IdleTimeoutSec int      `yaml:"idleTimeoutSec"`
}

// DeviceConfig holds the identity and initial security state of the device
type DeviceConfig struct {
	Vendor          string `yaml:"vendor"`
	Model           string `yaml:"model"`
	SerialNumber    string `yaml:"serialNumber"`
	FirmwareVersion string `yaml:"firmwareVersion"`
	ClusterVersion  int64  `yaml:"clusterVersion"`
	CapacityBytes   uint64 `yaml:"capacityBytes"`
	LockPIN         string `yaml:"lockPin"`
	ErasePIN        string `yaml:"erasePin"`
	Locked          bool   `yaml:"locked"`
}

// IdentityConfig seeds one ACL entry
type IdentityConfig struct {
	ID          int64    `yaml:"id"`
	Secret      string   `yaml:"secret"`
	Permissions []string `yaml:"permissions"`
	TLSRequired bool     `yaml:"tlsRequired"`
}

// Device modes
const (
	ModeNormal  = "normal"
	ModeBusy    = "busy"
	ModeOffline = "offline"
)

// LoadConfig loads configuration from an optional YAML file and environment variables
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load simulator config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			Port:           8123,
			TLSPort:        8443,
			AllowedCIDRs:   []string{"127.0.0.0/8", "::1/128"},
			IdleTimeoutSec: 300,
		},
		Device: DeviceConfig{
			Vendor:          "Seagate",
			Model:           "Simulator",
			SerialNumber:    "SIM0000001",
			FirmwareVersion: "1.0.0",
			ClusterVersion:  0,
			CapacityBytes:   4 << 40,
		},
		Identities: []IdentityConfig{
			{
				ID:     1,
				Secret: "asdfasdf",
				Permissions: []string{
					"READ", "WRITE", "DELETE", "RANGE", "SETUP", "P2POP", "GETLOG", "SECURITY",
				},
			},
		},
		Mode: ModeNormal,
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if mode := os.Getenv("KINETIC_SIM_MODE"); mode != "" {
		cfg.Mode = mode
	}

	if port := os.Getenv("KINETIC_SIM_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Network.Port = p
		}
	}

	if port := os.Getenv("KINETIC_SIM_TLS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Network.TLSPort = p
		}
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if !validMode(cfg.Mode) {
		return fmt.Errorf("invalid mode %s, must be one of: %v", cfg.Mode, []string{ModeNormal, ModeBusy, ModeOffline})
	}

	if cfg.Network.Port < 0 || cfg.Network.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Network.Port)
	}
	if cfg.Network.TLSPort < 0 || cfg.Network.TLSPort > 65535 {
		return fmt.Errorf("invalid tls port %d", cfg.Network.TLSPort)
	}
	if (cfg.Network.CertFile == "") != (cfg.Network.KeyFile == "") {
		return fmt.Errorf("certFile and keyFile must be set together")
	}

	if len(cfg.Identities) == 0 {
		return fmt.Errorf("at least one identity must be configured")
	}
	seen := make(map[int64]bool)
	for _, id := range cfg.Identities {
		if id.Secret == "" {
			return fmt.Errorf("identity %d has an empty secret", id.ID)
		}
		if seen[id.ID] {
			return fmt.Errorf("identity %d configured twice", id.ID)
		}
		seen[id.ID] = true
	}

	return nil
}

func validMode(mode string) bool {
	switch mode {
	case ModeNormal, ModeBusy, ModeOffline:
		return true
	}
	return false
}
