package sim

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Network.Port != 8123 {
		t.Errorf("Expected port 8123, got %d", cfg.Network.Port)
	}
	if cfg.Network.TLSPort != 8443 {
		t.Errorf("Expected TLS port 8443, got %d", cfg.Network.TLSPort)
	}
	if cfg.Mode != ModeNormal {
		t.Errorf("Expected mode normal, got %s", cfg.Mode)
	}
	if len(cfg.Identities) != 1 || cfg.Identities[0].ID != 1 {
		t.Errorf("Expected the default identity 1, got %+v", cfg.Identities)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	data := []byte(`
mode: busy
network:
  port: 9123
device:
  serialNumber: SN-42
  lockPin: "1234"
identities:
  - id: 7
    secret: seven
    permissions: [GETLOG, SETUP]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Mode != ModeBusy {
		t.Errorf("Expected mode busy, got %s", cfg.Mode)
	}
	if cfg.Network.Port != 9123 {
		t.Errorf("Expected port 9123, got %d", cfg.Network.Port)
	}
	if cfg.Network.TLSPort != 8443 {
		t.Errorf("Expected default TLS port to survive, got %d", cfg.Network.TLSPort)
	}
	if cfg.Device.SerialNumber != "SN-42" || cfg.Device.LockPIN != "1234" {
		t.Errorf("Unexpected device section %+v", cfg.Device)
	}
	if len(cfg.Identities) != 1 || cfg.Identities[0].ID != 7 {
		t.Errorf("Expected identities to be replaced, got %+v", cfg.Identities)
	}
}

func TestLoadConfigFromNonExistentFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KINETIC_SIM_MODE", "offline")
	t.Setenv("KINETIC_SIM_PORT", "18123")
	t.Setenv("KINETIC_SIM_TLS_PORT", "not-a-number")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Mode != ModeOffline {
		t.Errorf("Expected mode offline, got %s", cfg.Mode)
	}
	if cfg.Network.Port != 18123 {
		t.Errorf("Expected port 18123, got %d", cfg.Network.Port)
	}
	if cfg.Network.TLSPort != 8443 {
		t.Errorf("Expected invalid TLS port override to be ignored, got %d", cfg.Network.TLSPort)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid mode", func(c *Config) { c.Mode = "degraded" }},
		{"port out of range", func(c *Config) { c.Network.Port = 70000 }},
		{"cert without key", func(c *Config) { c.Network.CertFile = "cert.pem" }},
		{"no identities", func(c *Config) { c.Identities = nil }},
		{"empty secret", func(c *Config) { c.Identities[0].Secret = "" }},
		{"duplicate identity", func(c *Config) {
			c.Identities = append(c.Identities, c.Identities[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := ValidateConfig(cfg); err == nil {
				t.Errorf("ValidateConfig() expected error for %s", tt.name)
			}
		})
	}
}
