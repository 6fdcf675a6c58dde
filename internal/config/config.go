package config

import (
	"time"
)

// Config is the complete admin tool configuration.
type Config struct {
	Device DeviceConfig `yaml:"device"`
	Log    LogConfig    `yaml:"log"`
	Audit  AuditConfig  `yaml:"audit"`
	Auth   AuthConfig   `yaml:"auth"`
}

// DeviceConfig describes the device to administer.
type DeviceConfig struct {
	Host string `yaml:"host"`
	// Port defaults by TLS setting when zero.
	Port   int  `yaml:"port"`
	UseSSL bool `yaml:"tls"`
	// CAFile is a PEM bundle used to verify the device certificate.
	CAFile             string `yaml:"caFile"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`

	Identity       int64  `yaml:"identity"`
	Secret         string `yaml:"secret"`
	ClusterVersion int64  `yaml:"clusterVersion"`

	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	// Timeout is the socket timeout. Zero selects the admin default.
	Timeout time.Duration `yaml:"timeout"`

	// Proxy is a socks5:// URL for devices behind a jump host.
	Proxy string `yaml:"proxy"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
	Output string `yaml:"output"` // stdout|stderr|file
	File   string `yaml:"file"`

	MaxSizeMB  int  `yaml:"maxSizeMB"`
	MaxBackups int  `yaml:"maxBackups"`
	MaxAgeDays int  `yaml:"maxAgeDays"`
	Compress   bool `yaml:"compress"`
	Caller     bool `yaml:"caller"`
}

// AuditConfig controls the admin action audit trail.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// AuthConfig controls operator token checks.
type AuthConfig struct {
	// Required makes every command demand a valid operator token.
	Required      bool          `yaml:"required"`
	Algorithm     string        `yaml:"algorithm"`
	Secret        string        `yaml:"secret"`
	PublicKeyFile string        `yaml:"publicKeyFile"`
	Issuer        string        `yaml:"issuer"`
	Leeway        time.Duration `yaml:"leeway"`
}

// Defaults returns the built-in baseline.
func Defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			Host:           "localhost",
			Identity:       1,
			Secret:         "asdfasdf",
			ConnectTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Audit: AuditConfig{
			Dir:        "audit",
			MaxSizeMB:  50,
			MaxBackups: 10,
			MaxAgeDays: 90,
		},
		Auth: AuthConfig{
			Algorithm: "HS256",
			Leeway:    30 * time.Second,
		},
	}
}
