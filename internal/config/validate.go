package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate checks a merged configuration.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateDevice(&config.Device); err != nil {
		return fmt.Errorf("device validation failed: %w", err)
	}
	if err := validateLog(&config.Log); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}
	if err := validateAudit(&config.Audit); err != nil {
		return fmt.Errorf("audit validation failed: %w", err)
	}
	if err := validateAuth(&config.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	return nil
}

func validateDevice(d *DeviceConfig) error {
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("invalid port %d", d.Port)
	}
	if d.Identity <= 0 {
		return fmt.Errorf("identity must be positive, got %d", d.Identity)
	}
	if d.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if d.Timeout < 0 || d.ConnectTimeout < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	if d.CAFile != "" && !d.UseSSL {
		return fmt.Errorf("caFile is set but tls is off")
	}
	if d.Proxy != "" {
		u, err := url.Parse(d.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
		if u.Scheme != "socks5" && u.Scheme != "socks5h" {
			return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}
	return nil
}

func validateLog(l *LogConfig) error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return err
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", l.Format)
	}
	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file":
		if l.File == "" {
			return fmt.Errorf("file path is required when output is file")
		}
	default:
		return fmt.Errorf("unsupported log output: %s", l.Output)
	}
	return nil
}

func validateAudit(a *AuditConfig) error {
	if a.Enabled && a.Dir == "" {
		return fmt.Errorf("audit directory is required when audit is enabled")
	}
	if a.MaxSizeMB < 0 || a.MaxBackups < 0 || a.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits must be non-negative")
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	if !a.Required {
		return nil
	}
	switch a.Algorithm {
	case "HS256":
		if a.Secret == "" {
			return fmt.Errorf("HS256 requires a secret")
		}
	case "RS256":
		if a.PublicKeyFile == "" {
			return fmt.Errorf("RS256 requires a public key file")
		}
	default:
		return fmt.Errorf("unsupported algorithm: %s", a.Algorithm)
	}
	if a.Leeway < 0 {
		return fmt.Errorf("leeway must be non-negative")
	}
	return nil
}
