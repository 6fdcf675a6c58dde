package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/chenchongli/kinetic-go/internal/audit"
	"github.com/chenchongli/kinetic-go/internal/auth"
	"github.com/chenchongli/kinetic-go/internal/transport"
)

// Transport converts the device section into a connection configuration.
// The CA file, if any, is read here.
func (d DeviceConfig) Transport() (transport.Config, error) {
	cfg := transport.Config{
		Host:           d.Host,
		Port:           d.Port,
		UseSSL:         d.UseSSL,
		Identity:       d.Identity,
		Secret:         []byte(d.Secret),
		ClusterVersion: d.ClusterVersion,
		ConnectTimeout: d.ConnectTimeout,
		SocketTimeout:  d.Timeout,
		ProxyURL:       d.Proxy,
	}
	if !d.UseSSL {
		return cfg, nil
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: d.InsecureSkipVerify}
	if d.CAFile != "" {
		pem, err := os.ReadFile(d.CAFile)
		if err != nil {
			return transport.Config{}, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return transport.Config{}, fmt.Errorf("no certificates found in %s", d.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	cfg.TLSConfig = tlsCfg
	return cfg, nil
}

// Verifier converts the auth section into a token verifier configuration.
func (a AuthConfig) Verifier() (auth.VerifierConfig, error) {
	cfg := auth.VerifierConfig{
		Algorithm: a.Algorithm,
		SecretKey: a.Secret,
		Issuer:    a.Issuer,
		Leeway:    a.Leeway,
	}
	if a.PublicKeyFile != "" {
		pem, err := os.ReadFile(a.PublicKeyFile)
		if err != nil {
			return auth.VerifierConfig{}, fmt.Errorf("failed to read public key: %w", err)
		}
		cfg.PublicKeyPEM = string(pem)
	}
	return cfg, nil
}

// Options converts the audit section into audit logger options.
func (a AuditConfig) Options() audit.Options {
	return audit.Options{
		Dir:        a.Dir,
		MaxSizeMB:  a.MaxSizeMB,
		MaxBackups: a.MaxBackups,
		MaxAgeDays: a.MaxAgeDays,
		Compress:   a.Compress,
	}
}
