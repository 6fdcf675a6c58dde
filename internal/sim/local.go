package sim

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Local is a simulator bound to loopback ports picked by the kernel, with a
// fresh self-signed certificate. It backs in-process tests.
type Local struct {
	Server *Server
	Device *Device
	cert   tls.Certificate
	done   chan error

	closeOnce sync.Once
	closeErr  error
}

// StartLocal starts cfg on 127.0.0.1. The configured ports are ignored.
func StartLocal(cfg *Config, log logrus.FieldLogger) (*Local, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	local := *cfg
	local.Network.Port = 0
	local.Network.TLSPort = 0

	device, err := NewDevice(&local, log)
	if err != nil {
		return nil, err
	}
	cert, err := SelfSignedCertificate("localhost")
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	server, err := NewServer(&local, device, tlsConfig, log)
	if err != nil {
		return nil, err
	}
	if err := server.Listen("127.0.0.1"); err != nil {
		return nil, err
	}

	l := &Local{Server: server, Device: device, cert: cert, done: make(chan error, 1)}
	go func() { l.done <- server.Serve() }()
	return l, nil
}

// Port returns the plain listener port.
func (l *Local) Port() int {
	return l.Server.Addr().(*net.TCPAddr).Port
}

// TLSPort returns the TLS listener port.
func (l *Local) TLSPort() int {
	return l.Server.TLSAddr().(*net.TCPAddr).Port
}

// ClientTLSConfig trusts the simulator certificate.
func (l *Local) ClientTLSConfig() *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(l.cert.Leaf)
	return &tls.Config{RootCAs: pool, ServerName: "localhost", MinVersion: tls.VersionTLS12}
}

// Close stops the simulator and waits for Serve to return.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.Server.Close()
		<-l.done
	})
	return l.closeErr
}
