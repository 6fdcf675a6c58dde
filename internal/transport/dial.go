package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// newDialer returns the TCP dial function for cfg: direct, or through the
// configured SOCKS5 proxy.
func newDialer(cfg Config) (dialFunc, error) {
	direct := &net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.ProxyURL == "" {
		return direct.DialContext, nil
	}

	u, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme: %s (only socks5 is supported)", u.Scheme)
	}

	forward, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}
	if cd, ok := forward.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		ch := make(chan dialResult, 1)
		go func() {
			conn, err := forward.Dial(network, address)
			ch <- dialResult{conn, err}
		}()
		select {
		case <-ctx.Done():
			go func() {
				if res := <-ch; res.conn != nil {
					_ = res.conn.Close()
				}
			}()
			return nil, ctx.Err()
		case res := <-ch:
			return res.conn, res.err
		}
	}, nil
}

// wrapTLS performs the client handshake on an established connection.
func wrapTLS(ctx context.Context, raw net.Conn, cfg Config) (net.Conn, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLSConfig != nil {
		tlsCfg = cfg.TLSConfig.Clone()
	}
	if tlsCfg.ServerName == "" && !tlsCfg.InsecureSkipVerify {
		tlsCfg.ServerName = cfg.Host
	}

	conn := tls.Client(raw, tlsCfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return conn, nil
}
