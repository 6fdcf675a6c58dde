package sim

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// Server accepts device connections on a plain and, optionally, a TLS
// listener and feeds their frames to a Device.
type Server struct {
	config      *Config
	device      *Device
	tlsConfig   *tls.Config
	log         logrus.FieldLogger
	allowed     []*net.IPNet
	idleTimeout time.Duration

	nextConnID atomic.Int64

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup
}

// NewServer creates a server for device. tlsConfig may be nil, in which case
// only the plain listener is started.
func NewServer(cfg *Config, device *Device, tlsConfig *tls.Config, log logrus.FieldLogger) (*Server, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		config:      cfg,
		device:      device,
		tlsConfig:   tlsConfig,
		log:         log.WithField("component", "server"),
		idleTimeout: time.Duration(cfg.Network.IdleTimeoutSec) * time.Second,
		conns:       make(map[net.Conn]struct{}),
	}
	s.nextConnID.Store(time.Now().Unix())

	for _, cidr := range cfg.Network.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		s.allowed = append(s.allowed, network)
	}
	return s, nil
}

// Listen opens the configured listeners without serving them. Port 0 picks a
// free port; Addr and TLSAddr report the result.
func (s *Server) Listen(host string) error {
	plain, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(s.config.Network.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Network.Port, err)
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, plain)
	s.mu.Unlock()

	if s.tlsConfig == nil {
		return nil
	}
	raw, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(s.config.Network.TLSPort)))
	if err != nil {
		_ = plain.Close()
		return fmt.Errorf("failed to listen on tls port %d: %w", s.config.Network.TLSPort, err)
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, tls.NewListener(raw, s.tlsConfig))
	s.mu.Unlock()
	return nil
}

// Addr returns the plain listener address.
func (s *Server) Addr() net.Addr {
	return s.listenerAddr(0)
}

// TLSAddr returns the TLS listener address, or nil without TLS.
func (s *Server) TLSAddr() net.Addr {
	return s.listenerAddr(1)
}

func (s *Server) listenerAddr(i int) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.listeners) {
		return nil
	}
	return s.listeners[i].Addr()
}

// Serve accepts on every open listener until Close is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	listeners := append([]net.Listener(nil), s.listeners...)
	s.mu.Unlock()
	if len(listeners) == 0 {
		return errors.New("server is not listening")
	}

	errCh := make(chan error, len(listeners))
	for i, l := range listeners {
		secure := i > 0
		s.log.WithFields(logrus.Fields{"addr": l.Addr().String(), "tls": secure}).Info("device simulator listening")
		go func(l net.Listener, secure bool) {
			errCh <- s.acceptLoop(l, secure)
		}(l, secure)
	}

	var first error
	for range listeners {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	s.wg.Wait()
	return first
}

// ListenAndServe listens on all interfaces and serves.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(""); err != nil {
		return err
	}
	return s.Serve()
}

func (s *Server) acceptLoop(l net.Listener, secure bool) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithError(err).Warn("failed to accept connection")
			continue
		}

		if !s.isAllowedConnection(conn) {
			s.log.WithField("remote", conn.RemoteAddr().String()).Warn("rejected connection (not in allowed CIDRs)")
			_ = conn.Close()
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn, secure)
		}()
	}
}

// handleConnection sends the unsolicited status and then answers frames
// until the peer disconnects or goes idle.
func (s *Server) handleConnection(conn net.Conn, secure bool) {
	defer conn.Close()
	log := s.log.WithFields(logrus.Fields{"remote": conn.RemoteAddr().String(), "tls": secure})

	if s.device.Mode() == ModeOffline {
		log.Debug("offline mode, dropping connection")
		return
	}

	connID := s.nextConnID.Add(1)
	status, err := s.device.Status(connID)
	if err != nil {
		log.WithError(err).Error("failed to build unsolicited status")
		return
	}
	if err := protocol.WriteFrame(conn, status, nil); err != nil {
		log.WithError(err).Debug("failed to send unsolicited status")
		return
	}

	reader := bufio.NewReader(conn)
	for {
		if s.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		msg, value, err := protocol.ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				log.WithError(err).Debug("connection closed")
			}
			return
		}
		if s.device.Mode() == ModeOffline {
			log.Debug("offline mode, dropping connection")
			return
		}

		resp, respValue, err := s.device.Execute(msg, value, connID, secure)
		if err != nil {
			log.WithError(err).Error("failed to build response")
			return
		}
		if err := protocol.WriteFrame(conn, resp, respValue); err != nil {
			log.WithError(err).Debug("failed to write response")
			return
		}
	}
}

// isAllowedConnection checks the peer against the allowed CIDRs. An empty
// list allows everyone.
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	if len(s.allowed) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range s.allowed {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the listeners and drops every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var first error
	for _, l := range s.listeners {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return first
}
