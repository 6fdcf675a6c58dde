// Package transport implements the device connection: dialing (plain, TLS or
// through a SOCKS5 proxy), the unsolicited-status handshake, header stamping
// and the synchronous request/response exchange.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

var (
	// ErrNotConnected is returned by Send outside an Acquire scope.
	ErrNotConnected = errors.New("not connected")
	// ErrSequenceMismatch means the response acknowledged a different request.
	ErrSequenceMismatch = errors.New("response sequence mismatch")
	// ErrHMACMismatch means the response signature did not verify.
	ErrHMACMismatch = errors.New("response HMAC mismatch")
	// ErrHandshake means the device did not open with an unsolicited status.
	ErrHandshake = errors.New("handshake failed")
)

// Client is a connection to one device. Exchanges are serialized: Acquire
// holds the exchange lock until the returned release is called.
type Client struct {
	cfg  Config
	log  logrus.FieldLogger
	dial dialFunc

	mu             sync.Mutex
	conn           net.Conn
	reader         *bufio.Reader
	connectionID   int64
	clusterVersion int64
	sequence       int64
	deviceStatus   *protocol.Command

	ioMu sync.Mutex
}

// NewClient validates cfg and returns an unconnected client.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	dial, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:            cfg,
		log:            cfg.Logger.WithField("device", cfg.Address()),
		dial:           dial,
		clusterVersion: cfg.ClusterVersion,
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (c *Client) Config() Config {
	return c.cfg
}

// UseSSL reports whether the connection is TLS-protected.
func (c *Client) UseSSL() bool {
	return c.cfg.UseSSL
}

// Connect dials the device and reads its unsolicited status. It is a no-op
// when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", c.cfg.Address())
	if err != nil {
		return fmt.Errorf("dial device %s: %w", c.cfg.Address(), err)
	}
	if c.cfg.UseSSL {
		if conn, err = wrapTLS(dialCtx, conn, c.cfg); err != nil {
			return err
		}
	}

	reader := bufio.NewReader(conn)
	status, err := c.readHandshake(conn, reader)
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.reader = reader
	c.deviceStatus = status
	c.connectionID = status.Header.ConnectionID
	c.sequence = 0

	c.log.WithFields(logrus.Fields{
		"connectionID":         c.connectionID,
		"deviceClusterVersion": status.Header.ClusterVersion,
		"tls":                  c.cfg.UseSSL,
	}).Debug("connected to device")
	return nil
}

func (c *Client) readHandshake(conn net.Conn, reader *bufio.Reader) (*protocol.Command, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.SocketTimeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	msg, _, err := protocol.ReadFrame(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if msg.AuthType != protocol.AuthTypeUnsolicitedStatus {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrHandshake, protocol.AuthTypeUnsolicitedStatus, msg.AuthType)
	}
	cmd, err := protocol.DecodeCommand(msg.CommandBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := protocol.CheckStatus(cmd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return cmd, nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ConnectionID returns the ID the device assigned in its handshake.
func (c *Client) ConnectionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// DeviceStatus returns the unsolicited status received on connect, or nil.
func (c *Client) DeviceStatus() *protocol.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceStatus
}

// ClusterVersion returns the cluster version stamped on outgoing headers.
func (c *Client) ClusterVersion() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clusterVersion
}

// SetClusterVersion changes the cluster version stamped on outgoing headers.
func (c *Client) SetClusterVersion(v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clusterVersion = v
}

// Acquire opens a scoped session. It connects on demand and blocks other
// exchanges until release is called; release closes the connection only if
// this scope opened it.
func (c *Client) Acquire(ctx context.Context) (func(), error) {
	c.ioMu.Lock()

	c.mu.Lock()
	opened := c.conn == nil
	err := c.connectLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		c.ioMu.Unlock()
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if opened {
				if err := c.Close(); err != nil {
					c.log.WithError(err).Debug("close after scoped exchange")
				}
			}
			c.ioMu.Unlock()
		})
	}
	return release, nil
}

// UpdateHeader stamps the cluster version, connection ID and the next
// sequence number onto cmd.
func (c *Client) UpdateHeader(cmd *protocol.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence++
	cmd.Header.ClusterVersion = c.clusterVersion
	cmd.Header.ConnectionID = c.connectionID
	cmd.Header.Sequence = c.sequence
	if cmd.Header.TimeoutMs == 0 {
		cmd.Header.TimeoutMs = c.cfg.SocketTimeout.Milliseconds()
	}
}

// Send writes one request and blocks for its response. The request is
// PIN-authenticated when req.PIN is set, HMAC-signed otherwise. Any I/O
// failure closes the connection.
func (c *Client) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	conn, reader := c.conn, c.reader
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	var (
		msg *protocol.Message
		err error
	)
	if req.PIN != nil {
		msg, err = protocol.PINMessage(req.Command, req.PIN)
	} else {
		msg, err = protocol.SignedMessage(req.Command, c.cfg.Identity, c.cfg.Secret)
	}
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.SocketTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	start := time.Now()
	if err := protocol.WriteFrame(conn, msg, req.Value); err != nil {
		c.abort(err)
		return nil, err
	}

	respMsg, value, err := protocol.ReadFrame(reader)
	if err != nil {
		c.abort(err)
		return nil, err
	}
	respCmd, err := protocol.DecodeCommand(respMsg.CommandBytes)
	if err != nil {
		c.abort(err)
		return nil, err
	}

	if err := c.verifyResponse(req, respMsg, respCmd); err != nil {
		c.abort(err)
		return nil, err
	}
	if respCmd.Header.AckSequence != req.Command.Header.Sequence {
		c.abort(ErrSequenceMismatch)
		return nil, fmt.Errorf("%w: sent %d, acknowledged %d", ErrSequenceMismatch, req.Command.Header.Sequence, respCmd.Header.AckSequence)
	}

	c.log.WithFields(logrus.Fields{
		"type":     req.Command.Header.MessageType,
		"sequence": req.Command.Header.Sequence,
		"status":   respCmd.Status.Code,
		"latency":  time.Since(start),
	}).Debug("exchange complete")

	return &protocol.Response{Message: respMsg, Command: respCmd, Value: value}, nil
}

// verifyResponse checks the response envelope. HMAC responses must carry a
// valid signature; PIN requests get PIN responses; an unsigned status may
// only report a failure.
func (c *Client) verifyResponse(req *protocol.Request, msg *protocol.Message, cmd *protocol.Command) error {
	switch msg.AuthType {
	case protocol.AuthTypeHMAC:
		if msg.HMACAuth == nil {
			return fmt.Errorf("%w: response is not signed", ErrHMACMismatch)
		}
		if !protocol.VerifyHMAC(c.cfg.Secret, msg.CommandBytes, msg.HMACAuth.HMAC) {
			return ErrHMACMismatch
		}
		return nil
	case protocol.AuthTypePIN:
		if req.PIN == nil {
			return fmt.Errorf("%w: pin response to a signed request", ErrHMACMismatch)
		}
		return nil
	case protocol.AuthTypeUnsolicitedStatus:
		if cmd.Status.Code == protocol.StatusSuccess {
			return fmt.Errorf("%w: unsigned success response", ErrHMACMismatch)
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected auth type %s", ErrHMACMismatch, msg.AuthType)
	}
}

// abort drops a connection whose stream state is no longer trustworthy.
func (c *Client) abort(cause error) {
	c.log.WithError(cause).Warn("dropping device connection")
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.closeLocked()
}
