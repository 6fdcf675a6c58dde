package admin

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chenchongli/kinetic-go/internal/audit"
	"github.com/chenchongli/kinetic-go/internal/operations"
	"github.com/chenchongli/kinetic-go/internal/protocol"
	"github.com/chenchongli/kinetic-go/internal/transport"
)

// DefaultTimeout is the socket timeout used when the configuration leaves it
// unset. Firmware updates and secure erase can run for a long time.
const DefaultTimeout = 60 * time.Second

// Config configures an AdminClient.
type Config struct {
	Transport transport.Config

	// PIN is the session PIN used by lock, unlock and the erase commands
	// when no per-call PIN is given.
	PIN []byte

	// Audit receives one record per call. Optional.
	Audit AuditLogger

	Logger logrus.FieldLogger

	// Deprecated is told about calls to deprecated methods. Defaults to a
	// warning on Logger.
	Deprecated DeprecationFunc
}

// AdminClient issues administrative commands to one device. Calls are
// serialized; a call blocks until the device answers or the socket times out.
type AdminClient struct {
	conn       Conn
	device     string
	timeout    time.Duration
	log        logrus.FieldLogger
	audit      AuditLogger
	deprecated DeprecationFunc

	callMu sync.Mutex
	pin    []byte
}

// New creates a client over a transport connection built from
// cfg.Transport. The connection is opened on the first call.
func New(cfg Config) (*AdminClient, error) {
	if cfg.Transport.SocketTimeout == 0 {
		cfg.Transport.SocketTimeout = DefaultTimeout
	}
	if cfg.Transport.Logger == nil && cfg.Logger != nil {
		cfg.Transport.Logger = cfg.Logger
	}
	conn, err := transport.NewClient(cfg.Transport)
	if err != nil {
		return nil, err
	}
	return NewWithConn(conn, cfg), nil
}

// NewWithConn creates a client over an existing connection. Only the
// non-transport fields of cfg and the transport address are used.
func NewWithConn(conn Conn, cfg Config) *AdminClient {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	tc := cfg.Transport.WithDefaults()
	if cfg.Transport.SocketTimeout == 0 {
		tc.SocketTimeout = DefaultTimeout
	}

	c := &AdminClient{
		conn:       conn,
		device:     tc.Address(),
		timeout:    tc.SocketTimeout,
		log:        log.WithField("device", tc.Address()),
		audit:      cfg.Audit,
		deprecated: cfg.Deprecated,
		pin:        cfg.PIN,
	}
	if c.deprecated == nil {
		c.deprecated = func(method, replacement string) {
			c.log.WithField("use", replacement).Warnf("%s is deprecated", method)
		}
	}
	return c
}

// Timeout returns the socket timeout the client was configured with.
func (c *AdminClient) Timeout() time.Duration {
	return c.timeout
}

// PIN returns the session PIN.
func (c *AdminClient) PIN() []byte {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	return c.pin
}

// SetPIN replaces the session PIN.
func (c *AdminClient) SetPIN(pin []byte) {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	c.pin = pin
}

// Close closes the underlying connection if it can be closed.
func (c *AdminClient) Close() error {
	if closer, ok := c.conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// run dispatches op behind guards and records the outcome.
func run[T any](ctx context.Context, c *AdminClient, op operations.Operation[T], guards ...Guard) (T, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	start := time.Now()
	var result T
	call := func(ctx context.Context) error {
		var err error
		result, err = Dispatch(ctx, c.conn, c.pin, op)
		return err
	}
	err := chain(call, guards...)(ctx)
	c.record(ctx, op.Name(), err, time.Since(start))
	return result, err
}

func (c *AdminClient) record(ctx context.Context, action string, err error, latency time.Duration) {
	outcome, code := audit.OutcomeSuccess, ""
	if err != nil {
		if errors.Is(err, ErrPreconditionNotMet) {
			outcome = audit.OutcomePrecondition
		} else if sc, ok := protocol.StatusCodeOf(err); ok {
			outcome, code = sc.String(), sc.String()
		} else {
			outcome = audit.OutcomeError
		}
	}

	entry := c.log.WithFields(logrus.Fields{
		"op":      action,
		"outcome": outcome,
		"latency": latency,
	})
	if err != nil {
		entry.WithError(err).Warn("admin call failed")
	} else {
		entry.Debug("admin call complete")
	}

	if c.audit != nil {
		c.audit.LogAction(ctx, action, c.device, outcome, code, latency)
	}
}

// pinProtected returns the guards of commands that need both a PIN and TLS.
func (c *AdminClient) pinProtected(op string, opts []CallOption) []Guard {
	return []Guard{c.requirePIN(op, applyOptions(opts)), c.requireSSL(op)}
}

// GetLog fetches the requested log sections.
func (c *AdminClient) GetLog(ctx context.Context, types ...protocol.LogType) (*protocol.Log, error) {
	return run(ctx, c, operations.NewGetLog(types...))
}

// GetDeviceLog fetches a named vendor-specific log.
func (c *AdminClient) GetDeviceLog(ctx context.Context, name string) ([]byte, error) {
	return run(ctx, c, operations.NewGetDeviceLog(name))
}

// SetClusterVersion changes the device cluster version. On success later
// requests carry the new version.
func (c *AdminClient) SetClusterVersion(ctx context.Context, version int64) error {
	if _, err := run(ctx, c, operations.NewSetClusterVersion(version)); err != nil {
		return err
	}
	if s, ok := c.conn.(clusterVersionSetter); ok {
		s.SetClusterVersion(version)
	}
	return nil
}

// UpdateFirmware sends a firmware image to the device.
func (c *AdminClient) UpdateFirmware(ctx context.Context, image []byte) error {
	_, err := run(ctx, c, operations.NewUpdateFirmware(image))
	return err
}

// Unlock unlocks the device with the lock PIN.
func (c *AdminClient) Unlock(ctx context.Context, opts ...CallOption) error {
	op := operations.UnlockDevice()
	_, err := run(ctx, c, op, c.pinProtected(op.Name(), opts)...)
	return err
}

// Lock locks the device with the lock PIN. A locked device rejects
// everything but PIN operations.
func (c *AdminClient) Lock(ctx context.Context, opts ...CallOption) error {
	op := operations.LockDevice()
	_, err := run(ctx, c, op, c.pinProtected(op.Name(), opts)...)
	return err
}

// Erase erases all user data using the erase PIN.
func (c *AdminClient) Erase(ctx context.Context, opts ...CallOption) error {
	op := operations.EraseDevice()
	_, err := run(ctx, c, op, c.pinProtected(op.Name(), opts)...)
	return err
}

// InstantSecureErase erases all user data cryptographically.
func (c *AdminClient) InstantSecureErase(ctx context.Context, opts ...CallOption) error {
	op := operations.SecureEraseDevice()
	_, err := run(ctx, c, op, c.pinProtected(op.Name(), opts)...)
	return err
}

// SetErasePin changes the erase PIN. An empty newPIN clears it.
func (c *AdminClient) SetErasePin(ctx context.Context, oldPIN, newPIN []byte) error {
	op := operations.NewSetErasePin(oldPIN, newPIN)
	_, err := run(ctx, c, op, c.requireSSL(op.Name()))
	return err
}

// SetLockPin changes the lock PIN. An empty newPIN clears it.
func (c *AdminClient) SetLockPin(ctx context.Context, oldPIN, newPIN []byte) error {
	op := operations.NewSetLockPin(oldPIN, newPIN)
	_, err := run(ctx, c, op, c.requireSSL(op.Name()))
	return err
}

// SetACL replaces the device ACL table.
func (c *AdminClient) SetACL(ctx context.Context, acls []protocol.ACL) error {
	op := operations.NewSetACL(acls)
	_, err := run(ctx, c, op, c.requireSSL(op.Name()))
	return err
}

// SetSecurity replaces the device ACL table through the legacy security
// command.
//
// Deprecated: use SetACL, SetErasePin or SetLockPin.
func (c *AdminClient) SetSecurity(ctx context.Context, acls []protocol.ACL) error {
	op := operations.NewSecurity(acls)
	_, err := run(ctx, c, op, c.requireSSL(op.Name()), c.warnDeprecated("SetSecurity", "SetACL, SetErasePin or SetLockPin"))
	return err
}
