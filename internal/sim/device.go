package sim

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

const (
	maxPINSize     = 32
	maxEventLog    = 64
	eventsLogName  = "com.kinetic.sim.events"
	firmwareLogKey = "com.kinetic.sim.firmware"
)

// Device is the thread-safe state of a simulated drive. It authenticates and
// executes one request at a time.
type Device struct {
	mu             sync.RWMutex
	info           DeviceConfig
	clusterVersion int64
	lockPIN        []byte // bcrypt hash, nil when unset
	erasePIN       []byte
	locked         bool
	acls           map[int64]protocol.ACL
	mode           string
	firmware       []byte
	stats          map[protocol.MessageType]*protocol.Statistics
	events         []string
	erasures       int
	hashCost       int
	log            logrus.FieldLogger
}

// NewDevice creates a device from configuration.
func NewDevice(cfg *Config, log logrus.FieldLogger) (*Device, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Device{
		info:           cfg.Device,
		clusterVersion: cfg.Device.ClusterVersion,
		locked:         cfg.Device.Locked,
		acls:           make(map[int64]protocol.ACL, len(cfg.Identities)),
		mode:           cfg.Mode,
		stats:          make(map[protocol.MessageType]*protocol.Statistics),
		hashCost:       bcrypt.DefaultCost,
		log:            log.WithField("component", "device"),
	}

	var err error
	if d.lockPIN, err = d.hashPIN([]byte(cfg.Device.LockPIN)); err != nil {
		return nil, fmt.Errorf("lock pin: %w", err)
	}
	if d.erasePIN, err = d.hashPIN([]byte(cfg.Device.ErasePIN)); err != nil {
		return nil, fmt.Errorf("erase pin: %w", err)
	}

	for _, id := range cfg.Identities {
		acl, err := identityACL(id)
		if err != nil {
			return nil, err
		}
		d.acls[id.ID] = acl
	}
	return d, nil
}

func identityACL(id IdentityConfig) (protocol.ACL, error) {
	perms := make([]protocol.Permission, 0, len(id.Permissions))
	for _, name := range id.Permissions {
		p, err := protocol.ParsePermission(strings.ToUpper(name))
		if err != nil {
			return protocol.ACL{}, fmt.Errorf("identity %d: %w", id.ID, err)
		}
		perms = append(perms, p)
	}
	return protocol.ACL{
		Identity:      id.ID,
		Key:           []byte(id.Secret),
		HMACAlgorithm: protocol.HMACAlgorithmSHA1,
		Scopes:        []protocol.Scope{{Permissions: perms, TLSRequired: id.TLSRequired}},
	}, nil
}

func (d *Device) hashPIN(pin []byte) ([]byte, error) {
	if len(pin) == 0 {
		return nil, nil
	}
	if len(pin) > maxPINSize {
		return nil, fmt.Errorf("pin longer than %d bytes", maxPINSize)
	}
	return bcrypt.GenerateFromPassword(pin, d.hashCost)
}

// pinMatches treats an unset PIN as the empty PIN.
func pinMatches(hash, pin []byte) bool {
	if hash == nil {
		return len(pin) == 0
	}
	return bcrypt.CompareHashAndPassword(hash, pin) == nil
}

// Mode returns the current fault mode.
func (d *Device) Mode() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// SetMode switches the fault mode.
func (d *Device) SetMode(mode string) error {
	if !validMode(mode) {
		return fmt.Errorf("invalid mode %s", mode)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != mode {
		d.log.WithFields(logrus.Fields{"from": d.mode, "to": mode}).Info("device mode changed")
		d.mode = mode
	}
	return nil
}

// Locked reports whether the device is locked.
func (d *Device) Locked() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.locked
}

// ClusterVersion returns the device's cluster version.
func (d *Device) ClusterVersion() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.clusterVersion
}

// Erasures returns how many erase operations have completed.
func (d *Device) Erasures() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.erasures
}

// HasIdentity reports whether identity is in the ACL table.
func (d *Device) HasIdentity(identity int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.acls[identity]
	return ok
}

// Status builds the unsolicited status sent when a connection opens.
func (d *Device) Status(connectionID int64) (*protocol.Message, error) {
	d.mu.RLock()
	cmd := &protocol.Command{
		Header: protocol.Header{ConnectionID: connectionID, ClusterVersion: d.clusterVersion},
		Status: protocol.Status{Code: protocol.StatusSuccess},
	}
	d.mu.RUnlock()

	b, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	return &protocol.Message{AuthType: protocol.AuthTypeUnsolicitedStatus, CommandBytes: b}, nil
}

// deviceError is a non-success outcome produced while executing a request.
type deviceError struct {
	code protocol.StatusCode
	msg  string
}

func (e *deviceError) Error() string { return e.code.String() + ": " + e.msg }

func fail(code protocol.StatusCode, format string, args ...any) error {
	return &deviceError{code: code, msg: fmt.Sprintf(format, args...)}
}

// Execute authenticates and runs one request and returns the response
// envelope and value. secure reports whether the request arrived over TLS.
func (d *Device) Execute(msg *protocol.Message, value []byte, connectionID int64, secure bool) (*protocol.Message, []byte, error) {
	cmd, err := protocol.DecodeCommand(msg.CommandBytes)
	if err != nil {
		resp := &protocol.Command{
			Header: protocol.Header{ConnectionID: connectionID, MessageType: protocol.MessageTypeInvalid},
			Status: protocol.Status{Code: protocol.StatusInvalidRequest, StatusMessage: "undecodable command"},
		}
		return seal(resp, nil, nil)
	}

	resp := &protocol.Command{
		Header: protocol.Header{
			ConnectionID: connectionID,
			AckSequence:  cmd.Header.Sequence,
			MessageType:  cmd.Header.MessageType.Response(),
		},
	}

	d.mu.Lock()
	acl, respValue, execErr := d.execute(msg, cmd, value, secure, resp)
	resp.Header.ClusterVersion = d.clusterVersion
	d.record(cmd.Header.MessageType, len(msg.CommandBytes)+len(value))
	d.mu.Unlock()

	resp.Status.Code = protocol.StatusSuccess
	var de *deviceError
	if errors.As(execErr, &de) {
		resp.Status.Code = de.code
		resp.Status.StatusMessage = de.msg
		respValue = nil
	} else if execErr != nil {
		resp.Status.Code = protocol.StatusInternalError
		resp.Status.StatusMessage = execErr.Error()
		respValue = nil
	}

	d.log.WithFields(logrus.Fields{
		"type":     cmd.Header.MessageType,
		"sequence": cmd.Header.Sequence,
		"status":   resp.Status.Code,
		"secure":   secure,
	}).Debug("request executed")

	if msg.AuthType == protocol.AuthTypePIN {
		return sealPIN(resp, respValue)
	}
	return seal(resp, acl, respValue)
}

// execute runs with d.mu held. The returned ACL signs the response.
func (d *Device) execute(msg *protocol.Message, cmd *protocol.Command, value []byte, secure bool, resp *protocol.Command) (*protocol.ACL, []byte, error) {
	acl, err := d.authenticate(msg, cmd)
	if err != nil {
		return acl, nil, err
	}
	if d.mode == ModeBusy {
		return acl, nil, fail(protocol.StatusServiceBusy, "device is busy")
	}
	if cmd.Header.ClusterVersion != d.clusterVersion {
		return acl, nil, fail(protocol.StatusVersionMismatch, "cluster version %d does not match %d", cmd.Header.ClusterVersion, d.clusterVersion)
	}
	if d.locked && cmd.Header.MessageType != protocol.MessageTypePinOp {
		return acl, nil, fail(protocol.StatusDeviceLocked, "device is locked")
	}

	switch cmd.Header.MessageType {
	case protocol.MessageTypeGetLog:
		if err := d.authorize(acl, protocol.PermissionGetLog, secure); err != nil {
			return acl, nil, err
		}
		log, v, err := d.getLog(cmd.Body.GetLog)
		resp.Body.GetLog = log
		return acl, v, err
	case protocol.MessageTypeSetup:
		if err := d.authorize(acl, protocol.PermissionSetup, secure); err != nil {
			return acl, nil, err
		}
		return acl, nil, d.setup(cmd.Body.Setup, value)
	case protocol.MessageTypeSecurity:
		if !secure {
			return acl, nil, fail(protocol.StatusNotAuthorized, "security requires a TLS connection")
		}
		if err := d.authorize(acl, protocol.PermissionSecurity, secure); err != nil {
			return acl, nil, err
		}
		return acl, nil, d.security(cmd.Body.Security)
	case protocol.MessageTypePinOp:
		if !secure {
			return acl, nil, fail(protocol.StatusNotAuthorized, "pin operations require a TLS connection")
		}
		return acl, nil, d.pinOp(cmd.Body.PinOp, msg.PINAuth.PIN)
	default:
		return acl, nil, fail(protocol.StatusInvalidRequest, "unsupported message type %s", cmd.Header.MessageType)
	}
}

func (d *Device) authenticate(msg *protocol.Message, cmd *protocol.Command) (*protocol.ACL, error) {
	pinOp := cmd.Header.MessageType == protocol.MessageTypePinOp
	switch msg.AuthType {
	case protocol.AuthTypeHMAC:
		if pinOp {
			return nil, fail(protocol.StatusInvalidRequest, "pin operations must use pin authentication")
		}
		if msg.HMACAuth == nil {
			return nil, fail(protocol.StatusHMACFailure, "missing hmac")
		}
		acl, ok := d.acls[msg.HMACAuth.Identity]
		if !ok {
			return nil, fail(protocol.StatusHMACFailure, "unknown identity %d", msg.HMACAuth.Identity)
		}
		if !protocol.VerifyHMAC(acl.Key, msg.CommandBytes, msg.HMACAuth.HMAC) {
			return nil, fail(protocol.StatusHMACFailure, "hmac mismatch for identity %d", acl.Identity)
		}
		return &acl, nil
	case protocol.AuthTypePIN:
		if !pinOp {
			return nil, fail(protocol.StatusInvalidRequest, "pin authentication is only valid for pin operations")
		}
		if msg.PINAuth == nil {
			return nil, fail(protocol.StatusNotAuthorized, "missing pin")
		}
		return nil, nil
	default:
		return nil, fail(protocol.StatusInvalidRequest, "unsupported auth type %s", msg.AuthType)
	}
}

func (d *Device) authorize(acl *protocol.ACL, perm protocol.Permission, secure bool) error {
	for _, scope := range acl.Scopes {
		if scope.TLSRequired && !secure {
			continue
		}
		for _, p := range scope.Permissions {
			if p == perm {
				return nil
			}
		}
	}
	return fail(protocol.StatusNotAuthorized, "identity %d lacks %s permission", acl.Identity, perm)
}

func (d *Device) getLog(req *protocol.Log) (*protocol.Log, []byte, error) {
	if req == nil || len(req.Types) == 0 {
		return nil, nil, fail(protocol.StatusInvalidRequest, "no log types requested")
	}
	out := &protocol.Log{Types: req.Types}
	var value []byte
	for _, t := range req.Types {
		switch t {
		case protocol.LogTypeUtilizations:
			out.Utilizations = []protocol.Utilization{
				{Name: "HDA", Value: 0.12},
				{Name: "EN0", Value: 0.03},
				{Name: "EN1", Value: 0.01},
				{Name: "CPU", Value: 0.08},
			}
		case protocol.LogTypeTemperatures:
			out.Temperatures = []protocol.Temperature{
				{Name: "HDA", Current: 34, Minimum: 5, Maximum: 70, Target: 25},
				{Name: "CPU", Current: 48, Minimum: 5, Maximum: 100, Target: 25},
			}
		case protocol.LogTypeCapacities:
			out.Capacity = &protocol.Capacity{NominalCapacityInBytes: d.info.CapacityBytes, PortionFull: 0}
		case protocol.LogTypeConfiguration:
			out.Configuration = &protocol.Configuration{
				Vendor:          d.info.Vendor,
				Model:           d.info.Model,
				SerialNumber:    d.info.SerialNumber,
				Version:         d.info.FirmwareVersion,
				ProtocolVersion: "3.0.6",
			}
		case protocol.LogTypeStatistics:
			for _, s := range d.stats {
				out.Statistics = append(out.Statistics, *s)
			}
			sort.Slice(out.Statistics, func(i, j int) bool {
				return out.Statistics[i].MessageType < out.Statistics[j].MessageType
			})
		case protocol.LogTypeMessages:
			out.Messages = []byte(strings.Join(d.events, "\n"))
		case protocol.LogTypeLimits:
			out.Limits = &protocol.Limits{
				MaxKeySize:       4096,
				MaxValueSize:     1 << 20,
				MaxVersionSize:   2048,
				MaxTagSize:       128,
				MaxConnections:   64,
				MaxMessageSize:   protocol.MaxMessageSize,
				MaxKeyRangeCount: 200,
				MaxIdentityCount: 64,
				MaxPinSize:       maxPINSize,
			}
		case protocol.LogTypeDevice:
			if req.Device == nil || req.Device.Name == "" {
				return nil, nil, fail(protocol.StatusInvalidRequest, "device log requires a name")
			}
			v, ok := d.deviceLog(req.Device.Name)
			if !ok {
				return nil, nil, fail(protocol.StatusNotFound, "no device log named %q", req.Device.Name)
			}
			out.Device = &protocol.DeviceLog{Name: req.Device.Name}
			value = v
		default:
			return nil, nil, fail(protocol.StatusInvalidRequest, "unknown log type %d", t)
		}
	}
	return out, value, nil
}

func (d *Device) deviceLog(name string) ([]byte, bool) {
	switch name {
	case eventsLogName:
		return []byte(strings.Join(d.events, "\n")), true
	case firmwareLogKey:
		if d.firmware == nil {
			return nil, false
		}
		return d.firmware, true
	}
	return nil, false
}

func (d *Device) setup(req *protocol.Setup, value []byte) error {
	if req == nil {
		return fail(protocol.StatusInvalidRequest, "missing setup body")
	}
	if req.FirmwareDownload {
		if len(value) == 0 {
			return fail(protocol.StatusInvalidRequest, "firmware download without an image")
		}
		d.firmware = append([]byte(nil), value...)
		d.event("firmware image received (%d bytes)", len(value))
		return nil
	}
	if req.NewClusterVersion == nil {
		return fail(protocol.StatusInvalidRequest, "setup requires a new cluster version or a firmware download")
	}
	d.event("cluster version changed from %d to %d", d.clusterVersion, *req.NewClusterVersion)
	d.clusterVersion = *req.NewClusterVersion
	return nil
}

func (d *Device) security(req *protocol.Security) error {
	if req == nil {
		return fail(protocol.StatusInvalidRequest, "missing security body")
	}
	if req.NewLockPIN == nil && req.NewErasePIN == nil && req.ACL == nil {
		return fail(protocol.StatusInvalidRequest, "security request changes nothing")
	}

	// Every part is checked before anything changes.
	var lockHash, eraseHash []byte
	if req.NewLockPIN != nil {
		if !pinMatches(d.lockPIN, req.OldLockPIN) {
			return fail(protocol.StatusNotAuthorized, "old lock pin does not match")
		}
		hash, err := d.hashPIN(req.NewLockPIN)
		if err != nil {
			return fail(protocol.StatusInvalidRequest, "lock pin: %v", err)
		}
		lockHash = hash
	}
	if req.NewErasePIN != nil {
		if !pinMatches(d.erasePIN, req.OldErasePIN) {
			return fail(protocol.StatusNotAuthorized, "old erase pin does not match")
		}
		hash, err := d.hashPIN(req.NewErasePIN)
		if err != nil {
			return fail(protocol.StatusInvalidRequest, "erase pin: %v", err)
		}
		eraseHash = hash
	}
	var acls map[int64]protocol.ACL
	if req.ACL != nil {
		if err := protocol.ValidateACLs(req.ACL); err != nil {
			return fail(protocol.StatusInvalidRequest, "%v", err)
		}
		acls = make(map[int64]protocol.ACL, len(req.ACL))
		for _, acl := range req.ACL {
			acls[acl.Identity] = acl
		}
	}

	if req.NewLockPIN != nil {
		d.lockPIN = lockHash
		d.event("lock pin changed")
	}
	if req.NewErasePIN != nil {
		d.erasePIN = eraseHash
		d.event("erase pin changed")
	}
	if acls != nil {
		d.acls = acls
		d.event("acl table replaced (%d identities)", len(acls))
	}
	return nil
}

func (d *Device) pinOp(req *protocol.PinOperation, pin []byte) error {
	if req == nil {
		return fail(protocol.StatusInvalidRequest, "missing pin operation")
	}
	switch req.Type {
	case protocol.PinOpUnlock:
		if !pinMatches(d.lockPIN, pin) {
			return fail(protocol.StatusNotAuthorized, "lock pin does not match")
		}
		d.locked = false
		d.event("device unlocked")
	case protocol.PinOpLock:
		if d.lockPIN == nil {
			return fail(protocol.StatusInvalidRequest, "no lock pin is set")
		}
		if !pinMatches(d.lockPIN, pin) {
			return fail(protocol.StatusNotAuthorized, "lock pin does not match")
		}
		d.locked = true
		d.event("device locked")
	case protocol.PinOpErase, protocol.PinOpSecureErase:
		if !pinMatches(d.erasePIN, pin) {
			return fail(protocol.StatusNotAuthorized, "erase pin does not match")
		}
		d.erasures++
		d.firmware = nil
		d.stats = make(map[protocol.MessageType]*protocol.Statistics)
		d.events = nil
		d.event("device erased (%s)", req.Type)
	default:
		return fail(protocol.StatusInvalidRequest, "unknown pin operation %d", req.Type)
	}
	return nil
}

func (d *Device) record(t protocol.MessageType, n int) {
	s, ok := d.stats[t]
	if !ok {
		s = &protocol.Statistics{MessageType: t}
		d.stats[t] = s
	}
	s.Count++
	s.Bytes += uint64(n)
}

func (d *Device) event(format string, args ...any) {
	line := time.Now().UTC().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...)
	d.events = append(d.events, line)
	if len(d.events) > maxEventLog {
		d.events = d.events[len(d.events)-maxEventLog:]
	}
}

// seal encodes resp and signs it with the requester's key. Without a key
// the response goes out as an unsigned status.
func seal(resp *protocol.Command, acl *protocol.ACL, value []byte) (*protocol.Message, []byte, error) {
	if acl != nil {
		msg, err := protocol.SignedMessage(resp, acl.Identity, acl.Key)
		return msg, value, err
	}
	b, err := protocol.EncodeCommand(resp)
	if err != nil {
		return nil, nil, err
	}
	return &protocol.Message{AuthType: protocol.AuthTypeUnsolicitedStatus, CommandBytes: b}, value, nil
}

func sealPIN(resp *protocol.Command, value []byte) (*protocol.Message, []byte, error) {
	b, err := protocol.EncodeCommand(resp)
	if err != nil {
		return nil, nil, err
	}
	return &protocol.Message{AuthType: protocol.AuthTypePIN, CommandBytes: b}, value, nil
}
