package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

func newTestDevice(t *testing.T, mutate func(*Config)) *Device {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Device.LockPIN = "1234"
	cfg.Device.ErasePIN = "9876"
	if mutate != nil {
		mutate(cfg)
	}
	d, err := NewDevice(cfg, nil)
	require.NoError(t, err)
	return d
}

var testSeq int64

func exchange(t *testing.T, d *Device, msg *protocol.Message, value []byte, secure bool) (*protocol.Command, []byte) {
	t.Helper()
	resp, respValue, err := d.Execute(msg, value, 100, secure)
	require.NoError(t, err)
	cmd, err := protocol.DecodeCommand(resp.CommandBytes)
	require.NoError(t, err)
	return cmd, respValue
}

func signedRequest(t *testing.T, d *Device, cmd *protocol.Command, value []byte, secure bool) (*protocol.Command, []byte) {
	t.Helper()
	testSeq++
	cmd.Header.Sequence = testSeq
	cmd.Header.ClusterVersion = d.ClusterVersion()
	msg, err := protocol.SignedMessage(cmd, 1, []byte("asdfasdf"))
	require.NoError(t, err)
	resp, v := exchange(t, d, msg, value, secure)
	assert.Equal(t, testSeq, resp.Header.AckSequence)
	assert.Equal(t, cmd.Header.MessageType.Response(), resp.Header.MessageType)
	return resp, v
}

func pinRequest(t *testing.T, d *Device, op protocol.PinOpType, pin string, secure bool) *protocol.Command {
	t.Helper()
	cmd := protocol.NewCommand(protocol.MessageTypePinOp)
	cmd.Body.PinOp = &protocol.PinOperation{Type: op}
	cmd.Header.ClusterVersion = d.ClusterVersion()
	msg, err := protocol.PINMessage(cmd, []byte(pin))
	require.NoError(t, err)
	resp, _ := exchange(t, d, msg, nil, secure)
	return resp
}

func getLogCmd(types ...protocol.LogType) *protocol.Command {
	cmd := protocol.NewCommand(protocol.MessageTypeGetLog)
	cmd.Body.GetLog = &protocol.Log{Types: types}
	return cmd
}

func TestGetLogReturnsRequestedSections(t *testing.T) {
	d := newTestDevice(t, nil)

	resp, _ := signedRequest(t, d, getLogCmd(protocol.LogTypeConfiguration, protocol.LogTypeLimits), nil, false)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.NotNil(t, resp.Body.GetLog)
	assert.Equal(t, "SIM0000001", resp.Body.GetLog.Configuration.SerialNumber)
	assert.EqualValues(t, maxPINSize, resp.Body.GetLog.Limits.MaxPinSize)
	assert.Nil(t, resp.Body.GetLog.Capacity)
}

func TestDeviceLogNotFound(t *testing.T) {
	d := newTestDevice(t, nil)

	cmd := getLogCmd(protocol.LogTypeDevice)
	cmd.Body.GetLog.Device = &protocol.DeviceLog{Name: "no.such.log"}
	resp, _ := signedRequest(t, d, cmd, nil, false)
	assert.Equal(t, protocol.StatusNotFound, resp.Status.Code)
}

func TestHMACFailures(t *testing.T) {
	d := newTestDevice(t, nil)

	cmd := getLogCmd(protocol.LogTypeUtilizations)
	msg, err := protocol.SignedMessage(cmd, 1, []byte("wrong"))
	require.NoError(t, err)
	resp, _ := exchange(t, d, msg, nil, false)
	assert.Equal(t, protocol.StatusHMACFailure, resp.Status.Code)

	// Without a trusted key the reply is an unsigned status.
	raw, _, err := d.Execute(msg, nil, 100, false)
	require.NoError(t, err)
	assert.Equal(t, protocol.AuthTypeUnsolicitedStatus, raw.AuthType)
	assert.Nil(t, raw.HMACAuth)

	msg, err = protocol.SignedMessage(cmd, 99, []byte("asdfasdf"))
	require.NoError(t, err)
	resp, _ = exchange(t, d, msg, nil, false)
	assert.Equal(t, protocol.StatusHMACFailure, resp.Status.Code)
}

func TestBusyMode(t *testing.T) {
	d := newTestDevice(t, nil)
	require.NoError(t, d.SetMode(ModeBusy))

	resp, _ := signedRequest(t, d, getLogCmd(protocol.LogTypeUtilizations), nil, false)
	assert.Equal(t, protocol.StatusServiceBusy, resp.Status.Code)

	assert.Error(t, d.SetMode("sideways"))
}

func TestClusterVersion(t *testing.T) {
	d := newTestDevice(t, nil)

	v := int64(12)
	cmd := protocol.NewCommand(protocol.MessageTypeSetup)
	cmd.Body.Setup = &protocol.Setup{NewClusterVersion: &v}
	resp, _ := signedRequest(t, d, cmd, nil, false)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	assert.Equal(t, int64(12), d.ClusterVersion())

	stale := getLogCmd(protocol.LogTypeUtilizations)
	stale.Header.ClusterVersion = 0
	msg, err := protocol.SignedMessage(stale, 1, []byte("asdfasdf"))
	require.NoError(t, err)
	resp, _ = exchange(t, d, msg, nil, false)
	assert.Equal(t, protocol.StatusVersionMismatch, resp.Status.Code)
	assert.Equal(t, int64(12), resp.Header.ClusterVersion)
}

func TestFirmwareDownload(t *testing.T) {
	d := newTestDevice(t, nil)

	cmd := protocol.NewCommand(protocol.MessageTypeSetup)
	cmd.Body.Setup = &protocol.Setup{FirmwareDownload: true}
	resp, _ := signedRequest(t, d, cmd, nil, false)
	assert.Equal(t, protocol.StatusInvalidRequest, resp.Status.Code)

	cmd = protocol.NewCommand(protocol.MessageTypeSetup)
	cmd.Body.Setup = &protocol.Setup{FirmwareDownload: true}
	resp, _ = signedRequest(t, d, cmd, []byte("image"), false)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)

	logCmd := getLogCmd(protocol.LogTypeDevice)
	logCmd.Body.GetLog.Device = &protocol.DeviceLog{Name: firmwareLogKey}
	resp, value := signedRequest(t, d, logCmd, nil, false)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	assert.Equal(t, []byte("image"), value)
}

func TestPinOpsRequireTLS(t *testing.T) {
	d := newTestDevice(t, nil)

	resp := pinRequest(t, d, protocol.PinOpLock, "1234", false)
	assert.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code)
	assert.False(t, d.Locked())
}

func TestLockUnlock(t *testing.T) {
	d := newTestDevice(t, nil)

	resp := pinRequest(t, d, protocol.PinOpLock, "0000", true)
	assert.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code)

	resp = pinRequest(t, d, protocol.PinOpLock, "1234", true)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	assert.True(t, d.Locked())

	locked, _ := signedRequest(t, d, getLogCmd(protocol.LogTypeUtilizations), nil, false)
	assert.Equal(t, protocol.StatusDeviceLocked, locked.Status.Code)

	resp = pinRequest(t, d, protocol.PinOpUnlock, "1234", true)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	assert.False(t, d.Locked())
}

func TestLockWithoutPIN(t *testing.T) {
	d := newTestDevice(t, func(c *Config) { c.Device.LockPIN = "" })

	resp := pinRequest(t, d, protocol.PinOpLock, "", true)
	assert.Equal(t, protocol.StatusInvalidRequest, resp.Status.Code)
}

func TestEraseChecksErasePIN(t *testing.T) {
	d := newTestDevice(t, nil)

	resp := pinRequest(t, d, protocol.PinOpSecureErase, "1234", true)
	assert.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code)
	assert.Equal(t, 0, d.Erasures())

	resp = pinRequest(t, d, protocol.PinOpSecureErase, "9876", true)
	assert.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	resp = pinRequest(t, d, protocol.PinOpErase, "9876", true)
	assert.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	assert.Equal(t, 2, d.Erasures())
}

func TestPINAuthOnlyForPinOps(t *testing.T) {
	d := newTestDevice(t, nil)

	msg, err := protocol.PINMessage(getLogCmd(protocol.LogTypeUtilizations), []byte("1234"))
	require.NoError(t, err)
	resp, _ := exchange(t, d, msg, nil, true)
	assert.Equal(t, protocol.StatusInvalidRequest, resp.Status.Code)
}

func TestSecurityChangesPINs(t *testing.T) {
	d := newTestDevice(t, nil)

	cmd := protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{OldLockPIN: []byte("1234"), NewLockPIN: []byte("4321")}
	resp, _ := signedRequest(t, d, cmd, nil, false)
	assert.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code, "security over plain TCP")

	cmd = protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{OldLockPIN: []byte("bad"), NewLockPIN: []byte("4321")}
	resp, _ = signedRequest(t, d, cmd, nil, true)
	assert.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code)

	cmd = protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{OldLockPIN: []byte("1234"), NewLockPIN: []byte("4321")}
	resp, _ = signedRequest(t, d, cmd, nil, true)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)

	assert.Equal(t, protocol.StatusNotAuthorized, pinRequest(t, d, protocol.PinOpLock, "1234", true).Status.Code)
	assert.Equal(t, protocol.StatusSuccess, pinRequest(t, d, protocol.PinOpLock, "4321", true).Status.Code)
}

func TestSecurityFailureChangesNothing(t *testing.T) {
	d := newTestDevice(t, nil)

	cmd := protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{
		OldLockPIN:  []byte("1234"),
		NewLockPIN:  []byte("4321"),
		OldErasePIN: []byte("wrong"),
		NewErasePIN: []byte("1111"),
	}
	resp, _ := signedRequest(t, d, cmd, nil, true)
	require.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code)

	cmd = protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{
		OldLockPIN: []byte("1234"),
		NewLockPIN: []byte("4321"),
		ACL:        []protocol.ACL{{Identity: 1}},
	}
	resp, _ = signedRequest(t, d, cmd, nil, true)
	require.Equal(t, protocol.StatusInvalidRequest, resp.Status.Code)

	assert.Equal(t, protocol.StatusNotAuthorized, pinRequest(t, d, protocol.PinOpLock, "4321", true).Status.Code)
	assert.Equal(t, protocol.StatusSuccess, pinRequest(t, d, protocol.PinOpLock, "1234", true).Status.Code)
	assert.Equal(t, protocol.StatusSuccess, pinRequest(t, d, protocol.PinOpErase, "9876", true).Status.Code)
}

func TestSecurityReplacesACL(t *testing.T) {
	d := newTestDevice(t, nil)

	acls := []protocol.ACL{
		{
			Identity:      1,
			Key:           []byte("asdfasdf"),
			HMACAlgorithm: protocol.HMACAlgorithmSHA1,
			Scopes:        []protocol.Scope{{Permissions: []protocol.Permission{protocol.PermissionSecurity, protocol.PermissionGetLog}}},
		},
		{
			Identity:      2,
			Key:           []byte("two"),
			HMACAlgorithm: protocol.HMACAlgorithmSHA1,
			Scopes:        []protocol.Scope{{Permissions: []protocol.Permission{protocol.PermissionRead}}},
		},
	}
	cmd := protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{ACL: acls}
	resp, _ := signedRequest(t, d, cmd, nil, true)
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	assert.True(t, d.HasIdentity(2))

	v := int64(3)
	setup := protocol.NewCommand(protocol.MessageTypeSetup)
	setup.Body.Setup = &protocol.Setup{NewClusterVersion: &v}
	resp, _ = signedRequest(t, d, setup, nil, false)
	assert.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code, "SETUP permission was removed")
}

func TestSecurityRejectsInvalidACL(t *testing.T) {
	d := newTestDevice(t, nil)

	cmd := protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{ACL: []protocol.ACL{{Identity: 5}}}
	resp, _ := signedRequest(t, d, cmd, nil, true)
	assert.Equal(t, protocol.StatusInvalidRequest, resp.Status.Code)
	assert.True(t, d.HasIdentity(1))
}

func TestTLSRequiredScope(t *testing.T) {
	d := newTestDevice(t, func(c *Config) { c.Identities[0].TLSRequired = true })

	resp, _ := signedRequest(t, d, getLogCmd(protocol.LogTypeUtilizations), nil, false)
	assert.Equal(t, protocol.StatusNotAuthorized, resp.Status.Code)

	resp, _ = signedRequest(t, d, getLogCmd(protocol.LogTypeUtilizations), nil, true)
	assert.Equal(t, protocol.StatusSuccess, resp.Status.Code)
}

func TestUnknownPermissionInConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Identities[0].Permissions = []string{"FLY"}
	_, err := NewDevice(cfg, nil)
	assert.Error(t, err)
}
