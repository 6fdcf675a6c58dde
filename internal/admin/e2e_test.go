package admin

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenchongli/kinetic-go/internal/audit"
	"github.com/chenchongli/kinetic-go/internal/auth"
	"github.com/chenchongli/kinetic-go/internal/protocol"
	"github.com/chenchongli/kinetic-go/internal/sim"
)

func startDevice(t *testing.T) *sim.Local {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.Device.LockPIN = "1234"
	cfg.Device.ErasePIN = "9999"
	logger, _ := test.NewNullLogger()
	local, err := sim.StartLocal(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return local
}

func dialDevice(t *testing.T, local *sim.Local, useSSL bool, cfg Config) *AdminClient {
	t.Helper()
	cfg.Transport.Host = "127.0.0.1"
	cfg.Transport.Port = local.Port()
	cfg.Transport.SocketTimeout = 5 * time.Second
	if useSSL {
		cfg.Transport.UseSSL = true
		cfg.Transport.Port = local.TLSPort()
		cfg.Transport.TLSConfig = local.ClientTLSConfig()
	}
	if cfg.Logger == nil {
		logger, _ := test.NewNullLogger()
		cfg.Logger = logger
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDeviceGetLog(t *testing.T) {
	local := startDevice(t)
	c := dialDevice(t, local, false, Config{})

	log, err := c.GetLog(context.Background(), protocol.LogTypeConfiguration, protocol.LogTypeLimits)
	require.NoError(t, err)
	require.NotNil(t, log.Configuration)
	assert.Equal(t, "Seagate", log.Configuration.Vendor)
	require.NotNil(t, log.Limits)
	assert.NotZero(t, log.Limits.MaxPinSize)

	_, err = c.GetDeviceLog(context.Background(), "com.vendor.nothing")
	assert.ErrorIs(t, err, protocol.ErrInvalidRequest)
	code, ok := protocol.StatusCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, protocol.StatusNotFound, code)
}

func TestDeviceLockUnlockOverTLS(t *testing.T) {
	local := startDevice(t)
	c := dialDevice(t, local, true, Config{PIN: []byte("1234")})
	ctx := context.Background()

	require.NoError(t, c.Lock(ctx))
	assert.True(t, local.Device.Locked())

	_, err := c.GetLog(ctx, protocol.LogTypeCapacities)
	assert.ErrorIs(t, err, protocol.ErrDeviceLocked)

	err = c.Unlock(ctx, WithPIN([]byte("0000")))
	assert.ErrorIs(t, err, protocol.ErrNotAuthorized)
	assert.True(t, local.Device.Locked())
	assert.Equal(t, []byte("1234"), c.PIN())

	require.NoError(t, c.Unlock(ctx))
	assert.False(t, local.Device.Locked())
}

func TestDeviceRejectsPlainConnection(t *testing.T) {
	local := startDevice(t)
	c := dialDevice(t, local, false, Config{PIN: []byte("1234")})

	err := c.Lock(context.Background())
	assert.ErrorIs(t, err, ErrSSLRequired)
	assert.False(t, local.Device.Locked())

	err = c.SetLockPin(context.Background(), []byte("1234"), []byte("5678"))
	assert.ErrorIs(t, err, ErrPreconditionNotMet)
}

func TestDeviceEraseWithOverride(t *testing.T) {
	local := startDevice(t)
	c := dialDevice(t, local, true, Config{PIN: []byte("1234")})
	ctx := context.Background()

	require.NoError(t, c.UpdateFirmware(ctx, []byte("firmware-v2")))
	image, err := c.GetDeviceLog(ctx, "com.kinetic.sim.firmware")
	require.NoError(t, err)
	assert.Equal(t, []byte("firmware-v2"), image)

	require.NoError(t, c.InstantSecureErase(ctx, WithPIN([]byte("9999"))))
	assert.Equal(t, 1, local.Device.Erasures())
	assert.Equal(t, []byte("1234"), c.PIN())

	// The lock PIN is not the erase PIN.
	err = c.Erase(ctx)
	assert.ErrorIs(t, err, protocol.ErrNotAuthorized)
	assert.Equal(t, 1, local.Device.Erasures())
}

func TestDeviceChangePins(t *testing.T) {
	local := startDevice(t)
	c := dialDevice(t, local, true, Config{PIN: []byte("1234")})
	ctx := context.Background()

	err := c.SetLockPin(ctx, []byte("wrong"), []byte("5678"))
	assert.ErrorIs(t, err, protocol.ErrNotAuthorized)

	require.NoError(t, c.SetLockPin(ctx, []byte("1234"), []byte("5678")))
	assert.ErrorIs(t, c.Lock(ctx), protocol.ErrNotAuthorized)
	require.NoError(t, c.Lock(ctx, WithPIN([]byte("5678"))))
	require.NoError(t, c.Unlock(ctx, WithPIN([]byte("5678"))))

	// Clearing the erase PIN makes the empty PIN valid for erase.
	require.NoError(t, c.SetErasePin(ctx, []byte("9999"), nil))
	require.NoError(t, c.Erase(ctx, WithPIN(nil)))
	assert.Equal(t, 1, local.Device.Erasures())
}

func TestDeviceClusterVersion(t *testing.T) {
	local := startDevice(t)
	c := dialDevice(t, local, false, Config{})
	ctx := context.Background()

	require.NoError(t, c.SetClusterVersion(ctx, 7))
	assert.Equal(t, int64(7), local.Device.ClusterVersion())

	// Later requests carry the new version.
	_, err := c.GetLog(ctx, protocol.LogTypeUtilizations)
	require.NoError(t, err)

	other := dialDevice(t, local, false, Config{})
	_, err = other.GetLog(ctx, protocol.LogTypeUtilizations)
	assert.ErrorIs(t, err, protocol.ErrVersion)
}

func TestDeviceACLAndAudit(t *testing.T) {
	local := startDevice(t)
	var buf bytes.Buffer
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c := dialDevice(t, local, true, Config{Audit: audit.NewWriterLogger(&buf), Logger: logger})
	ctx := auth.WithClaims(context.Background(), &auth.Claims{Subject: "ops-bot"})

	require.NoError(t, c.SetACL(ctx, testACLs()))
	require.NoError(t, c.SetSecurity(ctx, testACLs()))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"user":"ops-bot"`)
	assert.Contains(t, string(lines[0]), `"action":"setacl","outcome":"SUCCESS"`)
	assert.Contains(t, string(lines[1]), `"action":"security","outcome":"SUCCESS"`)

	var deprecated bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "SetSecurity is deprecated" {
			deprecated = true
		}
	}
	assert.True(t, deprecated)
}
