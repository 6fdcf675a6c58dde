package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chenchongli/kinetic-go/internal/admin"
	"github.com/chenchongli/kinetic-go/internal/audit"
	"github.com/chenchongli/kinetic-go/internal/auth"
	"github.com/chenchongli/kinetic-go/internal/config"
	"github.com/chenchongli/kinetic-go/internal/logging"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	in    io.Reader
	lines *bufio.Reader
	out   io.Writer

	ctx     context.Context
	cfg     *config.Config
	device  string
	log     *logrus.Logger
	audit   *audit.Logger
	claims  *auth.Claims
	authErr error
	client  *admin.AdminClient
	closers []io.Closer
}

// flagKeys binds persistent flags to configuration keys.
var flagKeys = map[string]string{
	"device.host":               "host",
	"device.port":               "port",
	"device.tls":                "tls",
	"device.caFile":             "ca-file",
	"device.insecureSkipVerify": "insecure",
	"device.identity":           "identity",
	"device.secret":             "secret",
	"device.clusterVersion":     "cluster-version",
	"device.timeout":            "timeout",
	"device.proxy":              "proxy",
	"log.level":                 "log-level",
	"operator-token":            "operator-token",
	"pin":                       "pin",
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New(), in: os.Stdin, out: os.Stdout}

	root := &cobra.Command{
		Use:               "kineticadm",
		Short:             "Administer Kinetic drives",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.String("host", "", "device host")
	flags.Int("port", 0, "device port (default 8123, or 8443 with --tls)")
	flags.Bool("tls", false, "connect over TLS")
	flags.String("ca-file", "", "PEM bundle that signs the device certificate")
	flags.Bool("insecure", false, "skip device certificate verification")
	flags.Int64("identity", 0, "HMAC identity")
	flags.String("secret", "", "HMAC secret of the identity")
	flags.Int64("cluster-version", 0, "cluster version stamped on requests")
	flags.Duration("timeout", 0, "socket timeout (default 60s)")
	flags.String("proxy", "", "SOCKS5 proxy URL, e.g. socks5://jumphost:1080")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("operator-token", "", "operator JWT")
	flags.String("pin", "", "session PIN for lock, unlock and erase")
	flags.Bool("ask-pin", false, "prompt for the session PIN")

	for key, name := range flagKeys {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
	_ = a.v.BindEnv("operator-token", "KINETIC_OPERATOR_TOKEN")
	_ = a.v.BindEnv("pin", "KINETIC_PIN")

	root.AddCommand(
		a.getLogCmd(),
		a.deviceLogCmd(),
		a.setClusterVersionCmd(),
		a.updateFirmwareCmd(),
		a.pinOpCmd("unlock", "unlock", "Unlock the device", (*admin.AdminClient).Unlock),
		a.pinOpCmd("lock", "lock", "Lock the device", (*admin.AdminClient).Lock),
		a.pinOpCmd("erase", "erase", "Erase all user data", (*admin.AdminClient).Erase),
		a.pinOpCmd("instant-secure-erase", "instantsecureerase", "Cryptographically erase all user data", (*admin.AdminClient).InstantSecureErase),
		a.setPinCmd("set-erase-pin", "seterasepin", (*admin.AdminClient).SetErasePin),
		a.setPinCmd("set-lock-pin", "setlockpin", (*admin.AdminClient).SetLockPin),
		a.setACLCmd(),
		a.setSecurityCmd(),
	)
	return root, a
}

// setup loads configuration and builds the logger, audit trail, operator
// claims and admin client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.ctx = cmd.Context()
	if a.ctx == nil {
		a.ctx = context.Background()
	}

	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.overlayFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	tc, err := cfg.Device.Transport()
	if err != nil {
		return err
	}
	a.device = tc.WithDefaults().Address()

	log, closer, err := logging.New(&cfg.Log)
	if err != nil {
		return err
	}
	a.log = log
	a.closers = append(a.closers, closer)

	if cfg.Audit.Enabled {
		if a.audit, err = audit.NewLogger(cfg.Audit.Options()); err != nil {
			return err
		}
		a.closers = append(a.closers, a.audit)
	}

	if err := a.verifyOperator(); err != nil {
		return err
	}

	pin, err := a.sessionPIN(cmd)
	if err != nil {
		return err
	}

	adminCfg := admin.Config{Transport: tc, PIN: pin, Logger: log}
	if a.audit != nil {
		adminCfg.Audit = a.audit
	}
	if a.client, err = admin.New(adminCfg); err != nil {
		return err
	}
	a.closers = append(a.closers, a.client)
	return nil
}

// overlayFlags applies explicitly set flags over the loaded configuration.
func (a *app) overlayFlags(cfg *config.Config) {
	v := a.v
	if v.IsSet("device.host") {
		cfg.Device.Host = v.GetString("device.host")
	}
	if v.IsSet("device.port") {
		cfg.Device.Port = v.GetInt("device.port")
	}
	if v.IsSet("device.tls") {
		cfg.Device.UseSSL = v.GetBool("device.tls")
	}
	if v.IsSet("device.caFile") {
		cfg.Device.CAFile = v.GetString("device.caFile")
	}
	if v.IsSet("device.insecureSkipVerify") {
		cfg.Device.InsecureSkipVerify = v.GetBool("device.insecureSkipVerify")
	}
	if v.IsSet("device.identity") {
		cfg.Device.Identity = v.GetInt64("device.identity")
	}
	if v.IsSet("device.secret") {
		cfg.Device.Secret = v.GetString("device.secret")
	}
	if v.IsSet("device.clusterVersion") {
		cfg.Device.ClusterVersion = v.GetInt64("device.clusterVersion")
	}
	if v.IsSet("device.timeout") {
		cfg.Device.Timeout = v.GetDuration("device.timeout")
	}
	if v.IsSet("device.proxy") {
		cfg.Device.Proxy = v.GetString("device.proxy")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
}

// verifyOperator checks the operator token, if one is given. A missing or
// rejected token is reported by authorize so the refusal is audited under
// the command's action.
func (a *app) verifyOperator() error {
	token := a.v.GetString("operator-token")
	if token == "" {
		if a.cfg.Auth.Required {
			a.authErr = fmt.Errorf("%w: an operator token is required", auth.ErrForbidden)
		}
		return nil
	}

	vc, err := a.cfg.Auth.Verifier()
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(vc)
	if err != nil {
		return fmt.Errorf("operator token verification is not configured: %w", err)
	}
	claims, err := verifier.VerifyToken(token)
	if err != nil {
		a.authErr = fmt.Errorf("%w: %v", auth.ErrForbidden, err)
		return nil
	}
	a.claims = claims
	a.ctx = auth.WithClaims(a.ctx, claims)
	a.log.WithField("operator", claims.Subject).Debug("operator token verified")
	return nil
}

func (a *app) sessionPIN(cmd *cobra.Command) ([]byte, error) {
	if ask, _ := cmd.Flags().GetBool("ask-pin"); ask {
		return a.secret("PIN: ")
	}
	if pin := a.v.GetString("pin"); pin != "" {
		return []byte(pin), nil
	}
	return nil, nil
}

// authorize checks the operator claims for action and audits a refusal.
func (a *app) authorize(action string) error {
	err := a.authErr
	if err == nil && a.claims != nil {
		err = a.claims.Authorize(action)
	}
	if err != nil && a.audit != nil {
		a.audit.LogAction(a.ctx, action, a.device, audit.OutcomeForbidden, "", 0)
	}
	return err
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}
