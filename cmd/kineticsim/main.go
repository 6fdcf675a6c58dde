// Command kineticsim runs a simulated Kinetic drive that answers the admin
// commands on a plain and a TLS port.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chenchongli/kinetic-go/internal/config"
	"github.com/chenchongli/kinetic-go/internal/logging"
	"github.com/chenchongli/kinetic-go/internal/sim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		host    string
		logCfg  = config.Defaults().Log
	)

	cmd := &cobra.Command{
		Use:          "kineticsim",
		Short:        "Run a simulated Kinetic drive",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile, host, &logCfg)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "simulator config file (YAML); mode changes are applied live")
	cmd.Flags().StringVar(&host, "host", "", "listen address (default all interfaces)")
	cmd.Flags().StringVar(&logCfg.Level, "log-level", logCfg.Level, "log level")
	cmd.Flags().StringVar(&logCfg.Format, "log-format", logCfg.Format, "log format (text, json)")
	return cmd
}

func run(ctx context.Context, cfgFile, host string, logCfg *config.LogConfig) error {
	log, closer, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := sim.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	device, err := sim.NewDevice(cfg, log)
	if err != nil {
		return err
	}
	tlsConfig, err := sim.LoadTLSConfig(cfg.Network)
	if err != nil {
		return err
	}
	server, err := sim.NewServer(cfg, device, tlsConfig, log)
	if err != nil {
		return err
	}
	if err := server.Listen(host); err != nil {
		return err
	}

	if cfgFile != "" {
		watcher, err := sim.WatchMode(cfgFile, device, log)
		if err != nil {
			_ = server.Close()
			return err
		}
		defer watcher.Stop()
	}

	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down device simulator")
	if err := server.Close(); err != nil {
		log.WithError(err).Warn("failed to close listeners")
	}
	return <-served
}
