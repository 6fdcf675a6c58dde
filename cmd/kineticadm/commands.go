package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/chenchongli/kinetic-go/internal/admin"
	"github.com/chenchongli/kinetic-go/internal/protocol"
)

func (a *app) done(msg string) {
	fmt.Fprintln(a.out, pterm.Success.Sprint(msg))
}

func (a *app) getLogCmd() *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "getlog",
		Short: "Show device logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.authorize("getlog"); err != nil {
				return err
			}
			logTypes := protocol.AllLogTypes()
			if len(types) > 0 {
				logTypes = nil
				for _, name := range types {
					t, err := protocol.ParseLogType(name)
					if err != nil {
						return err
					}
					logTypes = append(logTypes, t)
				}
			}
			log, err := a.client.GetLog(a.ctx, logTypes...)
			if err != nil {
				return err
			}
			return renderLog(a.out, log)
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "log types to fetch (default: all but DEVICE)")
	return cmd
}

func (a *app) deviceLogCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "devicelog NAME",
		Short: "Fetch a named vendor-specific log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authorize("getdevicelog"); err != nil {
				return err
			}
			data, err := a.client.GetDeviceLog(a.ctx, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				_, err = a.out.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return err
			}
			a.done(fmt.Sprintf("wrote %d bytes to %s", len(data), output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the log to a file")
	return cmd
}

func (a *app) setClusterVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-cluster-version VERSION",
		Short: "Change the device cluster version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid cluster version %q", args[0])
			}
			if err := a.authorize("setclusterversion"); err != nil {
				return err
			}
			if err := a.client.SetClusterVersion(a.ctx, version); err != nil {
				return err
			}
			a.done(fmt.Sprintf("cluster version set to %d", version))
			return nil
		},
	}
}

func (a *app) updateFirmwareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-firmware IMAGE",
		Short: "Send a firmware image to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authorize("updatefirmware"); err != nil {
				return err
			}
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := a.client.UpdateFirmware(a.ctx, image); err != nil {
				return err
			}
			a.done(fmt.Sprintf("firmware image sent (%d bytes)", len(image)))
			return nil
		},
	}
}

type pinOpFunc func(*admin.AdminClient, context.Context, ...admin.CallOption) error

func (a *app) pinOpCmd(use, action, short string, run pinOpFunc) *cobra.Command {
	var callPIN string
	var askCallPIN bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.authorize(action); err != nil {
				return err
			}
			var opts []admin.CallOption
			switch {
			case askCallPIN:
				pin, err := a.secret("PIN for "+use+": ")
				if err != nil {
					return err
				}
				opts = append(opts, admin.WithPIN(pin))
			case cmd.Flags().Changed("call-pin"):
				opts = append(opts, admin.WithPIN([]byte(callPIN)))
			}
			if err := run(a.client, a.ctx, opts...); err != nil {
				return err
			}
			a.done(use + " complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&callPIN, "call-pin", "", "PIN for this command instead of the session PIN")
	cmd.Flags().BoolVar(&askCallPIN, "ask-call-pin", false, "prompt for the PIN of this command")
	return cmd
}

type setPinFunc func(*admin.AdminClient, context.Context, []byte, []byte) error

func (a *app) setPinCmd(use, action string, run setPinFunc) *cobra.Command {
	var oldPIN, newPIN string
	var ask bool
	cmd := &cobra.Command{
		Use:   use,
		Short: "Change a device PIN; an empty new PIN clears it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.authorize(action); err != nil {
				return err
			}
			oldValue, newValue := []byte(oldPIN), []byte(newPIN)
			if ask {
				var err error
				if oldValue, err = a.secret("Current PIN: "); err != nil {
					return err
				}
				if newValue, err = a.secret("New PIN: "); err != nil {
					return err
				}
			}
			if err := run(a.client, a.ctx, oldValue, newValue); err != nil {
				return err
			}
			a.done(use + " complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&oldPIN, "old", "", "current PIN")
	cmd.Flags().StringVar(&newPIN, "new", "", "new PIN")
	cmd.Flags().BoolVar(&ask, "ask", false, "prompt for both PINs")
	return cmd
}

func (a *app) setACLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-acl FILE",
		Short: "Replace the device ACL table from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authorize("setacl"); err != nil {
				return err
			}
			acls, err := loadACLs(args[0])
			if err != nil {
				return err
			}
			if err := a.client.SetACL(a.ctx, acls); err != nil {
				return err
			}
			a.done(fmt.Sprintf("ACL table replaced (%d identities)", len(acls)))
			return nil
		},
	}
}

func (a *app) setSecurityCmd() *cobra.Command {
	return &cobra.Command{
		Use:        "set-security FILE",
		Short:      "Replace the device ACL table with the legacy security command",
		Args:       cobra.ExactArgs(1),
		Deprecated: "use set-acl, set-lock-pin or set-erase-pin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authorize("security"); err != nil {
				return err
			}
			acls, err := loadACLs(args[0])
			if err != nil {
				return err
			}
			if err := a.client.SetSecurity(a.ctx, acls); err != nil {
				return err
			}
			a.done(fmt.Sprintf("ACL table replaced (%d identities)", len(acls)))
			return nil
		},
	}
}
