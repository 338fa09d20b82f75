package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autoprint/internal/daemon"
)

func newAutostartCommand(ctx *commandContext) *cobra.Command {
	autostartCmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage login-session autostart",
	}

	autostartCmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Register the daemon to start with the login session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.EnableAutostart(""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Autostart enabled")
			return nil
		},
	})

	autostartCmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Remove the autostart registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.DisableAutostart(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Autostart disabled")
			return nil
		},
	})

	autostartCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether autostart is registered",
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := daemon.AutostartEnabled()
			if err != nil {
				return err
			}
			if enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Autostart is enabled")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Autostart is disabled")
			}
			return nil
		},
	})

	return autostartCmd
}
