package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autoprint/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the autoprint daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath()},
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the autoprint daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and ledger status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if statusResp.Running {
				fmt.Fprintln(stdout, renderStatusLine("AutoPrint", statusOK, fmt.Sprintf("Running (pid %d)", statusResp.PID), colorize))
				windowDetail := "Closed (printing deferred)"
				windowKind := statusWarn
				if statusResp.WindowOpen {
					windowDetail = "Open"
					windowKind = statusOK
				}
				fmt.Fprintln(stdout, renderStatusLine("Print window", windowKind, windowDetail, colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("AutoPrint", statusWarn, "Not running (run `autoprint start`)", colorize))
			}
			if statusResp.LastError != "" {
				fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, statusResp.LastError, colorize))
			}
			if entry := statusResp.LastEntry; entry != nil {
				fmt.Fprintln(stdout, renderStatusLine("Last file", statusInfo,
					fmt.Sprintf("%s (%s)", entry.FileName, statusTitle(entry.Status)), colorize))
			}
			for _, health := range statusResp.StageHealth {
				kind := statusOK
				detail := health.Detail
				if !health.Ready {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(statusTitle(health.Name), kind, detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Ledger", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Printed today", statusInfo, fmt.Sprintf("%d", statusResp.PrintedToday), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Printed total", statusInfo, fmt.Sprintf("%d", statusResp.PrintedTotal), colorize))
			rows := buildLedgerStatusRows(statusResp.LedgerStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Ledger is empty")
				return nil
			}
			table := renderTable([]string{"Status", "Count"}, rows, 1)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
