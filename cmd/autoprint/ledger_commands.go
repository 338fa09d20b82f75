package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autoprint/internal/ipc"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and manage the print ledger",
	}

	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerClearCommand(ctx))
	ledgerCmd.AddCommand(newLedgerClearFailedCommand(ctx))
	ledgerCmd.AddCommand(newLedgerResetCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRetryCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRemoveCommand(ctx))
	ledgerCmd.AddCommand(newLedgerHealthCommand(ctx))

	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerList(listStatuses)
				if err != nil {
					return err
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "File", "Status", "Discovered", "Printed"},
					buildLedgerListRows(resp.Entries),
					0,
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by ledger status (repeatable)")
	return cmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show details for a single ledger entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDArgs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerDescribe(ids[0])
				if err != nil {
					return err
				}
				entry := resp.Entry
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:           %d\n", entry.ID)
				fmt.Fprintf(out, "File:         %s\n", entry.FileName)
				fmt.Fprintf(out, "Source:       %s\n", entry.SourcePath)
				fmt.Fprintf(out, "Size:         %d bytes\n", entry.FileSize)
				fmt.Fprintf(out, "Status:       %s\n", statusTitle(entry.Status))
				fmt.Fprintf(out, "Attempts:     %d\n", entry.Attempts)
				fmt.Fprintf(out, "Discovered:   %s\n", entry.DiscoveredAt)
				if entry.Printer != "" {
					fmt.Fprintf(out, "Printer:      %s\n", entry.Printer)
				}
				if entry.JobID != "" {
					fmt.Fprintf(out, "Job:          %s\n", entry.JobID)
				}
				if entry.PrintedAt != "" {
					fmt.Fprintf(out, "Printed:      %s\n", entry.PrintedAt)
				}
				if entry.ArchivedPath != "" {
					fmt.Fprintf(out, "Archived to:  %s\n", entry.ArchivedPath)
				}
				if entry.ArchivedAt != "" {
					fmt.Fprintf(out, "Archived:     %s\n", entry.ArchivedAt)
				}
				if entry.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:        %s\n", entry.ErrorMessage)
				}
				return nil
			})
		},
	}
}

func newLedgerClearCommand(ctx *commandContext) *cobra.Command {
	var archivedOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if archivedOnly {
					resp, err := client.LedgerClearArchived()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %d archived entries\n", resp.Removed)
					return nil
				}
				resp, err := client.LedgerClear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&archivedOnly, "archived", false, "Only remove archived entries")
	return cmd
}

func newLedgerClearFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Remove failed ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerClearFailed()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d failed entries\n", resp.Removed)
				return nil
			})
		},
	}
}

func newLedgerResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset entries stuck mid-stage back to their starting status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerReset()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d entries\n", resp.Updated)
				return nil
			})
		},
	}
}

func newLedgerRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Retry failed entries (all failed entries when no ids given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDArgs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerRetry(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d entries\n", resp.Updated)
				return nil
			})
		},
	}
}

func newLedgerRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Remove specific ledger entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDArgs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LedgerRemove(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", resp.Removed)
				return nil
			})
		},
	}
}

func newLedgerHealthCommand(ctx *commandContext) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show ledger database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if detailed {
					resp, err := client.DatabaseHealth()
					if err != nil {
						return err
					}
					colorize := shouldColorize(out)
					fmt.Fprintln(out, renderStatusLine("Database", statusKindForBool(resp.DatabaseExists && resp.DatabaseReadable), resp.DBPath, colorize))
					fmt.Fprintln(out, renderStatusLine("Schema", statusKindForBool(resp.TableExists), resp.SchemaVersion, colorize))
					fmt.Fprintln(out, renderStatusLine("Integrity", statusKindForBool(resp.IntegrityCheck), "", colorize))
					if len(resp.MissingColumns) > 0 {
						fmt.Fprintln(out, renderStatusLine("Missing columns", statusError, fmt.Sprint(resp.MissingColumns), colorize))
					}
					fmt.Fprintf(out, "\nTotal entries: %d\n", resp.TotalEntries)
					if resp.Error != "" {
						fmt.Fprintf(out, "Error: %s\n", resp.Error)
					}
					return nil
				}

				resp, err := client.LedgerHealth()
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Pending", fmt.Sprint(resp.Pending)},
					{"Processing", fmt.Sprint(resp.Processing)},
					{"Printed", fmt.Sprint(resp.Printed)},
					{"Archived", fmt.Sprint(resp.Archived)},
					{"Failed", fmt.Sprint(resp.Failed)},
					{"Total", fmt.Sprint(resp.Total)},
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, 1))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show detailed database diagnostics")
	return cmd
}
