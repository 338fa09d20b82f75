package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"autoprint/internal/ipc"
	"autoprint/internal/printing"
)

func newPrintersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List installed print destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			// Prefer the daemon view; fall back to querying lpstat directly
			// when no daemon is running.
			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Printers()
				if err != nil {
					return err
				}
				printPrinterList(out, resp.Printers, ctx)
				return nil
			})
			if err == nil {
				return nil
			}

			cfg := ctx.configValue()
			if cfg == nil {
				return err
			}
			client := printing.NewClient(cfg.Printer.LPBinary, cfg.Printer.LPStatBinary)
			printers, listErr := client.ListPrinters(cmd.Context())
			if listErr != nil {
				return fmt.Errorf("list printers: %w", listErr)
			}
			printPrinterList(out, printers, ctx)
			return nil
		},
	}
}

func printPrinterList(out io.Writer, printers []string, ctx *commandContext) {
	if len(printers) == 0 {
		fmt.Fprintln(out, "No print destinations found")
		return
	}
	configured := ""
	if cfg := ctx.configValue(); cfg != nil {
		configured = cfg.Printer.Name
	}
	for _, name := range printers {
		marker := " "
		if name == configured {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, name)
	}
	if configured == "" {
		fmt.Fprintln(out, "\nNo printer configured; the system default destination is used")
	}
}
