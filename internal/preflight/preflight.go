package preflight

import (
	"context"

	"autoprint/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Watched and data directories (always checked)
	results = append(results, CheckDirectoryAccess("Watched directory", cfg.Paths.WatchedDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// Archive directory (when archiving is enabled)
	if cfg.Archive.Enabled {
		results = append(results, CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir))
	}

	// CUPS client binaries
	results = append(results, CheckBinary("lp", cfg.Printer.LPBinary))
	results = append(results, CheckBinary("lpstat", cfg.Printer.LPStatBinary))

	// Printer destination
	results = append(results, CheckPrinter(ctx, cfg))

	return results
}

// RunStartupChecks executes the checks that must pass before the watch loop
// may begin: the watched folder, the CUPS client binaries, and the configured
// printer destination. The remaining RunAll checks are diagnostic; their
// targets are created on demand.
func RunStartupChecks(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	return []Result{
		CheckDirectoryAccess("Watched directory", cfg.Paths.WatchedDir),
		CheckBinary("lp", cfg.Printer.LPBinary),
		CheckBinary("lpstat", cfg.Printer.LPStatBinary),
		CheckPrinter(ctx, cfg),
	}
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
