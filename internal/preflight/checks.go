package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"autoprint/internal/config"
	"autoprint/internal/printing"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBinary verifies that a required executable resolves on PATH.
func CheckBinary(name, command string) Result {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", cmd)}
	}
	return Result{Name: name, Passed: true, Detail: resolved}
}

// CheckPrinter verifies that the configured destination is known to the print
// system. With no destination configured it passes as long as lpstat reports
// at least one printer, since lp will then route to the system default.
func CheckPrinter(ctx context.Context, cfg *config.Config) Result {
	const name = "Printer"

	if _, err := exec.LookPath(strings.TrimSpace(cfg.Printer.LPStatBinary)); err != nil {
		return Result{Name: name, Detail: "lpstat unavailable, cannot query destinations"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := printing.NewClient(cfg.Printer.LPBinary, cfg.Printer.LPStatBinary)
	ok, err := client.PrinterAvailable(checkCtx, cfg.Printer.Name)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("destination query failed: %v", err)}
	}
	if !ok {
		if cfg.Printer.Name == "" {
			return Result{Name: name, Detail: "no print destinations configured"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("destination %q not found", cfg.Printer.Name)}
	}
	if cfg.Printer.Name == "" {
		return Result{Name: name, Passed: true, Detail: "system default destination"}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Printer.Name}
}
