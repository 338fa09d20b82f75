package printing

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"autoprint/internal/services"
)

// commandRunner abstracts process execution so tests can stub the print
// system without real binaries.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// Client submits documents to the local print system through lp and lpstat.
type Client struct {
	lpBinary     string
	lpstatBinary string
	runner       commandRunner
}

// NewClient builds a Client around the configured lp and lpstat binaries.
func NewClient(lpBinary, lpstatBinary string) *Client {
	if lpBinary == "" {
		lpBinary = "lp"
	}
	if lpstatBinary == "" {
		lpstatBinary = "lpstat"
	}
	return &Client{lpBinary: lpBinary, lpstatBinary: lpstatBinary, runner: execRunner{}}
}

// ListPrinters returns the destinations known to the print system.
func (c *Client) ListPrinters(ctx context.Context) ([]string, error) {
	stdout, stderr, err := c.runner.Run(ctx, c.lpstatBinary, "-e")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "printing", "lpstat", strings.TrimSpace(stderr), err)
	}
	var printers []string
	for _, line := range strings.Split(stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			printers = append(printers, name)
		}
	}
	return printers, nil
}

// PrinterAvailable reports whether the named destination exists. An empty
// name means the system default destination and counts as available when any
// destination exists.
func (c *Client) PrinterAvailable(ctx context.Context, name string) (bool, error) {
	printers, err := c.ListPrinters(ctx)
	if err != nil {
		return false, err
	}
	if name == "" {
		return len(printers) > 0, nil
	}
	for _, printer := range printers {
		if printer == name {
			return true, nil
		}
	}
	return false, nil
}

// Submit hands a document to the spooler and returns the job identifier.
// Success means the spooler accepted the job; whether paper comes out is the
// print system's problem from here.
func (c *Client) Submit(ctx context.Context, printer, path string) (string, error) {
	args := []string{}
	if printer != "" {
		args = append(args, "-d", printer)
	}
	args = append(args, "--", path)

	stdout, stderr, err := c.runner.Run(ctx, c.lpBinary, args...)
	if err != nil {
		return "", classifySubmitError(stderr, err)
	}

	jobID := parseJobID(stdout)
	if jobID == "" {
		// Acceptance without a parsable id still counts as accepted.
		return "", nil
	}
	return jobID, nil
}

// parseJobID extracts the job identifier from lp output of the form
// "request id is Printer-42 (1 file(s))".
func parseJobID(output string) string {
	const marker = "request id is "
	idx := strings.Index(output, marker)
	if idx < 0 {
		return ""
	}
	rest := output[idx+len(marker):]
	if end := strings.IndexAny(rest, " \t\r\n"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func classifySubmitError(stderr string, err error) error {
	detail := strings.TrimSpace(stderr)
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "unknown printer") || strings.Contains(lower, "no default destination"):
		return services.Wrap(services.ErrConfiguration, "printing", "lp", detail, err)
	case strings.Contains(lower, "unable to print") || strings.Contains(lower, "unsupported"):
		return services.Wrap(services.ErrValidation, "printing", "lp", detail, err)
	default:
		return services.Wrap(services.ErrExternalTool, "printing", "lp", detail, err)
	}
}
