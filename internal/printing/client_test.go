package printing

import (
	"context"
	"errors"
	"testing"

	"autoprint/internal/services"
)

type fakeRunner struct {
	stdout string
	stderr string
	err    error

	calls [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	return f.stdout, f.stderr, f.err
}

func newTestClient(runner *fakeRunner) *Client {
	client := NewClient("lp", "lpstat")
	client.runner = runner
	return client
}

func TestListPrinters(t *testing.T) {
	runner := &fakeRunner{stdout: "Office_Laser\nBasement_Inkjet\n"}
	client := newTestClient(runner)

	printers, err := client.ListPrinters(context.Background())
	if err != nil {
		t.Fatalf("ListPrinters: %v", err)
	}
	if len(printers) != 2 || printers[0] != "Office_Laser" || printers[1] != "Basement_Inkjet" {
		t.Fatalf("printers = %v", printers)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != "lpstat" || runner.calls[0][1] != "-e" {
		t.Fatalf("calls = %v", runner.calls)
	}
}

func TestPrinterAvailable(t *testing.T) {
	runner := &fakeRunner{stdout: "Office_Laser\n"}
	client := newTestClient(runner)
	ctx := context.Background()

	ok, err := client.PrinterAvailable(ctx, "Office_Laser")
	if err != nil || !ok {
		t.Fatalf("PrinterAvailable(Office_Laser) = %v, %v", ok, err)
	}

	ok, err = client.PrinterAvailable(ctx, "Missing")
	if err != nil || ok {
		t.Fatalf("PrinterAvailable(Missing) = %v, %v", ok, err)
	}

	// Empty name means system default; any destination will do.
	ok, err = client.PrinterAvailable(ctx, "")
	if err != nil || !ok {
		t.Fatalf("PrinterAvailable(default) = %v, %v", ok, err)
	}
}

func TestSubmitParsesJobID(t *testing.T) {
	runner := &fakeRunner{stdout: "request id is Office_Laser-42 (1 file(s))\n"}
	client := newTestClient(runner)

	jobID, err := client.Submit(context.Background(), "Office_Laser", "/watch/a.pdf")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "Office_Laser-42" {
		t.Fatalf("jobID = %q", jobID)
	}

	call := runner.calls[0]
	want := []string{"lp", "-d", "Office_Laser", "--", "/watch/a.pdf"}
	if len(call) != len(want) {
		t.Fatalf("call = %v, want %v", call, want)
	}
	for i := range want {
		if call[i] != want[i] {
			t.Fatalf("call = %v, want %v", call, want)
		}
	}
}

func TestSubmitWithoutPrinterOmitsDestination(t *testing.T) {
	runner := &fakeRunner{stdout: "request id is Default-1 (1 file(s))\n"}
	client := newTestClient(runner)

	if _, err := client.Submit(context.Background(), "", "/watch/a.pdf"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	call := runner.calls[0]
	if len(call) != 3 || call[1] != "--" {
		t.Fatalf("call = %v, want lp -- <path>", call)
	}
}

func TestSubmitClassifiesErrors(t *testing.T) {
	cases := []struct {
		stderr string
		marker error
	}{
		{"lp: Error - unknown printer \"Bogus\"", services.ErrConfiguration},
		{"lp: no default destination", services.ErrConfiguration},
		{"lp: unsupported document-format", services.ErrValidation},
		{"lp: server not responding", services.ErrExternalTool},
	}
	for _, tc := range cases {
		runner := &fakeRunner{stderr: tc.stderr, err: errors.New("exit status 1")}
		client := newTestClient(runner)
		_, err := client.Submit(context.Background(), "P", "/watch/a.pdf")
		if err == nil {
			t.Fatalf("expected error for %q", tc.stderr)
		}
		if !errors.Is(err, tc.marker) {
			t.Errorf("stderr %q classified as %v, want %v", tc.stderr, err, tc.marker)
		}
	}
}

func TestParseJobID(t *testing.T) {
	cases := map[string]string{
		"request id is Office-7 (1 file(s))": "Office-7",
		"request id is Office-7\n":           "Office-7",
		"no id here":                         "",
		"":                                   "",
	}
	for input, want := range cases {
		if got := parseJobID(input); got != want {
			t.Errorf("parseJobID(%q) = %q, want %q", input, got, want)
		}
	}
}
