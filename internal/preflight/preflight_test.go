package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"autoprint/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinary(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	if result := CheckBinary("present", present); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckBinary("missing", "clearly-not-present-binary"); result.Passed {
		t.Fatal("expected failure for missing binary")
	}
	if result := CheckBinary("blank", "  "); result.Passed {
		t.Fatal("expected failure for unconfigured binary")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedEnvironmentPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.Paths.ArchiveDir, 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected no failures, got %d", len(failed))
	}
}

func TestRunStartupChecks_SkipsOnDemandDirectories(t *testing.T) {
	// The archive, data, and log directories are created on demand; only
	// the watched folder and print destination gate startup.
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := RunStartupChecks(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected no failures, got %+v", failed)
	}
	for _, r := range results {
		switch r.Name {
		case "Archive directory", "Data directory", "Log directory":
			t.Fatalf("startup checks must not include %q", r.Name)
		}
	}
}

func TestRunStartupChecks_FailUnknownPrinter(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithPrinter("Nonexistent_Printer"))

	failed := Failed(RunStartupChecks(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "Printer" {
		t.Fatalf("expected only the printer check to fail, got %+v", failed)
	}
}

func TestRunAll_ReportsUnknownPrinter(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithPrinter("Nonexistent_Printer"))

	results := RunAll(context.Background(), cfg)
	found := false
	for _, r := range results {
		if r.Name == "Printer" {
			found = true
			if r.Passed {
				t.Errorf("printer check should fail for unknown destination")
			}
		}
	}
	if !found {
		t.Fatal("expected a printer check in results")
	}
}
