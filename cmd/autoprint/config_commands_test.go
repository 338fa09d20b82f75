package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// Second init without --overwrite refuses to clobber.
	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already-exists error, got %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "Watched dir:")
	requireContains(t, out, "Printer:")
}

func TestHelpersBuildLedgerStatusRows(t *testing.T) {
	rows := buildLedgerStatusRows(map[string]int{
		"archived": 3,
		"pending":  1,
		"bogus":    2,
	})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Pending" || rows[1][0] != "Archived" {
		t.Fatalf("lifecycle ordering broken: %v", rows)
	}
	if rows[2][0] != "Bogus" {
		t.Fatalf("unknown statuses should sort last: %v", rows)
	}
	if rows := buildLedgerStatusRows(nil); rows != nil {
		t.Fatalf("expected nil rows for empty stats, got %v", rows)
	}
}

func TestHelpersParseIDArgs(t *testing.T) {
	ids, err := parseIDArgs([]string{"1", " 42 "})
	if err != nil {
		t.Fatalf("parseIDArgs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 42 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if _, err := parseIDArgs([]string{"seven"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
