// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"autoprint/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchedDir = filepath.Join(base, "watched")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Printer.Name = "Test_Printer"
	cfgVal.Printer.JobGapSeconds = 0
	cfgVal.Watch.PollIntervalMS = 10
	cfgVal.Watch.StableTimeoutSeconds = 2
	cfgVal.Pipeline.RetryBackoffSeconds = 1
	cfgVal.Notifications.NtfyTopic = ""

	if err := os.MkdirAll(cfgVal.Paths.WatchedDir, 0o755); err != nil {
		t.Fatalf("mkdir watched dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPrinter overrides the printer name on the test config.
func WithPrinter(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Printer.Name = name
	}
}

// WithArchiveDisabled turns off post-print relocation on the test config.
func WithArchiveDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Archive.Enabled = false
	}
}

// WithStubbedBinaries writes stub lp/lpstat executables and prepends them to
// PATH. The lp stub answers with a spooler acceptance line; the lpstat stub
// lists the test printer.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"lp", "lpstat"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		scripts := map[string][]byte{
			"lp":     []byte("#!/bin/sh\necho \"request id is Test_Printer-42 (1 file(s))\"\nexit 0\n"),
			"lpstat": []byte("#!/bin/sh\necho \"Test_Printer\"\nexit 0\n"),
		}
		fallback := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			script, ok := scripts[name]
			if !ok {
				script = fallback
			}
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WatchedDir)
}
