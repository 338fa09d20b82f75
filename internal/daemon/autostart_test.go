package daemon_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autoprint/internal/daemon"
)

func TestAutostartRoundTrip(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	enabled, err := daemon.AutostartEnabled()
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Fatal("autostart should start disabled")
	}

	if err := daemon.EnableAutostart("/usr/local/bin/autoprint"); err != nil {
		t.Fatalf("EnableAutostart: %v", err)
	}

	enabled, err = daemon.AutostartEnabled()
	if err != nil {
		t.Fatal(err)
	}
	if !enabled {
		t.Fatal("autostart should report enabled")
	}

	content, err := os.ReadFile(filepath.Join(configHome, "autostart", "autoprint.desktop"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "Exec=/usr/local/bin/autoprint daemon") {
		t.Fatalf("desktop entry missing exec line:\n%s", content)
	}

	if err := daemon.DisableAutostart(); err != nil {
		t.Fatalf("DisableAutostart: %v", err)
	}
	enabled, err = daemon.AutostartEnabled()
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Fatal("autostart should be disabled after removal")
	}

	// Disabling twice is fine.
	if err := daemon.DisableAutostart(); err != nil {
		t.Fatalf("second DisableAutostart: %v", err)
	}
}
