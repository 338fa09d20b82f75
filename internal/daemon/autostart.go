package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const autostartEntry = `[Desktop Entry]
Type=Application
Name=AutoPrint
Comment=Watches a folder and prints arriving PDFs
Exec=%s daemon
X-GNOME-Autostart-enabled=true
`

func autostartPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(configDir, "autostart", "autoprint.desktop"), nil
}

// EnableAutostart registers a desktop autostart entry pointing at the given
// executable so the daemon starts with the login session.
func EnableAutostart(execPath string) error {
	if execPath == "" {
		resolved, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		execPath = resolved
	}
	path, err := autostartPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create autostart directory: %w", err)
	}
	content := fmt.Sprintf(autostartEntry, execPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write autostart entry: %w", err)
	}
	return nil
}

// DisableAutostart removes the desktop autostart entry if present.
func DisableAutostart() error {
	path, err := autostartPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove autostart entry: %w", err)
	}
	return nil
}

// AutostartEnabled reports whether a desktop autostart entry exists.
func AutostartEnabled() (bool, error) {
	path, err := autostartPath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
