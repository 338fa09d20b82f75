package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchedDir string `toml:"watched_dir"`
	ArchiveDir string `toml:"archive_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
}

// Printer contains the target printer and submission settings.
type Printer struct {
	Name          string `toml:"name"`
	LPBinary      string `toml:"lp_binary"`
	LPStatBinary  string `toml:"lpstat_binary"`
	JobGapSeconds int    `toml:"job_gap_seconds"`
}

// Watch contains stability-detection settings for arriving files.
type Watch struct {
	PollIntervalMS       int  `toml:"poll_interval_ms"`
	StableSamples        int  `toml:"stable_samples"`
	StableTimeoutSeconds int  `toml:"stable_timeout_seconds"`
	RescanOnStart        bool `toml:"rescan_on_start"`
}

// Archive controls post-print relocation of files.
type Archive struct {
	Enabled bool `toml:"enabled"`
}

// Pipeline contains orchestrator timing and retry settings.
type Pipeline struct {
	PollInterval        int  `toml:"poll_interval"`
	ErrorRetryInterval  int  `toml:"error_retry_interval"`
	HeartbeatInterval   int  `toml:"heartbeat_interval"`
	HeartbeatTimeout    int  `toml:"heartbeat_timeout"`
	MaxPrintAttempts    int  `toml:"max_print_attempts"`
	RetryBackoffSeconds int  `toml:"retry_backoff_seconds"`
	RepollFailed        bool `toml:"repoll_failed"`
}

// Schedule restricts printing to a daily time window.
type Schedule struct {
	Enabled bool   `toml:"enabled"`
	Start   string `toml:"start"`
	End     string `toml:"end"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Detect         bool   `toml:"detect"`
	Print          bool   `toml:"print"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Autostart controls OS login-session startup registration.
type Autostart struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for AutoPrint.
//
// Configuration sections by subsystem:
//   - Paths: watched folder, archive folder, data and log directories
//   - Printer: target printer name and lp/lpstat binaries
//   - Watch: file stability detection policy
//   - Archive: post-print relocation toggle
//   - Pipeline: orchestrator polling, heartbeats, and retry budget
//   - Schedule: optional daily print window
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Autostart: login-session startup registration
type Config struct {
	Paths         Paths         `toml:"paths"`
	Printer       Printer       `toml:"printer"`
	Watch         Watch         `toml:"watch"`
	Archive       Archive       `toml:"archive"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Schedule      Schedule      `toml:"schedule"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Autostart     Autostart     `toml:"autostart"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/autoprint/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("autoprint.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The archive directory is created lazily by the archiver so the daemon can
// run while the archive target is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the location of the persisted ledger database.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "autoprint.sock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
