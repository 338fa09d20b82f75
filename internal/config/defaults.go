package config

// Default returns the baseline configuration before any file overrides are
// applied. Paths are left in ~-form; normalize expands them.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchedDir: "~/Dropbox/PrintQueue",
			ArchiveDir: "~/Dropbox/PrintQueue/printed",
			DataDir:    "~/.local/share/autoprint",
			LogDir:     "~/.local/share/autoprint/logs",
		},
		Printer: Printer{
			Name:          "",
			LPBinary:      "lp",
			LPStatBinary:  "lpstat",
			JobGapSeconds: 2,
		},
		Watch: Watch{
			PollIntervalMS:       500,
			StableSamples:        2,
			StableTimeoutSeconds: 120,
			RescanOnStart:        true,
		},
		Archive: Archive{
			Enabled: true,
		},
		Pipeline: Pipeline{
			PollInterval:        2,
			ErrorRetryInterval:  10,
			HeartbeatInterval:   5,
			HeartbeatTimeout:    60,
			MaxPrintAttempts:    4,
			RetryBackoffSeconds: 5,
			RepollFailed:        false,
		},
		Schedule: Schedule{
			Enabled: false,
			Start:   "08:00",
			End:     "20:00",
		},
		Notifications: Notifications{
			NtfyTopic:      "",
			RequestTimeout: 10,
			Detect:         false,
			Print:          true,
			Errors:         true,
		},
		Logging: Logging{
			Format: "text",
			Level:  "info",
		},
		Autostart: Autostart{
			Enabled: false,
		},
	}
}
