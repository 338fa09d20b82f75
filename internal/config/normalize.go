package config

import "strings"

func (c *Config) normalize() error {
	paths := []*string{
		&c.Paths.WatchedDir,
		&c.Paths.ArchiveDir,
		&c.Paths.DataDir,
		&c.Paths.LogDir,
	}
	for _, p := range paths {
		expanded, err := expandPath(strings.TrimSpace(*p))
		if err != nil {
			return err
		}
		*p = expanded
	}

	c.Printer.Name = strings.TrimSpace(c.Printer.Name)
	c.Printer.LPBinary = strings.TrimSpace(c.Printer.LPBinary)
	c.Printer.LPStatBinary = strings.TrimSpace(c.Printer.LPStatBinary)
	if c.Printer.LPBinary == "" {
		c.Printer.LPBinary = "lp"
	}
	if c.Printer.LPStatBinary == "" {
		c.Printer.LPStatBinary = "lpstat"
	}
	if c.Printer.JobGapSeconds < 0 {
		c.Printer.JobGapSeconds = 0
	}

	if c.Watch.PollIntervalMS <= 0 {
		c.Watch.PollIntervalMS = 500
	}
	if c.Watch.StableSamples <= 0 {
		c.Watch.StableSamples = 2
	}
	if c.Watch.StableTimeoutSeconds <= 0 {
		c.Watch.StableTimeoutSeconds = 120
	}

	if c.Pipeline.PollInterval <= 0 {
		c.Pipeline.PollInterval = 2
	}
	if c.Pipeline.ErrorRetryInterval <= 0 {
		c.Pipeline.ErrorRetryInterval = 10
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		c.Pipeline.HeartbeatInterval = 5
	}
	if c.Pipeline.HeartbeatTimeout <= 0 {
		c.Pipeline.HeartbeatTimeout = 60
	}
	if c.Pipeline.MaxPrintAttempts <= 0 {
		c.Pipeline.MaxPrintAttempts = 4
	}
	if c.Pipeline.RetryBackoffSeconds <= 0 {
		c.Pipeline.RetryBackoffSeconds = 5
	}

	c.Schedule.Start = strings.TrimSpace(c.Schedule.Start)
	c.Schedule.End = strings.TrimSpace(c.Schedule.End)

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = 10
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}
