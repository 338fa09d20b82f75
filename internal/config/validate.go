package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for structural errors. It does not probe
// the filesystem or the print system; preflight does that at daemon start.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.WatchedDir == "" {
		problems = append(problems, "paths.watched_dir must be set")
	}
	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	if c.Archive.Enabled && c.Paths.ArchiveDir == "" {
		problems = append(problems, "paths.archive_dir must be set when archive.enabled is true")
	}
	if c.Archive.Enabled && c.Paths.ArchiveDir == c.Paths.WatchedDir {
		problems = append(problems, "paths.archive_dir must differ from paths.watched_dir")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}

	if c.Schedule.Enabled {
		for field, value := range map[string]string{
			"schedule.start": c.Schedule.Start,
			"schedule.end":   c.Schedule.End,
		} {
			if !validClockValue(value) {
				problems = append(problems, fmt.Sprintf("%s %q must be HH:MM", field, value))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validClockValue(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	hour := int(value[0]-'0')*10 + int(value[1]-'0')
	minute := int(value[3]-'0')*10 + int(value[4]-'0')
	return hour < 24 && minute < 60
}
