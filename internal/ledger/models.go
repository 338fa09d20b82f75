package ledger

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a ledger entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPrinting  Status = "printing"
	StatusPrinted   Status = "printed"
	StatusArchiving Status = "archiving"
	StatusArchived  Status = "archived"
	StatusFailed    Status = "failed"
)

// DaemonStopReason is the error message set when entries are interrupted by daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusPrinting,
	StatusPrinted,
	StatusArchiving,
	StatusArchived,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusPrinting:  {},
	StatusArchiving: {},
}

// DatabaseHealth captures diagnostic information about the ledger database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalEntries     int
	Error            string
}

// HealthSummary describes aggregated entry counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Printed    int
	Archived   int
	Failed     int
}

// Entry represents one watched file persisted in SQLite. Identity is the
// (source_path, file_size, modified_at) triple: a path reused with different
// content is a new entry, a restart seeing the same file again is not.
type Entry struct {
	ID            int64
	SourcePath    string
	FileSize      int64
	ModifiedAt    time.Time
	Status        Status
	Printer       string
	JobID         string
	ArchivedPath  string
	ErrorMessage  string
	Attempts      int
	DiscoveredAt  time.Time
	PrintedAt     *time.Time
	ArchivedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (e Entry) IsProcessing() bool {
	_, ok := processingStatuses[e.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// HasPrinted reports whether the entry's file ever reached the spooler.
// Archive trouble after this point must never cause a second submission.
func (e Entry) HasPrinted() bool {
	if e.PrintedAt != nil {
		return true
	}
	switch e.Status {
	case StatusPrinted, StatusArchiving, StatusArchived:
		return true
	default:
		return false
	}
}

// FileName returns the base name of the entry's source file.
func (e Entry) FileName() string {
	if e.SourcePath == "" {
		return ""
	}
	idx := strings.LastIndexByte(e.SourcePath, '/')
	return e.SourcePath[idx+1:]
}

// SetFailed marks the entry as failed with the given error message and
// clears the heartbeat.
func (e *Entry) SetFailed(message string) {
	e.Status = StatusFailed
	e.ErrorMessage = message
	e.LastHeartbeat = nil
}
