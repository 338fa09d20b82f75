package ipc

import (
	"time"

	"autoprint/internal/ledger"
)

// StartRequest triggers daemon processing startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// LedgerEntry is the wire representation of a ledger entry.
type LedgerEntry struct {
	ID           int64  `json:"id"`
	SourcePath   string `json:"source_path"`
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	Status       string `json:"status"`
	Printer      string `json:"printer"`
	JobID        string `json:"job_id"`
	ArchivedPath string `json:"archived_path"`
	ErrorMessage string `json:"error_message"`
	Attempts     int    `json:"attempts"`
	DiscoveredAt string `json:"discovered_at"`
	PrintedAt    string `json:"printed_at,omitempty"`
	ArchivedAt   string `json:"archived_at,omitempty"`
}

// FromEntry converts a ledger entry to its wire form.
func FromEntry(entry *ledger.Entry) LedgerEntry {
	dto := LedgerEntry{
		ID:           entry.ID,
		SourcePath:   entry.SourcePath,
		FileName:     entry.FileName(),
		FileSize:     entry.FileSize,
		Status:       string(entry.Status),
		Printer:      entry.Printer,
		JobID:        entry.JobID,
		ArchivedPath: entry.ArchivedPath,
		ErrorMessage: entry.ErrorMessage,
		Attempts:     entry.Attempts,
		DiscoveredAt: entry.DiscoveredAt.Format(time.RFC3339),
	}
	if entry.PrintedAt != nil {
		dto.PrintedAt = entry.PrintedAt.Format(time.RFC3339)
	}
	if entry.ArchivedAt != nil {
		dto.ArchivedAt = entry.ArchivedAt.Format(time.RFC3339)
	}
	return dto
}

// StageHealth describes readiness of a pipeline stage.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail"`
}

// StatusResponse represents combined daemon/pipeline status information.
type StatusResponse struct {
	Running      bool           `json:"running"`
	WindowOpen   bool           `json:"window_open"`
	LedgerStats  map[string]int `json:"ledger_stats"`
	PrintedToday int            `json:"printed_today"`
	PrintedTotal int            `json:"printed_total"`
	LastError    string         `json:"last_error"`
	LastEntry    *LedgerEntry   `json:"last_entry"`
	LockPath     string         `json:"lock_path"`
	LedgerDBPath string         `json:"ledger_db_path"`
	StageHealth  []StageHealth  `json:"stage_health"`
	PID          int            `json:"pid"`
}

// LedgerListRequest filters ledger listing by status.
type LedgerListRequest struct {
	Statuses []string `json:"statuses"`
}

// LedgerListResponse contains ledger entries.
type LedgerListResponse struct {
	Entries []LedgerEntry `json:"entries"`
}

// LedgerDescribeRequest fetches a single ledger entry by id.
type LedgerDescribeRequest struct {
	ID int64 `json:"id"`
}

// LedgerDescribeResponse contains a single ledger entry.
type LedgerDescribeResponse struct {
	Entry LedgerEntry `json:"entry"`
}

// LedgerClearRequest removes all entries.
type LedgerClearRequest struct{}

// LedgerClearResponse reports number of removed entries.
type LedgerClearResponse struct {
	Removed int64 `json:"removed"`
}

// LedgerClearFailedRequest removes failed entries.
type LedgerClearFailedRequest struct{}

// LedgerClearFailedResponse reports number of removed entries.
type LedgerClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// LedgerClearArchivedRequest removes archived entries.
type LedgerClearArchivedRequest struct{}

// LedgerClearArchivedResponse reports number of removed entries.
type LedgerClearArchivedResponse struct {
	Removed int64 `json:"removed"`
}

// LedgerResetRequest resets in-flight entries.
type LedgerResetRequest struct{}

// LedgerResetResponse reports number of entries reset.
type LedgerResetResponse struct {
	Updated int64 `json:"updated"`
}

// LedgerRetryRequest retries failed entries. Empty list means all failed entries.
type LedgerRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// LedgerRetryResponse reports number of retried entries.
type LedgerRetryResponse struct {
	Updated int64 `json:"updated"`
}

// LedgerRemoveRequest removes specific entries by id.
type LedgerRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// LedgerRemoveResponse reports number of removed entries.
type LedgerRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// LedgerHealthRequest fetches aggregate diagnostics.
type LedgerHealthRequest struct{}

// LedgerHealthResponse reports ledger health information.
type LedgerHealthResponse struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Printed    int `json:"printed"`
	Archived   int `json:"archived"`
	Failed     int `json:"failed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalEntries     int      `json:"total_entries"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// PrintersRequest lists installed print destinations.
type PrintersRequest struct{}

// PrintersResponse contains destination names reported by the print system.
type PrintersResponse struct {
	Printers []string `json:"printers"`
}
