package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"autoprint/internal/config"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	// Recovered is set when Open found a corrupt database, moved it aside,
	// and started fresh. The caller should log a warning; a broken ledger
	// must never keep the daemon from printing.
	Recovered     bool
	RecoveredFrom string
}

// Open initializes or connects to the ledger database. A corrupt or
// unreadable database is renamed aside and recreated rather than treated as
// fatal.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.LedgerPath()
	store, err := openAt(dbPath)
	if err == nil {
		return store, nil
	}

	// Anything wrong with the existing file (corruption, schema damage,
	// truncation) gets the same treatment: move it aside and start clean.
	corruptPath := dbPath + ".corrupt-" + time.Now().UTC().Format("20060102-150405")
	if renameErr := quarantineDatabase(dbPath, corruptPath); renameErr != nil {
		return nil, fmt.Errorf("open ledger: %w (quarantine also failed: %v)", err, renameErr)
	}

	store, retryErr := openAt(dbPath)
	if retryErr != nil {
		return nil, fmt.Errorf("reopen ledger after quarantine: %w", retryErr)
	}
	store.Recovered = true
	store.RecoveredFrom = corruptPath
	return store, nil
}

func openAt(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	var integrity string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	if !strings.EqualFold(integrity, "ok") {
		_ = db.Close()
		return nil, fmt.Errorf("integrity check failed: %s", integrity)
	}

	return store, nil
}

func quarantineDatabase(dbPath, corruptPath string) error {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Rename(dbPath, corruptPath); err != nil {
		return err
	}
	// WAL sidecar files describe the old database and must go with it.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Rename(dbPath+suffix, corruptPath+suffix)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

// NewEntry records a newly stable file as pending. The identity triple has a
// UNIQUE constraint, so recording the same file twice returns the existing
// entry instead of inserting a duplicate.
func (s *Store) NewEntry(ctx context.Context, sourcePath string, fileSize int64, modifiedAt time.Time) (*Entry, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	modified := modifiedAt.UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ledger_entries (
            source_path, file_size, modified_at, status, attempts,
            discovered_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?, ?)
        ON CONFLICT (source_path, file_size, modified_at) DO NOTHING`,
		sourcePath,
		fileSize,
		modified,
		StatusPending,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.FindByIdentity(ctx, sourcePath, fileSize, modifiedAt)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// FindByIdentity returns the entry matching the (path, size, mtime) triple,
// or nil when the file has never been recorded.
func (s *Store) FindByIdentity(ctx context.Context, sourcePath string, fileSize int64, modifiedAt time.Time) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
         WHERE source_path = ? AND file_size = ? AND modified_at = ?
         ORDER BY id LIMIT 1`,
		sourcePath,
		fileSize,
		modifiedAt.UTC().Format(time.RFC3339Nano),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by identity: %w", err)
	}
	return entry, nil
}

// GetByID fetches a ledger entry by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// Update persists changes to an existing ledger entry.
func (s *Store) Update(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	entry.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries
         SET source_path = ?, file_size = ?, modified_at = ?, status = ?,
             printer = ?, job_id = ?, archived_path = ?, error_message = ?,
             attempts = ?, printed_at = ?, archived_at = ?, updated_at = ?,
             last_heartbeat = ?
         WHERE id = ?`,
		entry.SourcePath,
		entry.FileSize,
		entry.ModifiedAt.UTC().Format(time.RFC3339Nano),
		entry.Status,
		nullableString(entry.Printer),
		nullableString(entry.JobID),
		nullableString(entry.ArchivedPath),
		nullableString(entry.ErrorMessage),
		entry.Attempts,
		nullableTime(entry.PrintedAt),
		nullableTime(entry.ArchivedAt),
		entry.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(entry.LastHeartbeat),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

// List returns ledger entries filtered by status set (or all entries when no
// status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + entryColumns + ` FROM ledger_entries`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// NextForStatuses returns the oldest entry matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Entry, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ResetStuckProcessing returns in-flight entries to the state their stage
// started from. Interrupted submissions go back to pending; interrupted
// archives keep their printed mark so the file is never submitted twice.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var total int64

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending, now, StatusPrinting,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck printing: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPrinted, now, StatusArchiving,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck archiving: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight entry.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing rolls entries with expired heartbeats back to the
// state their stage started from.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)
	var total int64

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending, now, StatusPrinting, cutoffStr,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale printing: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPrinted, now, StatusArchiving, cutoffStr,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale archiving: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// RetryFailed moves failed entries back into the pipeline. Entries whose
// file already reached the spooler resume at printed (only the archive is
// redone); the rest go back to pending with a fresh attempt budget.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	scope := `status = '` + string(StatusFailed) + `'`
	args := []any{}
	if len(ids) > 0 {
		scope += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	var total int64

	printedArgs := append([]any{StatusPrinted, now}, args...)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, error_message = NULL, updated_at = ?
         WHERE printed_at IS NOT NULL AND `+scope,
		printedArgs...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed (printed): %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	pendingArgs := append([]any{StatusPending, now}, args...)
	res, err = s.db.ExecContext(
		ctx,
		`UPDATE ledger_entries
         SET status = ?, error_message = NULL, attempts = 0, updated_at = ?
         WHERE printed_at IS NULL AND `+scope,
		pendingArgs...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed (pending): %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM ledger_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates ledger state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusPrinted:
			health.Printed += count
		case StatusArchived:
			health.Archived += count
		case StatusFailed:
			health.Failed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// CountPrintedSince returns the number of files that reached the spooler at
// or after the given instant.
func (s *Store) CountPrintedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM ledger_entries WHERE printed_at IS NOT NULL AND printed_at >= ?`,
		since.UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count printed since: %w", err)
	}
	return count, nil
}

// CheckHealth returns diagnostic information about the ledger database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: "current",
	}

	if s.path == "" {
		return health, errors.New("ledger database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat ledger database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("ledger database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("ledger database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping ledger database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'ledger_entries'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		colsRows, err := s.db.QueryContext(connCtx, "PRAGMA table_info(ledger_entries)")
		if err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("table info: %w", err)
		}
		defer colsRows.Close()

		var columns []string
		for colsRows.Next() {
			var (
				cid     int
				name    string
				typeStr string
				notNull int
				dflt    any
				pk      int
			)
			if err := colsRows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
				health.Error = err.Error()
				return health, fmt.Errorf("scan table info: %w", err)
			}
			columns = append(columns, name)
		}
		if err := colsRows.Err(); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("iterate table info: %w", err)
		}
		health.ColumnsPresent = append(health.ColumnsPresent, columns...)

		expected := []string{"id", "source_path", "file_size", "modified_at", "status", "printer", "job_id", "archived_path", "error_message", "attempts", "discovered_at", "printed_at", "archived_at", "created_at", "updated_at", "last_heartbeat"}
		missingMap := make(map[string]struct{}, len(expected))
		for _, col := range expected {
			missingMap[col] = struct{}{}
		}
		for _, col := range columns {
			delete(missingMap, col)
		}
		for col := range missingMap {
			health.MissingColumns = append(health.MissingColumns, col)
		}

		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM ledger_entries")
		if err := row.Scan(&health.TotalEntries); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count ledger entries: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// Remove deletes an entry by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearArchived removes only archived entries from the ledger.
func (s *Store) ClearArchived(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE status = ?`, StatusArchived)
	if err != nil {
		return 0, fmt.Errorf("clear archived: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed entries from the ledger.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all entries from the ledger.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries`)
	if err != nil {
		return 0, fmt.Errorf("clear ledger: %w", err)
	}
	return res.RowsAffected()
}

const entryColumns = "id, source_path, file_size, modified_at, status, printer, job_id, archived_path, error_message, attempts, discovered_at, printed_at, archived_at, created_at, updated_at, last_heartbeat"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id               int64
		sourcePath       string
		fileSize         int64
		modifiedRaw      string
		statusStr        string
		printer          sql.NullString
		jobID            sql.NullString
		archivedPath     sql.NullString
		errorMessage     sql.NullString
		attempts         int
		discoveredRaw    sql.NullString
		printedRaw       sql.NullString
		archivedRaw      sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&fileSize,
		&modifiedRaw,
		&statusStr,
		&printer,
		&jobID,
		&archivedPath,
		&errorMessage,
		&attempts,
		&discoveredRaw,
		&printedRaw,
		&archivedRaw,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           id,
		SourcePath:   sourcePath,
		FileSize:     fileSize,
		Status:       Status(statusStr),
		Printer:      printer.String,
		JobID:        jobID.String,
		ArchivedPath: archivedPath.String,
		ErrorMessage: errorMessage.String,
		Attempts:     attempts,
	}

	if modified, err := parseTimeString(modifiedRaw); err == nil {
		entry.ModifiedAt = modified
	}
	if discovered, err := parseTimeString(discoveredRaw.String); err == nil {
		entry.DiscoveredAt = discovered
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	if printedRaw.Valid {
		if printed, err := parseTimeString(printedRaw.String); err == nil {
			entry.PrintedAt = &printed
		}
	}
	if archivedRaw.Valid {
		if archived, err := parseTimeString(archivedRaw.String); err == nil {
			entry.ArchivedAt = &archived
		}
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			entry.LastHeartbeat = &heartbeat
		}
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
