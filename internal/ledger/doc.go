// Package ledger persists the print history in SQLite so every file prints
// at most once, across daemon restarts included.
//
// An entry's identity is the (source path, size, mtime) triple. Statuses move
// forward only: pending, printing, printed, archiving, archived, with failed
// as the off-ramp. A printed mark is never reverted; archive trouble after a
// successful submission surfaces as failed but resumes at printed on retry.
package ledger
