package testsupport

import (
	"context"
	"testing"
	"time"

	"autoprint/internal/config"
	"autoprint/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewEntry records a pending entry for tests using the provided store.
func NewEntry(t testing.TB, store *ledger.Store, sourcePath string, size int64, modifiedAt time.Time) *ledger.Entry {
	t.Helper()

	entry, err := store.NewEntry(context.Background(), sourcePath, size, modifiedAt)
	if err != nil {
		t.Fatalf("store.NewEntry: %v", err)
	}
	return entry
}
