// Package storetest provides store fixtures for tests in other packages.
package storetest

import (
	"testing"

	"github.com/arunshreyas/Marketa/internal/store"
)

// NewSQLiteStore returns an in-memory store closed at test cleanup.
func NewSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
