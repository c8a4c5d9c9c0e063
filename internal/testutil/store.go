package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nhle/deadline-tracker/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// FlakyStore wraps a DocumentStore and fails writes (or reads) on demand.
type FlakyStore struct {
	store.DocumentStore

	mu         sync.Mutex
	failWrites bool
	failReads  bool
	writes     int
}

// NewFlakyStore wraps an in-memory SQLite store.
func NewFlakyStore(t *testing.T) *FlakyStore {
	t.Helper()
	return &FlakyStore{DocumentStore: NewTestStore(t)}
}

// FailWrites toggles write failures.
func (f *FlakyStore) FailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

// FailReads toggles read failures.
func (f *FlakyStore) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = fail
}

// Writes returns the number of successful WriteAll calls.
func (f *FlakyStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// ErrInjected is returned by FlakyStore when a failure is toggled on.
var ErrInjected = errors.New("injected storage failure")

func (f *FlakyStore) ReadAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.DocumentStore.ReadAll(ctx, collection)
}

func (f *FlakyStore) WriteAll(ctx context.Context, collection string, docs []json.RawMessage) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	if err := f.DocumentStore.WriteAll(ctx, collection, docs); err != nil {
		return err
	}
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return nil
}
