package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exerciseStore runs the DocumentStore contract against any backend.
func exerciseStore(t *testing.T, s DocumentStore) {
	t.Helper()
	ctx := context.Background()

	got, err := s.ReadAll(ctx, CollectionDeadlines)
	require.NoError(t, err)
	assert.Empty(t, got, "unwritten collection reads as empty")

	require.NoError(t, s.WriteAll(ctx, CollectionDeadlines, docs(`{"id":"a"}`, `{"id":"b"}`, `{"id":"c"}`)))
	got, err = s.ReadAll(ctx, CollectionDeadlines)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.JSONEq(t, `{"id":"a"}`, string(got[0]))
	assert.JSONEq(t, `{"id":"c"}`, string(got[2]))

	require.NoError(t, s.WriteAll(ctx, CollectionDeadlines, docs(`{"id":"z"}`)))
	got, err = s.ReadAll(ctx, CollectionDeadlines)
	require.NoError(t, err)
	require.Len(t, got, 1, "write replaces the whole collection")
	assert.JSONEq(t, `{"id":"z"}`, string(got[0]))

	notifs, err := s.ReadAll(ctx, CollectionNotifications)
	require.NoError(t, err)
	assert.Empty(t, notifs, "collections are independent")

	require.NoError(t, s.WriteAll(ctx, CollectionDeadlines, nil))
	got, err = s.ReadAll(ctx, CollectionDeadlines)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_Contract(t *testing.T) {
	exerciseStore(t, newMemoryStore(t))
}

func TestFileStore_Contract(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "deadlines.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteAll(ctx, CollectionDeadlines, docs(`{"id":"a"}`)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ReadAll(ctx, CollectionDeadlines)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSQLiteStore_CorruptRow(t *testing.T) {
	s := newMemoryStore(t)
	_, err := s.db.Exec(
		"INSERT INTO documents (collection, position, body) VALUES (?, ?, ?)",
		CollectionNotifications, 0, "{not json",
	)
	require.NoError(t, err)

	_, err = s.ReadAll(context.Background(), CollectionNotifications)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSQLiteStore_FailedWriteKeepsPreviousCollection(t *testing.T) {
	s := newMemoryStore(t)
	require.NoError(t, s.WriteAll(context.Background(), CollectionDeadlines, docs(`{"id":"a"}`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.WriteAll(ctx, CollectionDeadlines, docs(`{"id":"b"}`))
	require.Error(t, err)

	got, err := s.ReadAll(context.Background(), CollectionDeadlines)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"a"}`, string(got[0]))
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(CollectionNotifications), []byte("garbage"), 0o600))

	_, err = s.ReadAll(context.Background(), CollectionNotifications)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))

	require.NoError(t, s.WriteAll(context.Background(), CollectionNotifications, docs(`{"id":"n1"}`)))
	got, err := s.ReadAll(context.Background(), CollectionNotifications)
	require.NoError(t, err)
	assert.Len(t, got, 1, "a write overwrites a corrupt file")
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.WriteAll(context.Background(), CollectionDeadlines, docs(`{"id":"a"}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "deadlines.json", entries[0].Name())
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	s := NewRedisStore(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}, "test:")
	defer s.Close()

	_, err := s.ReadAll(context.Background(), CollectionDeadlines)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCorrupt))

	err = s.WriteAll(context.Background(), CollectionDeadlines, docs(`{"id":"a"}`))
	require.Error(t, err)
}

func TestDecodeArray_RejectsObject(t *testing.T) {
	_, err := decodeArray("x", []byte(`{"id":"a"}`))
	assert.ErrorIs(t, err, ErrCorrupt)
}
