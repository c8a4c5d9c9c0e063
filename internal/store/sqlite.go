package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements DocumentStore on a local SQLite database. Each
// document is one row keyed by (collection, position).
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps writers serialized and lets an in-memory
	// database survive across calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ReadAll returns the documents stored for collection ordered by position.
func (s *SQLiteStore) ReadAll(
	ctx context.Context,
	collection string,
) ([]json.RawMessage, error) {
	var bodies []string
	err := s.db.SelectContext(ctx, &bodies,
		"SELECT body FROM documents WHERE collection = ? ORDER BY position",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	docs := make([]json.RawMessage, 0, len(bodies))
	for i, body := range bodies {
		if !json.Valid([]byte(body)) {
			return nil, &corruptError{
				collection: collection,
				err:        fmt.Errorf("document %d is not valid JSON", i),
			}
		}
		docs = append(docs, json.RawMessage(body))
	}

	return docs, nil
}

// WriteAll replaces every document in collection inside one transaction.
func (s *SQLiteStore) WriteAll(
	ctx context.Context,
	collection string,
	docs []json.RawMessage,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ?", collection,
	); err != nil {
		return fmt.Errorf("clearing collection %s: %w", collection, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO documents (collection, position, body, updated_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, doc := range docs {
		if _, err := stmt.ExecContext(ctx, collection, i, string(doc), now); err != nil {
			return fmt.Errorf("writing %s document %d: %w", collection, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing collection %s: %w", collection, err)
	}
	return nil
}
