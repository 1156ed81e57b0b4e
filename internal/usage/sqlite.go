package usage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists usage counters in a local SQLite database so they
// survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the counter database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening usage database: %w", err)
	}

	// WAL allows concurrent readers while a writer is active;
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating usage schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM usage_counters WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) IncrementBy(ctx context.Context, key string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = value + excluded.value`,
		key, delta)
	if err != nil {
		return fmt.Errorf("incrementing counter %s: %w", key, err)
	}
	return nil
}

// IncrementIfBelow runs the read-check-write inside an immediate transaction
// so two concurrent requests cannot both pass the limit.
func (s *SQLiteStore) IncrementIfBelow(ctx context.Context, key string, limit int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting counter transaction: %w", err)
	}
	defer tx.Rollback()

	// Take the write lock up front; the subsequent SELECT must not see a
	// value another writer is about to change.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO usage_counters (key, value) VALUES (?, 0)
		ON CONFLICT(key) DO NOTHING`, key); err != nil {
		return false, fmt.Errorf("seeding counter %s: %w", key, err)
	}

	var value int64
	if err := tx.QueryRowContext(ctx,
		"SELECT value FROM usage_counters WHERE key = ?", key).Scan(&value); err != nil {
		return false, fmt.Errorf("reading counter %s: %w", key, err)
	}
	if value >= limit {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE usage_counters SET value = value + 1 WHERE key = ?", key); err != nil {
		return false, fmt.Errorf("incrementing counter %s: %w", key, err)
	}
	return true, tx.Commit()
}
