package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openvern/netplane/internal/migrations"
	_ "modernc.org/sqlite"
)

// sqliteStore keeps every hash field as a row of a single hashes table.
// It exists for single-host deployments that have no Redis; the
// semantics match the Redis driver exactly.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) an embedded store at path
// and runs migrations.
func NewSQLiteStore(path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create datastore directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}

	// WAL keeps readers unblocked while allocators write.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	migrator := migrations.NewMigrator(db)
	for _, m := range migrations.All() {
		migrator.Add(m)
	}
	if err := migrator.Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) HSet(ctx context.Context, table, key, field, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hashes (tbl, k, field, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(tbl, k, field) DO UPDATE SET value = excluded.value`,
		table, key, field, value)
	if err != nil {
		return fmt.Errorf("hset: %w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) HGet(ctx context.Context, table, key, field string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM hashes WHERE tbl = ? AND k = ? AND field = ?",
		table, key, field).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget: %w: %v", ErrStoreUnavailable, err)
	}
	return value, true, nil
}

func (s *sqliteStore) HGetAll(ctx context.Context, table, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT field, value FROM hashes WHERE tbl = ? AND k = ?", table, key)
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("hgetall: %w: %v", ErrStoreUnavailable, err)
		}
		fields[field] = value
	}
	return fields, rows.Err()
}

func (s *sqliteStore) HDel(ctx context.Context, table, key, field string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM hashes WHERE tbl = ? AND k = ? AND field = ?", table, key, field)
	if err != nil {
		return fmt.Errorf("hdel: %w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) HKeys(ctx context.Context, table, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT field FROM hashes WHERE tbl = ? AND k = ? ORDER BY field", table, key)
	if err != nil {
		return nil, fmt.Errorf("hkeys: %w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, fmt.Errorf("hkeys: %w: %v", ErrStoreUnavailable, err)
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
