// ABOUTME: SQLite backend using modernc.org/sqlite
// ABOUTME: Records live in table thread_records of <working_dir>/threads.db

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteFile = "threads.db"

// SQLiteBackend implements Backend using SQLite
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteBackend opens <workingDir>/threads.db, creating it and its schema if needed.
func NewSQLiteBackend(workingDir string, logger *slog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = slog.Default().With("component", "store")
	}
	if workingDir == "" {
		return nil, errors.New("working directory is required")
	}

	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	path := filepath.Join(workingDir, sqliteFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	b := &SQLiteBackend{
		db:     db,
		logger: logger,
	}

	if err := b.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return b, nil
}

func (b *SQLiteBackend) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS thread_records (
			id TEXT PRIMARY KEY,
			document BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) ([]byte, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	var data []byte
	err := b.db.QueryRowContext(ctx,
		"SELECT document FROM thread_records WHERE id = ?", id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}
	return data, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO thread_records (id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`, id, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, nil
	}

	result, err := b.db.ExecContext(ctx, "DELETE FROM thread_records WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking deleted rows: %w", err)
	}
	return n > 0, nil
}

func (b *SQLiteBackend) IDs(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT id FROM thread_records")
	if err != nil {
		return nil, fmt.Errorf("querying record ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record ids: %w", err)
	}
	return ids, nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
