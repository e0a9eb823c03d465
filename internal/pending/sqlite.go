package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLitePersister stores the slot as one row of an embedded SQLite database.
type SQLitePersister struct {
	db   *sql.DB
	slot string
}

// NewSQLitePersister opens (or creates) the database at path and ensures the
// storage_slots table exists. An empty slot name selects DefaultSlot.
func NewSQLitePersister(path, slot string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer keeps SQLITE_BUSY out of the save path
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS storage_slots (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create storage_slots table: %w", err)
	}

	if slot == "" {
		slot = DefaultSlot
	}
	return &SQLitePersister{db: db, slot: slot}, nil
}

// Load implements Persister.
func (p *SQLitePersister) Load(ctx context.Context) ([]Record, error) {
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM storage_slots WHERE name = ?`, p.slot,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", p.slot, err)
	}
	return decodeSlot([]byte(value))
}

// SaveAll implements Persister.
func (p *SQLitePersister) SaveAll(ctx context.Context, records []Record) error {
	data, err := encodeSlot(records)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO storage_slots (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		p.slot, string(data), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("write slot %s: %w", p.slot, err)
	}
	return nil
}

// Close releases the database handle.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
