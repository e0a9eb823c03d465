package pending

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPersister stores the slot as one row of the storage_slots table
// (see migrations/001_storage_slots.up.sql). Replicas sharing a database share
// the slot with last-write-wins semantics.
type PostgresPersister struct {
	db   *pgxpool.Pool
	slot string
}

// NewPostgresPersister returns a PostgresPersister for slot on db.
// An empty slot name selects DefaultSlot.
func NewPostgresPersister(db *pgxpool.Pool, slot string) *PostgresPersister {
	if slot == "" {
		slot = DefaultSlot
	}
	return &PostgresPersister{db: db, slot: slot}
}

// Load implements Persister.
func (p *PostgresPersister) Load(ctx context.Context) ([]Record, error) {
	var value []byte
	err := p.db.QueryRow(ctx,
		`SELECT value FROM storage_slots WHERE name = $1`, p.slot,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", p.slot, err)
	}
	return decodeSlot(value)
}

// SaveAll implements Persister.
func (p *PostgresPersister) SaveAll(ctx context.Context, records []Record) error {
	data, err := encodeSlot(records)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO storage_slots (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := p.db.Exec(ctx, query, p.slot, data); err != nil {
		return fmt.Errorf("write slot %s: %w", p.slot, err)
	}
	return nil
}
