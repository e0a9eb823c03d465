package webhooks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores webhook delivery attempts in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RecordDelivery inserts one delivery attempt.
func (r *Repository) RecordDelivery(ctx context.Context, d *Delivery) error {
	query := `INSERT INTO webhook_deliveries
	          (id, subscription_id, event_id, event_type, status_code, attempt, success, error_message, delivered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.Exec(ctx, query,
		d.ID, d.SubscriptionID, d.EventID, d.EventType,
		d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	); err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// Recent returns the latest delivery attempts, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*Delivery, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, subscription_id, event_id, event_type, status_code, attempt, success, error_message, delivered_at
		 FROM webhook_deliveries ORDER BY delivered_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query webhook deliveries: %w", err)
	}
	defer rows.Close()

	out := []*Delivery{}
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventID, &d.EventType,
			&d.StatusCode, &d.Attempt, &d.Success, &d.ErrorMessage, &d.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
