package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/seyi-adel/trustvault/internal/domain"
)

const escrowEventColumns = `id, escrow_id, event_type, actor, created_at`

type EscrowEventRepository struct {
	db *sql.DB
}

func NewEscrowEventRepository(db *sql.DB) *EscrowEventRepository {
	return &EscrowEventRepository{db: db}
}

func (r *EscrowEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.EscrowEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO escrow_events (id, escrow_id, event_type, actor, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.EscrowID, event.EventType, event.Actor, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *EscrowEventRepository) ListByEscrow(ctx context.Context, escrowID uuid.UUID) ([]domain.EscrowEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+escrowEventColumns+` FROM escrow_events
		WHERE escrow_id = $1 ORDER BY created_at`, escrowID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByEscrow: %w", err)
	}
	defer rows.Close()

	var events []domain.EscrowEvent
	for rows.Next() {
		var e domain.EscrowEvent
		if err := rows.Scan(&e.ID, &e.EscrowID, &e.EventType, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByEscrow: scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByEscrow: rows: %w", err)
	}
	return events, nil
}
