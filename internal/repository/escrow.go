package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/seyi-adel/trustvault/internal/domain"
)

const escrowColumns = `id, buyer_id, seller_id, title, total_amount, status,
	expires_at, schedule_release_at, funding_payment_ref,
	created_at, updated_at, completed_at`

type EscrowRepository struct {
	db *sql.DB
}

func NewEscrowRepository(db *sql.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) Create(ctx context.Context, tx *sql.Tx, escrow *domain.Escrow) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO escrows (
			id, buyer_id, seller_id, title, total_amount, status,
			expires_at, schedule_release_at, funding_payment_ref,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		escrow.ID, escrow.BuyerID, escrow.SellerID, escrow.Title,
		escrow.TotalAmount, escrow.Status,
		escrow.ExpiresAt, escrow.ScheduleReleaseAt, escrow.FundingPaymentRef,
		escrow.CreatedAt, escrow.UpdatedAt, escrow.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id,
	)
	e, err := scanEscrow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return e, nil
}

// GetForUpdate serializes concurrent transitions on the same escrow. Every
// status check-and-set in the engine goes through this lock.
func (r *EscrowRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Escrow, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id,
	)
	e, err := scanEscrow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return e, nil
}

func (r *EscrowRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Escrow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+escrowColumns+` FROM escrows
		WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var escrows []domain.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: scan: %w", err)
		}
		escrows = append(escrows, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: rows: %w", err)
	}
	return escrows, nil
}

// ListDueForRelease returns ids only; the sweep re-reads each escrow under
// lock inside its own transaction.
func (r *EscrowRepository) ListDueForRelease(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM escrows
		WHERE status = $1 AND schedule_release_at IS NOT NULL AND schedule_release_at <= $2
		ORDER BY schedule_release_at`,
		domain.EscrowStatusFunded, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ListDueForRelease: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListDueForRelease: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDueForRelease: rows: %w", err)
	}
	return ids, nil
}

func (r *EscrowRepository) SetFunded(ctx context.Context, tx *sql.Tx, id uuid.UUID, paymentRef uuid.UUID) error {
	return r.exec(ctx, tx, "SetFunded",
		`UPDATE escrows SET status = $1, funding_payment_ref = $2, updated_at = now()
		WHERE id = $3`,
		domain.EscrowStatusFunded, paymentRef, id,
	)
}

func (r *EscrowRepository) SetStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.EscrowStatus) error {
	return r.exec(ctx, tx, "SetStatus",
		`UPDATE escrows SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
}

func (r *EscrowRepository) SetCompleted(ctx context.Context, tx *sql.Tx, id uuid.UUID, completedAt time.Time) error {
	return r.exec(ctx, tx, "SetCompleted",
		`UPDATE escrows SET status = $1, completed_at = $2, updated_at = now()
		WHERE id = $3`,
		domain.EscrowStatusCompleted, completedAt, id,
	)
}

func (r *EscrowRepository) exec(ctx context.Context, tx *sql.Tx, op, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanEscrow(s scanner) (*domain.Escrow, error) {
	var e domain.Escrow
	var scheduleReleaseAt sql.NullTime
	var fundingPaymentRef uuid.NullUUID
	var completedAt sql.NullTime

	err := s.Scan(
		&e.ID, &e.BuyerID, &e.SellerID, &e.Title, &e.TotalAmount, &e.Status,
		&e.ExpiresAt, &scheduleReleaseAt, &fundingPaymentRef,
		&e.CreatedAt, &e.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if scheduleReleaseAt.Valid {
		e.ScheduleReleaseAt = &scheduleReleaseAt.Time
	}
	if fundingPaymentRef.Valid {
		e.FundingPaymentRef = &fundingPaymentRef.UUID
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}

	return &e, nil
}
