package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/seyi-adel/trustvault/internal/domain"
)

const transactionLogColumns = `id, type, direction, wallet_id, user_id, amount,
	balance_before, balance_after, related_entity_id, created_at`

// TransactionLogRepository only ever inserts; rows are never updated or
// deleted.
type TransactionLogRepository struct {
	db *sql.DB
}

func NewTransactionLogRepository(db *sql.DB) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

func (r *TransactionLogRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.TransactionLogEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transaction_logs (
			id, type, direction, wallet_id, user_id, amount,
			balance_before, balance_after, related_entity_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.Type, entry.Direction, entry.WalletID, entry.UserID,
		entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
		entry.RelatedEntityID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionLogRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.TransactionLogEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_logs WHERE wallet_id = $1`, walletID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByWallet: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionLogColumns+` FROM transaction_logs
		WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByWallet: %w", err)
	}
	defer rows.Close()

	var entries []domain.TransactionLogEntry
	for rows.Next() {
		e, err := scanTransactionLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByWallet: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByWallet: rows: %w", err)
	}
	return entries, total, nil
}

func (r *TransactionLogRepository) ListByRelatedEntity(ctx context.Context, relatedID uuid.UUID) ([]domain.TransactionLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionLogColumns+` FROM transaction_logs
		WHERE related_entity_id = $1 ORDER BY created_at`, relatedID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByRelatedEntity: %w", err)
	}
	defer rows.Close()

	var entries []domain.TransactionLogEntry
	for rows.Next() {
		e, err := scanTransactionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByRelatedEntity: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByRelatedEntity: rows: %w", err)
	}
	return entries, nil
}

func scanTransactionLog(s scanner) (*domain.TransactionLogEntry, error) {
	var e domain.TransactionLogEntry
	err := s.Scan(
		&e.ID, &e.Type, &e.Direction, &e.WalletID, &e.UserID, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &e.RelatedEntityID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
