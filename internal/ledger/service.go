// Package ledger is the single choke-point for wallet balance mutation.
// Every balance change is paired with an append-only transaction log row in
// the same database transaction, and executes under a row lock on the
// wallet plus an optimistic version check.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/domain"
)

type walletRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error
}

type logRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.TransactionLogEntry) error
}

type Service struct {
	wallets walletRepo
	logs    logRepo
	db      *sql.DB
}

func NewService(wallets walletRepo, logs logRepo, db *sql.DB) *Service {
	return &Service{wallets: wallets, logs: logs, db: db}
}

// Debit runs inside the caller's transaction so escrow status transitions
// and the balance move commit or roll back together. Fails with
// ErrInsufficientFunds without touching the row when the balance is short.
func (s *Service) Debit(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount int64, txType domain.TransactionType, relatedID uuid.UUID) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("Debit: %w", domain.ErrInvalidAmount)
	}

	w, err := s.wallets.GetForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, fmt.Errorf("Debit: %w", err)
	}

	if w.Balance < amount {
		return nil, fmt.Errorf("Debit: %w", domain.ErrInsufficientFunds)
	}

	return s.apply(ctx, tx, w, domain.DirectionDebit, amount, txType, relatedID)
}

// Credit has no upper bound check; amounts originate from escrow totals
// that were validated when the escrow was funded.
func (s *Service) Credit(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount int64, txType domain.TransactionType, relatedID uuid.UUID) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("Credit: %w", domain.ErrInvalidAmount)
	}

	w, err := s.wallets.GetForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, fmt.Errorf("Credit: %w", err)
	}

	return s.apply(ctx, tx, w, domain.DirectionCredit, amount, txType, relatedID)
}

// Transfer is the standalone composed debit+credit. It owns its transaction
// and locks both wallets in deterministic id order to avoid deadlocks;
// either both legs commit or neither is observed.
func (s *Service) Transfer(ctx context.Context, fromWalletID, toWalletID uuid.UUID, amount int64, txType domain.TransactionType, relatedID uuid.UUID) error {
	if amount <= 0 {
		return fmt.Errorf("Transfer: %w", domain.ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Transfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockWalletsInOrder(ctx, tx, s.wallets, fromWalletID, toWalletID)
	if err != nil {
		return fmt.Errorf("Transfer: %w", err)
	}

	from, to := locked[fromWalletID], locked[toWalletID]

	if from.Balance < amount {
		return fmt.Errorf("Transfer: %w", domain.ErrInsufficientFunds)
	}

	if _, err := s.apply(ctx, tx, from, domain.DirectionDebit, amount, txType, relatedID); err != nil {
		return fmt.Errorf("Transfer: debit: %w", err)
	}
	if _, err := s.apply(ctx, tx, to, domain.DirectionCredit, amount, txType, relatedID); err != nil {
		return fmt.Errorf("Transfer: credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Transfer: commit: %w", err)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, tx *sql.Tx, w *domain.Wallet, direction domain.EntryDirection, amount int64, txType domain.TransactionType, relatedID uuid.UUID) (*domain.Wallet, error) {
	newBalance := w.Balance + amount
	if direction == domain.DirectionDebit {
		newBalance = w.Balance - amount
	}

	entry := &domain.TransactionLogEntry{
		ID:              uuid.New(),
		Type:            txType,
		Direction:       direction,
		WalletID:        w.ID,
		UserID:          w.OwnerID,
		Amount:          amount,
		BalanceBefore:   w.Balance,
		BalanceAfter:    newBalance,
		RelatedEntityID: relatedID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.logs.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("apply: log: %w", err)
	}

	if err := s.wallets.UpdateBalance(ctx, tx, w.ID, newBalance, w.Version+1); err != nil {
		return nil, fmt.Errorf("apply: update balance: %w", err)
	}

	updated := *w
	updated.Balance = newBalance
	updated.Version = w.Version + 1
	return &updated, nil
}

func lockWalletsInOrder(ctx context.Context, tx *sql.Tx, wallets walletRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Wallet, len(ids))
	for _, id := range sorted {
		w, err := wallets.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockWalletsInOrder: %w", err)
		}
		result[id] = w
	}
	return result, nil
}
