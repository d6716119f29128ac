// Package escrow owns the escrow and milestone lifecycle. All fund movement
// goes through the ledger service; every state transition commits in a
// single transaction with the balance change it causes.
package escrow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/notify"
)

type escrowRepo interface {
	Create(ctx context.Context, tx *sql.Tx, escrow *domain.Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Escrow, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Escrow, error)
	ListDueForRelease(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	SetFunded(ctx context.Context, tx *sql.Tx, id uuid.UUID, paymentRef uuid.UUID) error
	SetStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.EscrowStatus) error
	SetCompleted(ctx context.Context, tx *sql.Tx, id uuid.UUID, completedAt time.Time) error
}

type milestoneRepo interface {
	Create(ctx context.Context, tx *sql.Tx, m *domain.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Milestone, error)
	ListByEscrow(ctx context.Context, escrowID uuid.UUID) ([]domain.Milestone, error)
	SetStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.MilestoneStatus, completedAt *time.Time) error
	CountPending(ctx context.Context, tx *sql.Tx, escrowID uuid.UUID) (int, error)
}

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, completedAt *time.Time) error
}

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type walletRepo interface {
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.EscrowEvent) error
}

type ledgerService interface {
	Debit(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount int64, txType domain.TransactionType, relatedID uuid.UUID) (*domain.Wallet, error)
	Credit(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount int64, txType domain.TransactionType, relatedID uuid.UUID) (*domain.Wallet, error)
}

// disputeOpener decouples the milestone-dispute path from the dispute
// package; the dispute service satisfies it.
type disputeOpener interface {
	CreateDispute(ctx context.Context, escrowID, createdByID uuid.UUID, reason string) (*domain.Dispute, error)
}

type Config struct {
	// FeeRate is the platform cut applied to the seller credit on
	// completion, e.g. 0.025 for 2.5%. Zero disables the fee.
	FeeRate decimal.Decimal
	// TreasuryWalletID receives the fee. Required when FeeRate > 0.
	TreasuryWalletID uuid.UUID
}

type Service struct {
	escrows    escrowRepo
	milestones milestoneRepo
	payments   paymentRepo
	users      userRepo
	wallets    walletRepo
	events     eventRepo
	ledger     ledgerService
	disputes   disputeOpener
	sink       notify.Sink
	db         *sql.DB
	cfg        Config
}

func NewService(
	escrows escrowRepo,
	milestones milestoneRepo,
	payments paymentRepo,
	users userRepo,
	wallets walletRepo,
	events eventRepo,
	ledger ledgerService,
	sink notify.Sink,
	db *sql.DB,
	cfg Config,
) *Service {
	return &Service{
		escrows:    escrows,
		milestones: milestones,
		payments:   payments,
		users:      users,
		wallets:    wallets,
		events:     events,
		ledger:     ledger,
		sink:       sink,
		db:         db,
		cfg:        cfg,
	}
}

// SetDisputeOpener wires the dispute service in after construction; the two
// services reference each other's concerns but only through this interface.
func (s *Service) SetDisputeOpener(d disputeOpener) {
	s.disputes = d
}

func (s *Service) GetEscrowByID(ctx context.Context, escrowID, callerID uuid.UUID) (*domain.Escrow, error) {
	e, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("GetEscrowByID: %w", err)
	}

	if !e.IsParticipant(callerID) {
		caller, err := s.users.GetByID(ctx, callerID)
		if err != nil || !caller.IsAdmin() {
			return nil, fmt.Errorf("GetEscrowByID: %w", domain.ErrNotFound)
		}
	}

	milestones, err := s.milestones.ListByEscrow(ctx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("GetEscrowByID: %w", err)
	}
	e.Milestones = milestones
	return e, nil
}

func (s *Service) GetEscrowsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Escrow, error) {
	escrows, err := s.escrows.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetEscrowsByUser: %w", err)
	}
	return escrows, nil
}

func (s *Service) writeEvent(ctx context.Context, tx *sql.Tx, escrowID uuid.UUID, eventType domain.EscrowEventType, actor string, now time.Time) error {
	event := &domain.EscrowEvent{
		ID:        uuid.New(),
		EscrowID:  escrowID,
		EventType: eventType,
		Actor:     actor,
		CreatedAt: now,
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}

func userActor(id uuid.UUID) string   { return fmt.Sprintf("user:%s", id) }
func systemActor(reason string) string { return fmt.Sprintf("system:%s", reason) }
