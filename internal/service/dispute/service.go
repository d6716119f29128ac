// Package dispute owns the dispute lifecycle for contested escrows. A
// terminal resolution settles the custodied funds through the ledger and
// completes the parent escrow in the same transaction.
package dispute

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/notify"
)

type disputeRepo interface {
	Create(ctx context.Context, tx *sql.Tx, d *domain.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Dispute, error)
	ListExpiredEvidence(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	SetStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.DisputeStatus) error
	SetProposal(ctx context.Context, tx *sql.Tx, id uuid.UUID, resolution domain.DisputeResolution, buyerAmount, sellerAmount int64, proposedByID uuid.UUID) error
	SetResolved(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.DisputeStatus, resolution domain.DisputeResolution, buyerAmount, sellerAmount int64, resolvedByID uuid.UUID, resolvedAt time.Time) error
}

type escrowRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Escrow, error)
	SetStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.EscrowStatus) error
	SetCompleted(ctx context.Context, tx *sql.Tx, id uuid.UUID, completedAt time.Time) error
}

type evidenceRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.Evidence) error
	ListByDispute(ctx context.Context, disputeID uuid.UUID) ([]domain.Evidence, error)
}

type messageRepo interface {
	Create(ctx context.Context, tx *sql.Tx, m *domain.DisputeMessage) error
	ListByDispute(ctx context.Context, disputeID uuid.UUID) ([]domain.DisputeMessage, error)
}

type paymentRepo interface {
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, completedAt *time.Time) error
}

type walletRepo interface {
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
}

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.EscrowEvent) error
}

type ledgerService interface {
	Credit(ctx context.Context, tx *sql.Tx, walletID uuid.UUID, amount int64, txType domain.TransactionType, relatedID uuid.UUID) (*domain.Wallet, error)
}

type Config struct {
	// EvidenceWindow is how long after dispute creation evidence is
	// accepted. Defaults to five days.
	EvidenceWindow time.Duration
}

const DefaultEvidenceWindow = 5 * 24 * time.Hour

type Service struct {
	disputes disputeRepo
	escrows  escrowRepo
	evidence evidenceRepo
	messages messageRepo
	payments paymentRepo
	wallets  walletRepo
	users    userRepo
	events   eventRepo
	ledger   ledgerService
	sink     notify.Sink
	db       *sql.DB
	cfg      Config
}

func NewService(
	disputes disputeRepo,
	escrows escrowRepo,
	evidence evidenceRepo,
	messages messageRepo,
	payments paymentRepo,
	wallets walletRepo,
	users userRepo,
	events eventRepo,
	ledger ledgerService,
	sink notify.Sink,
	db *sql.DB,
	cfg Config,
) *Service {
	if cfg.EvidenceWindow <= 0 {
		cfg.EvidenceWindow = DefaultEvidenceWindow
	}
	return &Service{
		disputes: disputes,
		escrows:  escrows,
		evidence: evidence,
		messages: messages,
		payments: payments,
		wallets:  wallets,
		users:    users,
		events:   events,
		ledger:   ledger,
		sink:     sink,
		db:       db,
		cfg:      cfg,
	}
}

type Details struct {
	Dispute  *domain.Dispute
	Evidence []domain.Evidence
	Messages []domain.DisputeMessage
}

func (s *Service) GetDisputeDetails(ctx context.Context, disputeID, callerID uuid.UUID) (*Details, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("GetDisputeDetails: %w", err)
	}

	if err := s.requireParticipantOrAdmin(ctx, d.EscrowID, callerID); err != nil {
		return nil, fmt.Errorf("GetDisputeDetails: %w", domain.ErrNotFound)
	}

	evidence, err := s.evidence.ListByDispute(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("GetDisputeDetails: %w", err)
	}
	messages, err := s.messages.ListByDispute(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("GetDisputeDetails: %w", err)
	}

	return &Details{Dispute: d, Evidence: evidence, Messages: messages}, nil
}

func (s *Service) GetDisputesForUser(ctx context.Context, userID uuid.UUID) ([]domain.Dispute, error) {
	disputes, err := s.disputes.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetDisputesForUser: %w", err)
	}
	return disputes, nil
}

// requireParticipantOrAdmin authorizes callerID against the escrow's
// parties, falling back to an admin role check.
func (s *Service) requireParticipantOrAdmin(ctx context.Context, escrowID, callerID uuid.UUID) error {
	e, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if e.IsParticipant(callerID) {
		return nil
	}
	caller, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		return domain.ErrForbidden
	}
	if !caller.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

func (s *Service) writeSystemMessage(ctx context.Context, tx *sql.Tx, disputeID uuid.UUID, body string, now time.Time) error {
	m := &domain.DisputeMessage{
		ID:        uuid.New(),
		DisputeID: disputeID,
		SenderID:  domain.SystemSenderID,
		Body:      body,
		CreatedAt: now,
	}
	if err := s.messages.Create(ctx, tx, m); err != nil {
		return fmt.Errorf("writeSystemMessage: %w", err)
	}
	return nil
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

func userActor(id uuid.UUID) string { return fmt.Sprintf("user:%s", id) }
