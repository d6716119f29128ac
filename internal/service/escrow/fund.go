package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/logging"
	"github.com/seyi-adel/trustvault/internal/notify"
)

// FundEscrow debits the buyer's wallet, records the funding payment, and
// flips the escrow to funded — all in one transaction. The status check
// happens under the escrow row lock, so two concurrent funding attempts
// yield exactly one success and one ErrInvalidState.
func (s *Service) FundEscrow(ctx context.Context, escrowID, callerID uuid.UUID) (*domain.Escrow, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("FundEscrow: begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("FundEscrow: %w", err)
	}

	if callerID != e.BuyerID {
		return nil, fmt.Errorf("FundEscrow: %w", domain.ErrForbidden)
	}
	if e.Status != domain.EscrowStatusPending {
		return nil, fmt.Errorf("FundEscrow: status %s: %w", e.Status, domain.ErrInvalidState)
	}

	buyerWallet, err := s.wallets.GetByOwnerID(ctx, e.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("FundEscrow: %w", err)
	}

	if _, err := s.ledger.Debit(ctx, tx, buyerWallet.ID, e.TotalAmount, domain.TransactionTypeEscrowFunding, e.ID); err != nil {
		return nil, fmt.Errorf("FundEscrow: %w", err)
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:        uuid.New(),
		EscrowID:  e.ID,
		PayerID:   e.BuyerID,
		Amount:    e.TotalAmount,
		Status:    domain.PaymentStatusHeld,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("FundEscrow: create payment: %w", err)
	}

	if err := s.escrows.SetFunded(ctx, tx, e.ID, p.ID); err != nil {
		return nil, fmt.Errorf("FundEscrow: %w", err)
	}

	if err := s.writeEvent(ctx, tx, e.ID, domain.EscrowEventFunded, userActor(callerID), now); err != nil {
		return nil, fmt.Errorf("FundEscrow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("FundEscrow: commit: %w", err)
	}

	e.Status = domain.EscrowStatusFunded
	e.FundingPaymentRef = &p.ID

	log.Info("escrow funded",
		"escrow_id", e.ID,
		"buyer_id", e.BuyerID,
		"amount", e.TotalAmount,
		"payment_id", p.ID,
	)

	s.sink.Publish(ctx, notify.Event{
		Type:     domain.EscrowEventFunded,
		EscrowID: e.ID,
		Actor:    userActor(callerID),
	})

	return e, nil
}
