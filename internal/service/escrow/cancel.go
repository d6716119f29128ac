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

// CancelEscrow is callable by either party while the escrow is pending or
// funded. Cancelling a funded escrow refunds the buyer in the same
// transaction that flips the status; cancelling a pending one moves no
// funds.
func (s *Service) CancelEscrow(ctx context.Context, escrowID, callerID uuid.UUID) (*domain.Escrow, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CancelEscrow: begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("CancelEscrow: %w", err)
	}

	if !e.IsParticipant(callerID) {
		return nil, fmt.Errorf("CancelEscrow: %w", domain.ErrForbidden)
	}
	if e.Status != domain.EscrowStatusPending && e.Status != domain.EscrowStatusFunded {
		return nil, fmt.Errorf("CancelEscrow: status %s: %w", e.Status, domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	refunded := false

	if e.Status == domain.EscrowStatusFunded {
		buyerWallet, err := s.wallets.GetByOwnerID(ctx, e.BuyerID)
		if err != nil {
			return nil, fmt.Errorf("CancelEscrow: %w", err)
		}
		if _, err := s.ledger.Credit(ctx, tx, buyerWallet.ID, e.TotalAmount, domain.TransactionTypeEscrowRefund, e.ID); err != nil {
			return nil, fmt.Errorf("CancelEscrow: refund: %w", err)
		}
		if e.FundingPaymentRef != nil {
			if err := s.payments.UpdateStatus(ctx, tx, *e.FundingPaymentRef, domain.PaymentStatusRefunded, &now); err != nil {
				return nil, fmt.Errorf("CancelEscrow: refund payment: %w", err)
			}
		}
		refunded = true
	}

	if err := s.escrows.SetStatus(ctx, tx, e.ID, domain.EscrowStatusCancelled); err != nil {
		return nil, fmt.Errorf("CancelEscrow: %w", err)
	}

	if err := s.writeEvent(ctx, tx, e.ID, domain.EscrowEventCancelled, userActor(callerID), now); err != nil {
		return nil, fmt.Errorf("CancelEscrow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CancelEscrow: commit: %w", err)
	}

	e.Status = domain.EscrowStatusCancelled

	log.Info("escrow cancelled",
		"escrow_id", e.ID,
		"caller_id", callerID,
		"refunded", refunded,
		"amount", e.TotalAmount,
	)

	s.sink.Publish(ctx, notify.Event{
		Type:     domain.EscrowEventCancelled,
		EscrowID: e.ID,
		Actor:    userActor(callerID),
	})

	return e, nil
}
