package escrow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/logging"
	"github.com/seyi-adel/trustvault/internal/notify"
)

// SystemCaller marks engine-initiated completions (scheduled release,
// all-milestones-done). Caller authorization is skipped for it.
var SystemCaller = uuid.Nil

// CompleteEscrow credits the seller, settles the funding payment, and marks
// the escrow completed in one transaction. Re-invocation on an already
// completed escrow is a no-op, not an error: the scheduled job and the
// milestone path may race to call it.
func (s *Service) CompleteEscrow(ctx context.Context, escrowID, callerID uuid.UUID) (*domain.Escrow, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CompleteEscrow: begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("CompleteEscrow: %w", err)
	}

	if e.Status == domain.EscrowStatusCompleted {
		return e, nil
	}
	if callerID != SystemCaller && callerID != e.BuyerID {
		return nil, fmt.Errorf("CompleteEscrow: %w", domain.ErrForbidden)
	}
	if e.Status != domain.EscrowStatusFunded {
		return nil, fmt.Errorf("CompleteEscrow: status %s: %w", e.Status, domain.ErrInvalidState)
	}

	actor := systemActor("release")
	if callerID != SystemCaller {
		actor = userActor(callerID)
	}

	now := time.Now().UTC()
	if err := s.completeLocked(ctx, tx, e, actor, now); err != nil {
		return nil, fmt.Errorf("CompleteEscrow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CompleteEscrow: commit: %w", err)
	}

	e.Status = domain.EscrowStatusCompleted
	e.CompletedAt = &now

	log.Info("escrow completed", "escrow_id", e.ID, "seller_id", e.SellerID, "amount", e.TotalAmount)

	s.sink.Publish(ctx, notify.Event{
		Type:     domain.EscrowEventCompleted,
		EscrowID: e.ID,
		Actor:    actor,
	})

	return e, nil
}

// completeLocked performs the settlement half of completion. The caller
// holds the escrow row lock and has verified status == funded.
func (s *Service) completeLocked(ctx context.Context, tx *sql.Tx, e *domain.Escrow, actor string, now time.Time) error {
	fee := s.platformFee(e.TotalAmount)
	sellerAmount := e.TotalAmount - fee

	sellerWallet, err := s.wallets.GetByOwnerID(ctx, e.SellerID)
	if err != nil {
		return fmt.Errorf("completeLocked: %w", err)
	}

	if _, err := s.ledger.Credit(ctx, tx, sellerWallet.ID, sellerAmount, domain.TransactionTypeEscrowRelease, e.ID); err != nil {
		return fmt.Errorf("completeLocked: seller credit: %w", err)
	}

	if fee > 0 {
		if _, err := s.ledger.Credit(ctx, tx, s.cfg.TreasuryWalletID, fee, domain.TransactionTypePlatformFee, e.ID); err != nil {
			return fmt.Errorf("completeLocked: fee credit: %w", err)
		}
	}

	if e.FundingPaymentRef != nil {
		if err := s.payments.UpdateStatus(ctx, tx, *e.FundingPaymentRef, domain.PaymentStatusSettled, &now); err != nil {
			return fmt.Errorf("completeLocked: settle payment: %w", err)
		}
	}

	if err := s.escrows.SetCompleted(ctx, tx, e.ID, now); err != nil {
		return fmt.Errorf("completeLocked: %w", err)
	}

	if err := s.writeEvent(ctx, tx, e.ID, domain.EscrowEventCompleted, actor, now); err != nil {
		return fmt.Errorf("completeLocked: %w", err)
	}

	return nil
}

func (s *Service) platformFee(total int64) int64 {
	if s.cfg.FeeRate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(total).Mul(s.cfg.FeeRate).Floor().IntPart()
}

// ProcessScheduledReleases completes every funded escrow whose release date
// has elapsed. Each escrow runs in its own transaction; a failure is
// logged and skipped, never aborting sibling items.
func (s *Service) ProcessScheduledReleases(ctx context.Context) (processed, failed int, err error) {
	log := logging.FromContext(ctx)

	ids, err := s.escrows.ListDueForRelease(ctx, time.Now().UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("ProcessScheduledReleases: %w", err)
	}

	for _, id := range ids {
		if _, err := s.CompleteEscrow(ctx, id, SystemCaller); err != nil {
			log.Error("scheduled release failed", "escrow_id", id, "error", err)
			failed++
			continue
		}
		processed++
	}

	return processed, failed, nil
}
