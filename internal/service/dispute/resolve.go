package dispute

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/logging"
	"github.com/seyi-adel/trustvault/internal/notify"
)

// splitAmounts normalizes a resolution into the buyer/seller pair and
// validates it against the escrow total.
func splitAmounts(resolution domain.DisputeResolution, buyerAmount, sellerAmount *int64, total int64) (int64, int64, error) {
	switch resolution {
	case domain.ResolutionReleaseToSeller:
		return 0, total, nil
	case domain.ResolutionRefundToBuyer:
		return total, 0, nil
	case domain.ResolutionSplit:
		if buyerAmount == nil || sellerAmount == nil {
			return 0, 0, fmt.Errorf("split requires both amounts: %w", domain.ErrValidation)
		}
		if *buyerAmount < 0 || *sellerAmount < 0 {
			return 0, 0, fmt.Errorf("split amounts must not be negative: %w", domain.ErrValidation)
		}
		if *buyerAmount+*sellerAmount != total {
			return 0, 0, domain.ErrSplitSum
		}
		return *buyerAmount, *sellerAmount, nil
	default:
		return 0, 0, fmt.Errorf("resolution %s: %w", resolution, domain.ErrValidation)
	}
}

// ProposeResolution records a proposal on the dispute. No funds move until
// the counterparty accepts.
func (s *Service) ProposeResolution(ctx context.Context, disputeID, proposedByID uuid.UUID, resolution domain.DisputeResolution, buyerAmount, sellerAmount *int64) (*domain.Dispute, error) {
	log := logging.FromContext(ctx)

	if !resolution.IsValid() {
		return nil, fmt.Errorf("ProposeResolution: resolution %s: %w", resolution, domain.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ProposeResolution: begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("ProposeResolution: %w", err)
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("ProposeResolution: %w", domain.ErrAlreadyResolved)
	}

	e, err := s.escrows.GetByID(ctx, d.EscrowID)
	if err != nil {
		return nil, fmt.Errorf("ProposeResolution: %w", err)
	}
	if !e.IsParticipant(proposedByID) {
		return nil, fmt.Errorf("ProposeResolution: %w", domain.ErrForbidden)
	}

	buyerAmt, sellerAmt, err := splitAmounts(resolution, buyerAmount, sellerAmount, e.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("ProposeResolution: %w", err)
	}

	now := time.Now().UTC()
	if err := s.disputes.SetProposal(ctx, tx, d.ID, resolution, buyerAmt, sellerAmt, proposedByID); err != nil {
		return nil, fmt.Errorf("ProposeResolution: %w", err)
	}

	body := fmt.Sprintf("Resolution proposed: %s (buyer %d, seller %d).", resolution, buyerAmt, sellerAmt)
	if err := s.writeSystemMessage(ctx, tx, d.ID, body, now); err != nil {
		return nil, fmt.Errorf("ProposeResolution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ProposeResolution: commit: %w", err)
	}

	d.ProposedResolution = &resolution
	d.ProposedBuyerAmount = &buyerAmt
	d.ProposedSellerAmount = &sellerAmt
	d.ProposedByID = &proposedByID

	log.Info("resolution proposed",
		"dispute_id", d.ID,
		"proposed_by", proposedByID,
		"resolution", resolution,
		"buyer_amount", buyerAmt,
		"seller_amount", sellerAmt,
	)

	return d, nil
}

// AcceptResolution lets the counterparty to the proposer accept the
// recorded proposal, settling funds and completing the escrow atomically.
func (s *Service) AcceptResolution(ctx context.Context, disputeID, acceptedByID uuid.UUID) (*domain.Dispute, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("AcceptResolution: begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("AcceptResolution: %w", err)
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("AcceptResolution: %w", domain.ErrAlreadyResolved)
	}
	if d.ProposedResolution == nil || d.ProposedByID == nil {
		return nil, fmt.Errorf("AcceptResolution: %w", domain.ErrNoProposal)
	}
	if acceptedByID == *d.ProposedByID {
		return nil, fmt.Errorf("AcceptResolution: proposer cannot accept: %w", domain.ErrForbidden)
	}

	e, err := s.escrows.GetForUpdate(ctx, tx, d.EscrowID)
	if err != nil {
		return nil, fmt.Errorf("AcceptResolution: %w", err)
	}
	if !e.IsParticipant(acceptedByID) {
		return nil, fmt.Errorf("AcceptResolution: %w", domain.ErrForbidden)
	}

	buyerAmt := *d.ProposedBuyerAmount
	sellerAmt := *d.ProposedSellerAmount
	now := time.Now().UTC()

	if err := s.settleLocked(ctx, tx, e, d, *d.ProposedResolution, buyerAmt, sellerAmt,
		domain.DisputeStatusMutuallyResolved, acceptedByID, now); err != nil {
		return nil, fmt.Errorf("AcceptResolution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("AcceptResolution: commit: %w", err)
	}

	d.Status = domain.DisputeStatusMutuallyResolved
	d.Resolution = d.ProposedResolution
	d.BuyerAmount = &buyerAmt
	d.SellerAmount = &sellerAmt
	d.ResolvedByID = &acceptedByID
	d.ResolvedAt = &now

	log.Info("dispute mutually resolved",
		"dispute_id", d.ID,
		"escrow_id", e.ID,
		"buyer_amount", buyerAmt,
		"seller_amount", sellerAmt,
	)

	s.sink.Publish(ctx, notify.Event{
		Type:      domain.EscrowEventDisputeResolved,
		EscrowID:  e.ID,
		DisputeID: d.ID,
		Actor:     userActor(acceptedByID),
	})

	return d, nil
}

// ResolveByAdmin bypasses mutual agreement. The reviewer must hold the
// admin role; the settlement and sum validation match acceptance.
func (s *Service) ResolveByAdmin(ctx context.Context, disputeID, reviewedByID uuid.UUID, resolution domain.DisputeResolution, buyerAmount, sellerAmount *int64, notes string) (*domain.Dispute, error) {
	log := logging.FromContext(ctx)

	reviewer, err := s.users.GetByID(ctx, reviewedByID)
	if err != nil {
		return nil, fmt.Errorf("ResolveByAdmin: %w", err)
	}
	if !reviewer.IsAdmin() {
		return nil, fmt.Errorf("ResolveByAdmin: %w", domain.ErrForbidden)
	}
	if !resolution.IsValid() {
		return nil, fmt.Errorf("ResolveByAdmin: resolution %s: %w", resolution, domain.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ResolveByAdmin: begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("ResolveByAdmin: %w", err)
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("ResolveByAdmin: %w", domain.ErrAlreadyResolved)
	}

	e, err := s.escrows.GetForUpdate(ctx, tx, d.EscrowID)
	if err != nil {
		return nil, fmt.Errorf("ResolveByAdmin: %w", err)
	}

	buyerAmt, sellerAmt, err := splitAmounts(resolution, buyerAmount, sellerAmount, e.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("ResolveByAdmin: %w", err)
	}

	now := time.Now().UTC()
	if notes != "" {
		if err := s.writeSystemMessage(ctx, tx, d.ID, fmt.Sprintf("Admin resolution notes: %s", notes), now); err != nil {
			return nil, fmt.Errorf("ResolveByAdmin: %w", err)
		}
	}

	if err := s.settleLocked(ctx, tx, e, d, resolution, buyerAmt, sellerAmt,
		domain.DisputeStatusResolvedByAdmin, reviewedByID, now); err != nil {
		return nil, fmt.Errorf("ResolveByAdmin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ResolveByAdmin: commit: %w", err)
	}

	d.Status = domain.DisputeStatusResolvedByAdmin
	d.Resolution = &resolution
	d.BuyerAmount = &buyerAmt
	d.SellerAmount = &sellerAmt
	d.ResolvedByID = &reviewedByID
	d.ResolvedAt = &now

	log.Info("dispute resolved by admin",
		"dispute_id", d.ID,
		"escrow_id", e.ID,
		"resolution", resolution,
		"buyer_amount", buyerAmt,
		"seller_amount", sellerAmt,
		"reviewed_by", reviewedByID,
	)

	s.sink.Publish(ctx, notify.Event{
		Type:      domain.EscrowEventDisputeResolved,
		EscrowID:  e.ID,
		DisputeID: d.ID,
		Actor:     userActor(reviewedByID),
	})

	return d, nil
}

// settleLocked distributes the custodied amount per the agreed split and
// completes the parent escrow. Caller holds both the dispute and escrow
// row locks. Funds only move when the escrow was actually funded.
func (s *Service) settleLocked(ctx context.Context, tx *sql.Tx, e *domain.Escrow, d *domain.Dispute, resolution domain.DisputeResolution, buyerAmt, sellerAmt int64, status domain.DisputeStatus, resolvedByID uuid.UUID, now time.Time) error {
	if e.FundingPaymentRef != nil {
		if buyerAmt > 0 {
			buyerWallet, err := s.wallets.GetByOwnerID(ctx, e.BuyerID)
			if err != nil {
				return fmt.Errorf("settleLocked: %w", err)
			}
			if _, err := s.ledger.Credit(ctx, tx, buyerWallet.ID, buyerAmt, domain.TransactionTypeDisputePayout, d.ID); err != nil {
				return fmt.Errorf("settleLocked: buyer credit: %w", err)
			}
		}
		if sellerAmt > 0 {
			sellerWallet, err := s.wallets.GetByOwnerID(ctx, e.SellerID)
			if err != nil {
				return fmt.Errorf("settleLocked: %w", err)
			}
			if _, err := s.ledger.Credit(ctx, tx, sellerWallet.ID, sellerAmt, domain.TransactionTypeDisputePayout, d.ID); err != nil {
				return fmt.Errorf("settleLocked: seller credit: %w", err)
			}
		}
		if err := s.payments.UpdateStatus(ctx, tx, *e.FundingPaymentRef, domain.PaymentStatusSettled, &now); err != nil {
			return fmt.Errorf("settleLocked: settle payment: %w", err)
		}
	}

	if err := s.disputes.SetResolved(ctx, tx, d.ID, status, resolution, buyerAmt, sellerAmt, resolvedByID, now); err != nil {
		return fmt.Errorf("settleLocked: %w", err)
	}

	if err := s.escrows.SetCompleted(ctx, tx, e.ID, now); err != nil {
		return fmt.Errorf("settleLocked: %w", err)
	}

	if err := s.writeEvent(ctx, tx, e.ID, domain.EscrowEventDisputeResolved, userActor(resolvedByID), now); err != nil {
		return fmt.Errorf("settleLocked: %w", err)
	}

	return nil
}
