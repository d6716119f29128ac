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

type MilestoneInput struct {
	Title  string
	Amount int64
}

type CreateEscrowRequest struct {
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	Title             string
	TotalAmount       int64
	ExpirationDays    int
	ScheduleReleaseAt *time.Time
	Milestones        []MilestoneInput
}

func (s *Service) CreateEscrow(ctx context.Context, req CreateEscrowRequest) (*domain.Escrow, error) {
	log := logging.FromContext(ctx)

	if err := validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("CreateEscrow: %w", err)
	}

	if _, err := s.users.GetByID(ctx, req.BuyerID); err != nil {
		return nil, fmt.Errorf("CreateEscrow: buyer: %w", err)
	}
	if _, err := s.users.GetByID(ctx, req.SellerID); err != nil {
		return nil, fmt.Errorf("CreateEscrow: seller: %w", err)
	}

	// Advisory only: the authoritative balance check happens under lock in
	// FundEscrow, so a race between this read and funding cannot overdraw.
	buyerWallet, err := s.wallets.GetByOwnerID(ctx, req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("CreateEscrow: %w", err)
	}
	if buyerWallet.Available() < req.TotalAmount {
		return nil, fmt.Errorf("CreateEscrow: %w", domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	e := &domain.Escrow{
		ID:                uuid.New(),
		BuyerID:           req.BuyerID,
		SellerID:          req.SellerID,
		Title:             req.Title,
		TotalAmount:       req.TotalAmount,
		Status:            domain.EscrowStatusPending,
		ExpiresAt:         now.AddDate(0, 0, req.ExpirationDays),
		ScheduleReleaseAt: req.ScheduleReleaseAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateEscrow: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.escrows.Create(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("CreateEscrow: %w", err)
	}

	for i, in := range req.Milestones {
		m := domain.Milestone{
			ID:        uuid.New(),
			EscrowID:  e.ID,
			Sequence:  i + 1,
			Title:     in.Title,
			Amount:    in.Amount,
			Status:    domain.MilestoneStatusPending,
			CreatedAt: now,
		}
		if err := s.milestones.Create(ctx, tx, &m); err != nil {
			return nil, fmt.Errorf("CreateEscrow: milestone %d: %w", m.Sequence, err)
		}
		e.Milestones = append(e.Milestones, m)
	}

	if err := s.writeEvent(ctx, tx, e.ID, domain.EscrowEventCreated, userActor(req.BuyerID), now); err != nil {
		return nil, fmt.Errorf("CreateEscrow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateEscrow: commit: %w", err)
	}

	log.Info("escrow created",
		"escrow_id", e.ID,
		"buyer_id", e.BuyerID,
		"seller_id", e.SellerID,
		"total_amount", e.TotalAmount,
		"milestones", len(e.Milestones),
	)

	s.sink.Publish(ctx, notify.Event{
		Type:     domain.EscrowEventCreated,
		EscrowID: e.ID,
		Actor:    userActor(req.BuyerID),
	})

	return e, nil
}

func validateCreateRequest(req CreateEscrowRequest) error {
	if req.TotalAmount <= 0 {
		return domain.ErrInvalidAmount
	}
	if req.BuyerID == req.SellerID {
		return fmt.Errorf("buyer and seller must differ: %w", domain.ErrValidation)
	}
	if req.ExpirationDays <= 0 {
		return fmt.Errorf("expiration days must be positive: %w", domain.ErrValidation)
	}
	if len(req.Milestones) == 0 {
		return fmt.Errorf("at least one milestone required: %w", domain.ErrValidation)
	}

	var sum int64
	for _, m := range req.Milestones {
		if m.Amount <= 0 {
			return fmt.Errorf("milestone amount must be positive: %w", domain.ErrValidation)
		}
		sum += m.Amount
	}
	if sum != req.TotalAmount {
		return domain.ErrMilestoneSum
	}
	return nil
}
