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

// UpdateMilestone transitions a milestone to completed or disputed. Only
// the buyer may mark completion; either party may dispute, which opens a
// dispute on the whole escrow. Completing the last milestone settles the
// escrow in the same transaction.
func (s *Service) UpdateMilestone(ctx context.Context, escrowID, milestoneID uuid.UUID, newStatus domain.MilestoneStatus, callerID uuid.UUID, reason string) (*domain.Milestone, error) {
	switch newStatus {
	case domain.MilestoneStatusCompleted:
		return s.completeMilestone(ctx, escrowID, milestoneID, callerID)
	case domain.MilestoneStatusDisputed:
		return s.disputeMilestone(ctx, escrowID, milestoneID, callerID, reason)
	default:
		return nil, fmt.Errorf("UpdateMilestone: status %s: %w", newStatus, domain.ErrValidation)
	}
}

func (s *Service) completeMilestone(ctx context.Context, escrowID, milestoneID, callerID uuid.UUID) (*domain.Milestone, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("completeMilestone: begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("completeMilestone: %w", err)
	}

	if callerID != e.BuyerID {
		return nil, fmt.Errorf("completeMilestone: %w", domain.ErrForbidden)
	}
	if e.Status != domain.EscrowStatusFunded {
		return nil, fmt.Errorf("completeMilestone: status %s: %w", e.Status, domain.ErrInvalidState)
	}

	m, err := s.milestoneInEscrow(ctx, escrowID, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("completeMilestone: %w", err)
	}
	if m.Status != domain.MilestoneStatusPending {
		return nil, fmt.Errorf("completeMilestone: milestone %s: %w", m.Status, domain.ErrInvalidState)
	}

	now := time.Now().UTC()
	if err := s.milestones.SetStatus(ctx, tx, m.ID, domain.MilestoneStatusCompleted, &now); err != nil {
		return nil, fmt.Errorf("completeMilestone: %w", err)
	}

	if err := s.writeEvent(ctx, tx, e.ID, domain.EscrowEventMilestoneUpdated, userActor(callerID), now); err != nil {
		return nil, fmt.Errorf("completeMilestone: %w", err)
	}

	pending, err := s.milestones.CountPending(ctx, tx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("completeMilestone: %w", err)
	}

	allDone := pending == 0
	if allDone {
		if err := s.completeLocked(ctx, tx, e, userActor(callerID), now); err != nil {
			return nil, fmt.Errorf("completeMilestone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("completeMilestone: commit: %w", err)
	}

	m.Status = domain.MilestoneStatusCompleted
	m.CompletedAt = &now

	log.Info("milestone completed",
		"escrow_id", escrowID,
		"milestone_id", m.ID,
		"sequence", m.Sequence,
		"escrow_completed", allDone,
	)

	if allDone {
		s.sink.Publish(ctx, notify.Event{
			Type:     domain.EscrowEventCompleted,
			EscrowID: e.ID,
			Actor:    userActor(callerID),
		})
	}

	return m, nil
}

// disputeMilestone opens a dispute through the dispute service (which owns
// the escrow-to-disputed transition), then labels the milestone. The label
// is best-effort once the dispute exists.
func (s *Service) disputeMilestone(ctx context.Context, escrowID, milestoneID, callerID uuid.UUID, reason string) (*domain.Milestone, error) {
	log := logging.FromContext(ctx)

	m, err := s.milestoneInEscrow(ctx, escrowID, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("disputeMilestone: %w", err)
	}
	if m.Status != domain.MilestoneStatusPending {
		return nil, fmt.Errorf("disputeMilestone: milestone %s: %w", m.Status, domain.ErrInvalidState)
	}

	if reason == "" {
		reason = fmt.Sprintf("milestone %d disputed", m.Sequence)
	}

	if _, err := s.disputes.CreateDispute(ctx, escrowID, callerID, reason); err != nil {
		return nil, fmt.Errorf("disputeMilestone: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("disputeMilestone: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.milestones.SetStatus(ctx, tx, m.ID, domain.MilestoneStatusDisputed, nil); err != nil {
		return nil, fmt.Errorf("disputeMilestone: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("disputeMilestone: commit: %w", err)
	}

	m.Status = domain.MilestoneStatusDisputed

	log.Info("milestone disputed",
		"escrow_id", escrowID,
		"milestone_id", m.ID,
		"caller_id", callerID,
	)

	return m, nil
}

func (s *Service) milestoneInEscrow(ctx context.Context, escrowID, milestoneID uuid.UUID) (*domain.Milestone, error) {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if m.EscrowID != escrowID {
		return nil, domain.ErrNotFound
	}
	return m, nil
}
