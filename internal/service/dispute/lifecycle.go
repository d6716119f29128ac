package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/logging"
	"github.com/seyi-adel/trustvault/internal/notify"
)

// CreateDispute opens a dispute and forces the parent escrow into the
// disputed status. The escrow row lock serializes this against funding,
// completion, and cancellation; the partial unique index on disputes
// enforces one active dispute per escrow.
func (s *Service) CreateDispute(ctx context.Context, escrowID, createdByID uuid.UUID, reason string) (*domain.Dispute, error) {
	log := logging.FromContext(ctx)

	if reason == "" {
		return nil, fmt.Errorf("CreateDispute: reason required: %w", domain.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateDispute: begin tx: %w", err)
	}
	defer tx.Rollback()

	e, err := s.escrows.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("CreateDispute: %w", err)
	}

	if !e.IsParticipant(createdByID) {
		return nil, fmt.Errorf("CreateDispute: %w", domain.ErrForbidden)
	}
	if e.Status.IsTerminal() {
		return nil, fmt.Errorf("CreateDispute: status %s: %w", e.Status, domain.ErrInvalidState)
	}
	if e.Status == domain.EscrowStatusDisputed {
		return nil, fmt.Errorf("CreateDispute: %w", domain.ErrDisputeExists)
	}

	now := time.Now().UTC()
	d := &domain.Dispute{
		ID:               uuid.New(),
		EscrowID:         e.ID,
		CreatedByID:      createdByID,
		Reason:           reason,
		Status:           domain.DisputeStatusEvidenceSubmission,
		EvidenceDeadline: now.Add(s.cfg.EvidenceWindow),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.disputes.Create(ctx, tx, d); err != nil {
		return nil, fmt.Errorf("CreateDispute: %w", err)
	}

	if err := s.escrows.SetStatus(ctx, tx, e.ID, domain.EscrowStatusDisputed); err != nil {
		return nil, fmt.Errorf("CreateDispute: %w", err)
	}

	body := fmt.Sprintf("Dispute opened: %s. Evidence may be submitted until %s.",
		reason, d.EvidenceDeadline.Format(time.RFC3339))
	if err := s.writeSystemMessage(ctx, tx, d.ID, body, now); err != nil {
		return nil, fmt.Errorf("CreateDispute: %w", err)
	}

	if err := s.writeEvent(ctx, tx, e.ID, domain.EscrowEventDisputeOpened, userActor(createdByID), now); err != nil {
		return nil, fmt.Errorf("CreateDispute: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateDispute: commit: %w", err)
	}

	log.Info("dispute opened",
		"dispute_id", d.ID,
		"escrow_id", e.ID,
		"created_by", createdByID,
		"evidence_deadline", d.EvidenceDeadline,
	)

	s.sink.Publish(ctx, notify.Event{
		Type:      domain.EscrowEventDisputeOpened,
		EscrowID:  e.ID,
		DisputeID: d.ID,
		Actor:     userActor(createdByID),
	})

	return d, nil
}

// SubmitEvidence checks the deadline independently of status: evidence is
// rejected with ErrExpired after the deadline even before the sweep has
// moved the dispute to under review.
func (s *Service) SubmitEvidence(ctx context.Context, disputeID, submittedByID uuid.UUID, description string, fileURL *string) (*domain.Evidence, error) {
	if description == "" {
		return nil, fmt.Errorf("SubmitEvidence: description required: %w", domain.ErrValidation)
	}

	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("SubmitEvidence: %w", err)
	}

	now := time.Now().UTC()
	if now.After(d.EvidenceDeadline) {
		return nil, fmt.Errorf("SubmitEvidence: %w", domain.ErrExpired)
	}
	if d.Status != domain.DisputeStatusEvidenceSubmission {
		return nil, fmt.Errorf("SubmitEvidence: status %s: %w", d.Status, domain.ErrInvalidState)
	}

	if err := s.requireParticipantOrAdmin(ctx, d.EscrowID, submittedByID); err != nil {
		return nil, fmt.Errorf("SubmitEvidence: %w", err)
	}

	e := &domain.Evidence{
		ID:            uuid.New(),
		DisputeID:     disputeID,
		SubmittedByID: submittedByID,
		Description:   description,
		FileURL:       fileURL,
		CreatedAt:     now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SubmitEvidence: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.evidence.Create(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("SubmitEvidence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SubmitEvidence: commit: %w", err)
	}

	return e, nil
}

// SendMessage appends to the dispute thread. Any participant (or an admin)
// may write at any non-terminal status; no state transition happens.
func (s *Service) SendMessage(ctx context.Context, disputeID, senderID uuid.UUID, body string) (*domain.DisputeMessage, error) {
	if body == "" {
		return nil, fmt.Errorf("SendMessage: body required: %w", domain.ErrValidation)
	}

	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("SendMessage: %w", err)
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("SendMessage: status %s: %w", d.Status, domain.ErrInvalidState)
	}

	if err := s.requireParticipantOrAdmin(ctx, d.EscrowID, senderID); err != nil {
		return nil, fmt.Errorf("SendMessage: %w", err)
	}

	m := &domain.DisputeMessage{
		ID:        uuid.New(),
		DisputeID: disputeID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SendMessage: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.messages.Create(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("SendMessage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SendMessage: commit: %w", err)
	}

	return m, nil
}

// ProcessExpiredEvidenceDeadlines escalates disputes whose evidence window
// has closed. Each dispute is handled in its own transaction; one failure
// never aborts the batch.
func (s *Service) ProcessExpiredEvidenceDeadlines(ctx context.Context) (processed, failed int, err error) {
	log := logging.FromContext(ctx)

	ids, err := s.disputes.ListExpiredEvidence(ctx, time.Now().UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("ProcessExpiredEvidenceDeadlines: %w", err)
	}

	for _, id := range ids {
		if err := s.escalateExpired(ctx, id); err != nil {
			log.Error("evidence deadline escalation failed", "dispute_id", id, "error", err)
			failed++
			continue
		}
		processed++
	}

	return processed, failed, nil
}

func (s *Service) escalateExpired(ctx context.Context, disputeID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("escalateExpired: begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return fmt.Errorf("escalateExpired: %w", err)
	}

	now := time.Now().UTC()
	// Re-check under lock: a concurrent sweep or resolution may have moved
	// the dispute on since the listing query.
	if d.Status != domain.DisputeStatusEvidenceSubmission || now.Before(d.EvidenceDeadline) {
		return nil
	}

	if err := s.disputes.SetStatus(ctx, tx, d.ID, domain.DisputeStatusUnderReview); err != nil {
		return fmt.Errorf("escalateExpired: %w", err)
	}

	if err := s.writeSystemMessage(ctx, tx, d.ID,
		"Evidence window closed. The dispute is now under review.", now); err != nil {
		return fmt.Errorf("escalateExpired: %w", err)
	}

	if err := s.writeEvent(ctx, tx, d.EscrowID, domain.EscrowEventDisputeEscalated, "system:evidence_deadline", now); err != nil {
		return fmt.Errorf("escalateExpired: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("escalateExpired: commit: %w", err)
	}

	s.sink.Publish(ctx, notify.Event{
		Type:      domain.EscrowEventDisputeEscalated,
		EscrowID:  d.EscrowID,
		DisputeID: d.ID,
		Actor:     "system:evidence_deadline",
	})

	return nil
}
