package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/seyi-adel/trustvault/internal/domain"
)

// Evidence and messages are append-only children of a dispute.

const evidenceColumns = `id, dispute_id, submitted_by_id, description, file_url, created_at`

type EvidenceRepository struct {
	db *sql.DB
}

func NewEvidenceRepository(db *sql.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

func (r *EvidenceRepository) Create(ctx context.Context, tx *sql.Tx, e *domain.Evidence) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO dispute_evidence (id, dispute_id, submitted_by_id, description, file_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.DisputeID, e.SubmittedByID, e.Description, e.FileURL, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *EvidenceRepository) ListByDispute(ctx context.Context, disputeID uuid.UUID) ([]domain.Evidence, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+evidenceColumns+` FROM dispute_evidence
		WHERE dispute_id = $1 ORDER BY created_at`, disputeID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByDispute: %w", err)
	}
	defer rows.Close()

	var evidence []domain.Evidence
	for rows.Next() {
		var e domain.Evidence
		var fileURL sql.NullString
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.SubmittedByID, &e.Description, &fileURL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByDispute: scan: %w", err)
		}
		if fileURL.Valid {
			e.FileURL = &fileURL.String
		}
		evidence = append(evidence, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByDispute: rows: %w", err)
	}
	return evidence, nil
}

const messageColumns = `id, dispute_id, sender_id, body, created_at`

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, tx *sql.Tx, m *domain.DisputeMessage) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO dispute_messages (id, dispute_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.DisputeID, m.SenderID, m.Body, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByDispute(ctx context.Context, disputeID uuid.UUID) ([]domain.DisputeMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM dispute_messages
		WHERE dispute_id = $1 ORDER BY created_at`, disputeID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByDispute: %w", err)
	}
	defer rows.Close()

	var messages []domain.DisputeMessage
	for rows.Next() {
		var m domain.DisputeMessage
		if err := rows.Scan(&m.ID, &m.DisputeID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByDispute: scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByDispute: rows: %w", err)
	}
	return messages, nil
}
