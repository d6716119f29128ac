package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/seyi-adel/trustvault/internal/domain"
)

const milestoneColumns = `id, escrow_id, sequence, title, amount, status, completed_at, created_at`

type MilestoneRepository struct {
	db *sql.DB
}

func NewMilestoneRepository(db *sql.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

func (r *MilestoneRepository) Create(ctx context.Context, tx *sql.Tx, m *domain.Milestone) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO escrow_milestones (id, escrow_id, sequence, title, amount, status, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.EscrowID, m.Sequence, m.Title, m.Amount, m.Status, m.CompletedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Milestone, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+milestoneColumns+` FROM escrow_milestones WHERE id = $1`, id,
	)
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return m, nil
}

func (r *MilestoneRepository) ListByEscrow(ctx context.Context, escrowID uuid.UUID) ([]domain.Milestone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+milestoneColumns+` FROM escrow_milestones
		WHERE escrow_id = $1 ORDER BY sequence`, escrowID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByEscrow: %w", err)
	}
	defer rows.Close()

	var milestones []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByEscrow: scan: %w", err)
		}
		milestones = append(milestones, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByEscrow: rows: %w", err)
	}
	return milestones, nil
}

func (r *MilestoneRepository) SetStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.MilestoneStatus, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE escrow_milestones SET status = $1, completed_at = $2 WHERE id = $3`,
		status, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("SetStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// CountPending runs inside the milestone-update transaction; the escrow row
// lock held by the caller keeps the count stable.
func (r *MilestoneRepository) CountPending(ctx context.Context, tx *sql.Tx, escrowID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escrow_milestones WHERE escrow_id = $1 AND status <> $2`,
		escrowID, domain.MilestoneStatusCompleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountPending: %w", err)
	}
	return n, nil
}

func scanMilestone(s scanner) (*domain.Milestone, error) {
	var m domain.Milestone
	var completedAt sql.NullTime
	err := s.Scan(
		&m.ID, &m.EscrowID, &m.Sequence, &m.Title, &m.Amount,
		&m.Status, &completedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return &m, nil
}
