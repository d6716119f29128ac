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

const disputeColumns = `id, escrow_id, created_by_id, reason, status, evidence_deadline,
	proposed_resolution, proposed_buyer_amount, proposed_seller_amount, proposed_by_id,
	resolution, buyer_amount, seller_amount, resolved_by_id, resolved_at,
	created_at, updated_at`

type DisputeRepository struct {
	db *sql.DB
}

func NewDisputeRepository(db *sql.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, tx *sql.Tx, d *domain.Dispute) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO disputes (
			id, escrow_id, created_by_id, reason, status, evidence_deadline,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.EscrowID, d.CreatedByID, d.Reason, d.Status, d.EvidenceDeadline,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDisputeExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id,
	)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return d, nil
}

func (r *DisputeRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Dispute, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id,
	)
	d, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return d, nil
}

func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Dispute, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+prefixedDisputeColumns("d")+` FROM disputes d
		JOIN escrows e ON e.id = d.escrow_id
		WHERE e.buyer_id = $1 OR e.seller_id = $1
		ORDER BY d.created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var disputes []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: scan: %w", err)
		}
		disputes = append(disputes, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: rows: %w", err)
	}
	return disputes, nil
}

// ListExpiredEvidence returns ids only; the sweep re-reads each dispute
// under lock inside its own transaction.
func (r *DisputeRepository) ListExpiredEvidence(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM disputes
		WHERE status = $1 AND evidence_deadline < $2
		ORDER BY evidence_deadline`,
		domain.DisputeStatusEvidenceSubmission, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ListExpiredEvidence: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListExpiredEvidence: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListExpiredEvidence: rows: %w", err)
	}
	return ids, nil
}

func (r *DisputeRepository) SetStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.DisputeStatus) error {
	return r.exec(ctx, tx, "SetStatus",
		`UPDATE disputes SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
}

func (r *DisputeRepository) SetProposal(ctx context.Context, tx *sql.Tx, id uuid.UUID, resolution domain.DisputeResolution, buyerAmount, sellerAmount int64, proposedByID uuid.UUID) error {
	return r.exec(ctx, tx, "SetProposal",
		`UPDATE disputes SET
			proposed_resolution = $1, proposed_buyer_amount = $2,
			proposed_seller_amount = $3, proposed_by_id = $4, updated_at = now()
		WHERE id = $5`,
		resolution, buyerAmount, sellerAmount, proposedByID, id,
	)
}

func (r *DisputeRepository) SetResolved(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.DisputeStatus, resolution domain.DisputeResolution, buyerAmount, sellerAmount int64, resolvedByID uuid.UUID, resolvedAt time.Time) error {
	return r.exec(ctx, tx, "SetResolved",
		`UPDATE disputes SET
			status = $1, resolution = $2, buyer_amount = $3, seller_amount = $4,
			resolved_by_id = $5, resolved_at = $6, updated_at = now()
		WHERE id = $7`,
		status, resolution, buyerAmount, sellerAmount, resolvedByID, resolvedAt, id,
	)
}

func (r *DisputeRepository) exec(ctx context.Context, tx *sql.Tx, op, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func prefixedDisputeColumns(alias string) string {
	return alias + `.id, ` + alias + `.escrow_id, ` + alias + `.created_by_id, ` +
		alias + `.reason, ` + alias + `.status, ` + alias + `.evidence_deadline, ` +
		alias + `.proposed_resolution, ` + alias + `.proposed_buyer_amount, ` +
		alias + `.proposed_seller_amount, ` + alias + `.proposed_by_id, ` +
		alias + `.resolution, ` + alias + `.buyer_amount, ` + alias + `.seller_amount, ` +
		alias + `.resolved_by_id, ` + alias + `.resolved_at, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

func scanDispute(s scanner) (*domain.Dispute, error) {
	var d domain.Dispute
	var proposedResolution, resolution sql.NullString
	var proposedBuyerAmount, proposedSellerAmount, buyerAmount, sellerAmount sql.NullInt64
	var proposedByID, resolvedByID uuid.NullUUID
	var resolvedAt sql.NullTime

	err := s.Scan(
		&d.ID, &d.EscrowID, &d.CreatedByID, &d.Reason, &d.Status, &d.EvidenceDeadline,
		&proposedResolution, &proposedBuyerAmount, &proposedSellerAmount, &proposedByID,
		&resolution, &buyerAmount, &sellerAmount, &resolvedByID, &resolvedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if proposedResolution.Valid {
		v := domain.DisputeResolution(proposedResolution.String)
		d.ProposedResolution = &v
	}
	if proposedBuyerAmount.Valid {
		d.ProposedBuyerAmount = &proposedBuyerAmount.Int64
	}
	if proposedSellerAmount.Valid {
		d.ProposedSellerAmount = &proposedSellerAmount.Int64
	}
	if proposedByID.Valid {
		d.ProposedByID = &proposedByID.UUID
	}
	if resolution.Valid {
		v := domain.DisputeResolution(resolution.String)
		d.Resolution = &v
	}
	if buyerAmount.Valid {
		d.BuyerAmount = &buyerAmount.Int64
	}
	if sellerAmount.Valid {
		d.SellerAmount = &sellerAmount.Int64
	}
	if resolvedByID.Valid {
		d.ResolvedByID = &resolvedByID.UUID
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}

	return &d, nil
}
