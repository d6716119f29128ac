package domain

import (
	"time"

	"github.com/google/uuid"
)

type EscrowStatus string

const (
	EscrowStatusPending   EscrowStatus = "pending"
	EscrowStatusFunded    EscrowStatus = "funded"
	EscrowStatusDisputed  EscrowStatus = "disputed"
	EscrowStatusCompleted EscrowStatus = "completed"
	EscrowStatusCancelled EscrowStatus = "cancelled"
)

func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusCompleted || s == EscrowStatusCancelled
}

type Escrow struct {
	ID                uuid.UUID
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	Title             string
	TotalAmount       int64
	Status            EscrowStatus
	ExpiresAt         time.Time
	ScheduleReleaseAt *time.Time
	FundingPaymentRef *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time

	Milestones []Milestone
}

func (e *Escrow) IsParticipant(userID uuid.UUID) bool {
	return e.BuyerID == userID || e.SellerID == userID
}

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusCompleted MilestoneStatus = "completed"
	MilestoneStatusDisputed  MilestoneStatus = "disputed"
)

// Milestones are immutable once the escrow is funded, except for status.
type Milestone struct {
	ID          uuid.UUID
	EscrowID    uuid.UUID
	Sequence    int
	Title       string
	Amount      int64
	Status      MilestoneStatus
	CompletedAt *time.Time
	CreatedAt   time.Time
}
