package domain

import (
	"time"

	"github.com/google/uuid"
)

type DisputeStatus string

const (
	DisputeStatusEvidenceSubmission DisputeStatus = "evidence_submission"
	DisputeStatusUnderReview        DisputeStatus = "under_review"
	DisputeStatusMutuallyResolved   DisputeStatus = "mutually_resolved"
	DisputeStatusResolvedByAdmin    DisputeStatus = "resolved_by_admin"
	DisputeStatusClosed             DisputeStatus = "closed"
)

func (s DisputeStatus) IsTerminal() bool {
	switch s {
	case DisputeStatusMutuallyResolved, DisputeStatusResolvedByAdmin, DisputeStatusClosed:
		return true
	default:
		return false
	}
}

type DisputeResolution string

const (
	ResolutionReleaseToSeller DisputeResolution = "release_to_seller"
	ResolutionRefundToBuyer   DisputeResolution = "refund_to_buyer"
	ResolutionSplit           DisputeResolution = "split"
)

func (r DisputeResolution) IsValid() bool {
	switch r {
	case ResolutionReleaseToSeller, ResolutionRefundToBuyer, ResolutionSplit:
		return true
	default:
		return false
	}
}

// A pending proposal lives on the dispute row itself so acceptance can
// validate against exactly what was proposed.
type Dispute struct {
	ID               uuid.UUID
	EscrowID         uuid.UUID
	CreatedByID      uuid.UUID
	Reason           string
	Status           DisputeStatus
	EvidenceDeadline time.Time

	ProposedResolution   *DisputeResolution
	ProposedBuyerAmount  *int64
	ProposedSellerAmount *int64
	ProposedByID         *uuid.UUID

	Resolution   *DisputeResolution
	BuyerAmount  *int64
	SellerAmount *int64
	ResolvedByID *uuid.UUID
	ResolvedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Evidence struct {
	ID            uuid.UUID
	DisputeID     uuid.UUID
	SubmittedByID uuid.UUID
	Description   string
	FileURL       *string
	CreatedAt     time.Time
}

// SystemSenderID marks messages emitted by the engine itself.
var SystemSenderID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type DisputeMessage struct {
	ID        uuid.UUID
	DisputeID uuid.UUID
	SenderID  uuid.UUID
	Body      string
	CreatedAt time.Time
}
