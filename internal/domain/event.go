package domain

import (
	"time"

	"github.com/google/uuid"
)

type EscrowEventType string

const (
	EscrowEventCreated          EscrowEventType = "escrow.created"
	EscrowEventFunded           EscrowEventType = "escrow.funded"
	EscrowEventMilestoneUpdated EscrowEventType = "escrow.milestone_updated"
	EscrowEventCompleted        EscrowEventType = "escrow.completed"
	EscrowEventCancelled        EscrowEventType = "escrow.cancelled"
	EscrowEventDisputeOpened    EscrowEventType = "dispute.opened"
	EscrowEventDisputeEscalated EscrowEventType = "dispute.escalated"
	EscrowEventDisputeResolved  EscrowEventType = "dispute.resolved"
)

// EscrowEvent is the append-only transition audit written in the same
// transaction as the transition it records.
type EscrowEvent struct {
	ID        uuid.UUID
	EscrowID  uuid.UUID
	EventType EscrowEventType
	Actor     string
	CreatedAt time.Time
}
