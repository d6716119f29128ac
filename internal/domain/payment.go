package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment is the internal funding record created when an escrow is funded.
// Its id is stored on the escrow as the funding payment reference.
type PaymentStatus string

const (
	PaymentStatusHeld     PaymentStatus = "held"
	PaymentStatusSettled  PaymentStatus = "settled"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Payment struct {
	ID          uuid.UUID
	EscrowID    uuid.UUID
	PayerID     uuid.UUID
	Amount      int64
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}
