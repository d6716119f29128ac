package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeEscrowFunding  TransactionType = "escrow_funding"
	TransactionTypeEscrowRelease  TransactionType = "escrow_release"
	TransactionTypeEscrowRefund   TransactionType = "escrow_refund"
	TransactionTypeDisputePayout  TransactionType = "dispute_payout"
	TransactionTypePlatformFee    TransactionType = "platform_fee"
	TransactionTypeWalletTransfer TransactionType = "wallet_transfer"
)

type EntryDirection string

const (
	DirectionDebit  EntryDirection = "debit"
	DirectionCredit EntryDirection = "credit"
)

// TransactionLogEntry rows are append-only; they are never updated or
// deleted and exist purely as an audit trail.
type TransactionLogEntry struct {
	ID              uuid.UUID
	Type            TransactionType
	Direction       EntryDirection
	WalletID        uuid.UUID
	UserID          uuid.UUID
	Amount          int64
	BalanceBefore   int64
	BalanceAfter    int64
	RelatedEntityID uuid.UUID
	CreatedAt       time.Time
}
