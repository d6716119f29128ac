package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet balances are stored as int64 minor units (cents). The balance is
// mutated exclusively by the ledger service; Version backs the optimistic
// check on every balance write.
type Wallet struct {
	ID                    uuid.UUID
	OwnerID               uuid.UUID
	Balance               int64
	Version               int64
	ReservedForChargeback bool
	CreatedAt             time.Time
}

// Available is the advisory figure used by pre-checks (escrow creation).
// The authoritative balance check happens inside the funding transaction.
func (w *Wallet) Available() int64 {
	if w.ReservedForChargeback {
		return 0
	}
	return w.Balance
}
