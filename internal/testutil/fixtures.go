package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/seyi-adel/trustvault/internal/domain"
)

func SeedTestUser(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()
	return seedUser(t, db, email, name, domain.UserRoleMember)
}

func SeedAdmin(t *testing.T, db *sql.DB, email, name string) *domain.User {
	t.Helper()
	return seedUser(t, db, email, name, domain.UserRoleAdmin)
}

func seedUser(t *testing.T, db *sql.DB, email, name string, role domain.UserRole) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test user %s: %v", email, err)
	}
	return u
}

func SeedTestWallet(t *testing.T, db *sql.DB, ownerID uuid.UUID, balance int64) *domain.Wallet {
	t.Helper()

	w := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   balance,
		Version:   0,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO wallets (id, owner_id, balance, version, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.OwnerID, w.Balance, w.Version, w.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed test wallet %s: %v", ownerID, err)
	}
	return w
}

func GetWalletBalance(t *testing.T, db *sql.DB, walletID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM wallets WHERE id = $1`, walletID).Scan(&balance)
	if err != nil {
		t.Fatalf("get wallet balance %s: %v", walletID, err)
	}
	return balance
}

func GetEscrowStatus(t *testing.T, db *sql.DB, escrowID uuid.UUID) string {
	t.Helper()

	var status string
	err := db.QueryRow(`SELECT status FROM escrows WHERE id = $1`, escrowID).Scan(&status)
	if err != nil {
		t.Fatalf("get escrow status %s: %v", escrowID, err)
	}
	return status
}

func GetPaymentStatus(t *testing.T, db *sql.DB, paymentID uuid.UUID) string {
	t.Helper()

	var status string
	err := db.QueryRow(`SELECT status FROM payments WHERE id = $1`, paymentID).Scan(&status)
	if err != nil {
		t.Fatalf("get payment status %s: %v", paymentID, err)
	}
	return status
}

func CountTransactionLogs(t *testing.T, db *sql.DB, relatedEntityID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transaction_logs WHERE related_entity_id = $1`, relatedEntityID).Scan(&count)
	if err != nil {
		t.Fatalf("count transaction logs for %s: %v", relatedEntityID, err)
	}
	return count
}

func CountEscrowEvents(t *testing.T, db *sql.DB, escrowID uuid.UUID, eventType string) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM escrow_events WHERE escrow_id = $1 AND event_type = $2`,
		escrowID, eventType,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count escrow events for %s: %v", escrowID, err)
	}
	return count
}

// SetEvidenceDeadline backdates a dispute's evidence deadline so expiry
// paths can be exercised without waiting.
func SetEvidenceDeadline(t *testing.T, db *sql.DB, disputeID uuid.UUID, deadline time.Time) {
	t.Helper()

	res, err := db.Exec(`UPDATE disputes SET evidence_deadline = $2 WHERE id = $1`, disputeID, deadline)
	if err != nil {
		t.Fatalf("set evidence deadline %s: %v", disputeID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("set evidence deadline %s: dispute not found", disputeID)
	}
}
