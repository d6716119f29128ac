package ledger_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/ledger"
	"github.com/seyi-adel/trustvault/internal/repository"
	"github.com/seyi-adel/trustvault/internal/testutil"
)

func setupLedger(t *testing.T, db *sql.DB) *ledger.Service {
	t.Helper()
	return ledger.NewService(
		repository.NewWalletRepository(db),
		repository.NewTransactionLogRepository(db),
		db,
	)
}

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	require.NoError(t, tx.Commit())
	return nil
}

func TestDebit_WritesLogAndBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	wallet := testutil.SeedTestWallet(t, db, user.ID, 10_000)
	relatedID := uuid.New()

	err := inTx(t, db, func(tx *sql.Tx) error {
		updated, err := svc.Debit(ctx, tx, wallet.ID, 3_000, domain.TransactionTypeEscrowFunding, relatedID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(7_000), updated.Balance)
		assert.Equal(t, wallet.Version+1, updated.Version)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7_000), testutil.GetWalletBalance(t, db, wallet.ID))
	assert.Equal(t, 1, testutil.CountTransactionLogs(t, db, relatedID))

	var before, after int64
	var direction string
	err = db.QueryRow(
		`SELECT balance_before, balance_after, direction FROM transaction_logs WHERE related_entity_id = $1`,
		relatedID,
	).Scan(&before, &after, &direction)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), before)
	assert.Equal(t, int64(7_000), after)
	assert.Equal(t, string(domain.DirectionDebit), direction)
}

func TestDebit_InsufficientFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	wallet := testutil.SeedTestWallet(t, db, user.ID, 1_000)

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := svc.Debit(ctx, tx, wallet.ID, 5_000, domain.TransactionTypeEscrowFunding, uuid.New())
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(1_000), testutil.GetWalletBalance(t, db, wallet.ID))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM transaction_logs WHERE wallet_id = $1`, wallet.ID).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestDebit_RejectsNonPositiveAmount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payer@test.com", "Payer")
	wallet := testutil.SeedTestWallet(t, db, user.ID, 1_000)

	for _, amount := range []int64{0, -500} {
		err := inTx(t, db, func(tx *sql.Tx) error {
			_, err := svc.Debit(ctx, tx, wallet.ID, amount, domain.TransactionTypeEscrowFunding, uuid.New())
			return err
		})
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	}
}

func TestCredit_WritesLogAndBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	user := testutil.SeedTestUser(t, db, "payee@test.com", "Payee")
	wallet := testutil.SeedTestWallet(t, db, user.ID, 500)
	relatedID := uuid.New()

	err := inTx(t, db, func(tx *sql.Tx) error {
		updated, err := svc.Credit(ctx, tx, wallet.ID, 2_500, domain.TransactionTypeEscrowRelease, relatedID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(3_000), updated.Balance)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3_000), testutil.GetWalletBalance(t, db, wallet.ID))
	assert.Equal(t, 1, testutil.CountTransactionLogs(t, db, relatedID))
}

func TestTransfer_MovesBothLegsAtomically(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	sender := testutil.SeedTestUser(t, db, "sender@test.com", "Sender")
	recipient := testutil.SeedTestUser(t, db, "recipient@test.com", "Recipient")
	senderWallet := testutil.SeedTestWallet(t, db, sender.ID, 10_000)
	recipientWallet := testutil.SeedTestWallet(t, db, recipient.ID, 0)
	relatedID := uuid.New()

	err := svc.Transfer(ctx, senderWallet.ID, recipientWallet.ID, 4_000, domain.TransactionTypeWalletTransfer, relatedID)
	require.NoError(t, err)

	assert.Equal(t, int64(6_000), testutil.GetWalletBalance(t, db, senderWallet.ID))
	assert.Equal(t, int64(4_000), testutil.GetWalletBalance(t, db, recipientWallet.ID))
	assert.Equal(t, 2, testutil.CountTransactionLogs(t, db, relatedID))
}

func TestTransfer_InsufficientFundsLeavesNoTrace(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	sender := testutil.SeedTestUser(t, db, "sender@test.com", "Sender")
	recipient := testutil.SeedTestUser(t, db, "recipient@test.com", "Recipient")
	senderWallet := testutil.SeedTestWallet(t, db, sender.ID, 1_000)
	recipientWallet := testutil.SeedTestWallet(t, db, recipient.ID, 0)

	err := svc.Transfer(ctx, senderWallet.ID, recipientWallet.ID, 4_000, domain.TransactionTypeWalletTransfer, uuid.New())
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(1_000), testutil.GetWalletBalance(t, db, senderWallet.ID))
	assert.Equal(t, int64(0), testutil.GetWalletBalance(t, db, recipientWallet.ID))
}

func TestTransfer_ConcurrentOverdraft(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedger(t, db)
	ctx := context.Background()

	sender := testutil.SeedTestUser(t, db, "sender@test.com", "Sender")
	recipient := testutil.SeedTestUser(t, db, "recipient@test.com", "Recipient")
	senderWallet := testutil.SeedTestWallet(t, db, sender.ID, 10_000)
	recipientWallet := testutil.SeedTestWallet(t, db, recipient.ID, 0)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Transfer(ctx, senderWallet.ID, recipientWallet.ID, 7_000, domain.TransactionTypeWalletTransfer, uuid.New())
		}()
	}

	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failures++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.Equal(t, int64(3_000), testutil.GetWalletBalance(t, db, senderWallet.ID))
	assert.Equal(t, int64(7_000), testutil.GetWalletBalance(t, db, recipientWallet.ID))
}
