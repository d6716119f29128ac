package escrow_test

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/ledger"
	"github.com/seyi-adel/trustvault/internal/notify"
	"github.com/seyi-adel/trustvault/internal/repository"
	"github.com/seyi-adel/trustvault/internal/service/dispute"
	"github.com/seyi-adel/trustvault/internal/service/escrow"
	"github.com/seyi-adel/trustvault/internal/testutil"
)

type engine struct {
	escrows  *escrow.Service
	disputes *dispute.Service
}

func setupEngine(t *testing.T, db *sql.DB, cfg escrow.Config) *engine {
	t.Helper()

	users := repository.NewUserRepository(db)
	wallets := repository.NewWalletRepository(db)
	escrows := repository.NewEscrowRepository(db)
	milestones := repository.NewMilestoneRepository(db)
	payments := repository.NewPaymentRepository(db)
	disputes := repository.NewDisputeRepository(db)
	evidence := repository.NewEvidenceRepository(db)
	messages := repository.NewMessageRepository(db)
	txLogs := repository.NewTransactionLogRepository(db)
	events := repository.NewEscrowEventRepository(db)

	ledgerSvc := ledger.NewService(wallets, txLogs, db)
	sink := notify.NewLogSink(slog.Default())

	escrowSvc := escrow.NewService(escrows, milestones, payments, users, wallets, events, ledgerSvc, sink, db, cfg)
	disputeSvc := dispute.NewService(disputes, escrows, evidence, messages, payments, wallets, users, events, ledgerSvc, sink, db, dispute.Config{})
	escrowSvc.SetDisputeOpener(disputeSvc)

	return &engine{escrows: escrowSvc, disputes: disputeSvc}
}

func createFundedEscrow(t *testing.T, eng *engine, buyerID, sellerID uuid.UUID, total int64, milestones []escrow.MilestoneInput) *domain.Escrow {
	t.Helper()
	ctx := context.Background()

	e, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        buyerID,
		SellerID:       sellerID,
		Title:          "test escrow",
		TotalAmount:    total,
		ExpirationDays: 30,
		Milestones:     milestones,
	})
	require.NoError(t, err)

	e, err = eng.escrows.FundEscrow(ctx, e.ID, buyerID)
	require.NoError(t, err)
	return e
}

func TestCreateEscrow_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	buyerWallet := testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	testutil.SeedTestWallet(t, db, seller.ID, 0)

	e, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		Title:          "website build",
		TotalAmount:    10_000,
		ExpirationDays: 30,
		Milestones: []escrow.MilestoneInput{
			{Title: "design", Amount: 4_000},
			{Title: "build", Amount: 6_000},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusPending, e.Status)
	assert.Len(t, e.Milestones, 2)
	assert.Equal(t, 1, e.Milestones[0].Sequence)
	assert.Equal(t, 2, e.Milestones[1].Sequence)

	// Creation reserves nothing; funds move only on funding.
	assert.Equal(t, int64(20_000), testutil.GetWalletBalance(t, db, buyerWallet.ID))
	assert.Equal(t, "pending", testutil.GetEscrowStatus(t, db, e.ID))
	assert.Equal(t, 1, testutil.CountEscrowEvents(t, db, e.ID, string(domain.EscrowEventCreated)))
}

func TestCreateEscrow_InsufficientAvailableFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 5_000)

	_, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		Title:          "too expensive",
		TotalAmount:    10_000,
		ExpirationDays: 30,
		Milestones:     []escrow.MilestoneInput{{Title: "all", Amount: 10_000}},
	})

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestFundEscrow_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	buyerWallet := testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000,
		[]escrow.MilestoneInput{{Title: "all", Amount: 10_000}})

	assert.Equal(t, domain.EscrowStatusFunded, e.Status)
	require.NotNil(t, e.FundingPaymentRef)
	assert.Equal(t, int64(10_000), testutil.GetWalletBalance(t, db, buyerWallet.ID))
	assert.Equal(t, "held", testutil.GetPaymentStatus(t, db, *e.FundingPaymentRef))
	assert.Equal(t, 1, testutil.CountTransactionLogs(t, db, e.ID))
	assert.Equal(t, 1, testutil.CountEscrowEvents(t, db, e.ID, string(domain.EscrowEventFunded)))
}

func TestFundEscrow_OnlyBuyerMayFund(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	testutil.SeedTestWallet(t, db, seller.ID, 0)

	e, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		Title:          "test",
		TotalAmount:    10_000,
		ExpirationDays: 30,
		Milestones:     []escrow.MilestoneInput{{Title: "all", Amount: 10_000}},
	})
	require.NoError(t, err)

	_, err = eng.escrows.FundEscrow(ctx, e.ID, seller.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, "pending", testutil.GetEscrowStatus(t, db, e.ID))
}

func TestFundEscrow_ConcurrentAttempts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	buyerWallet := testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	testutil.SeedTestWallet(t, db, seller.ID, 0)

	e, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		Title:          "test",
		TotalAmount:    10_000,
		ExpirationDays: 30,
		Milestones:     []escrow.MilestoneInput{{Title: "all", Amount: 10_000}},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.escrows.FundEscrow(ctx, e.ID, buyer.ID)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidState)
			failures++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	// Debited exactly once.
	assert.Equal(t, int64(10_000), testutil.GetWalletBalance(t, db, buyerWallet.ID))
	assert.Equal(t, 1, testutil.CountTransactionLogs(t, db, e.ID))
}

func TestCompleteEscrow_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	sellerWallet := testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000,
		[]escrow.MilestoneInput{{Title: "all", Amount: 10_000}})

	first, err := eng.escrows.CompleteEscrow(ctx, e.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCompleted, first.Status)

	second, err := eng.escrows.CompleteEscrow(ctx, e.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCompleted, second.Status)

	// Seller credited exactly once.
	assert.Equal(t, int64(10_000), testutil.GetWalletBalance(t, db, sellerWallet.ID))
	assert.Equal(t, "settled", testutil.GetPaymentStatus(t, db, *e.FundingPaymentRef))
	assert.Equal(t, 1, testutil.CountEscrowEvents(t, db, e.ID, string(domain.EscrowEventCompleted)))
}

func TestCompleteEscrow_PlatformFee(t *testing.T) {
	db := testutil.SetupTestDB(t)

	treasuryOwner := testutil.SeedTestUser(t, db, "treasury@test.com", "Treasury")
	treasuryWallet := testutil.SeedTestWallet(t, db, treasuryOwner.ID, 0)

	feeRate, err := decimal.NewFromString("0.025")
	require.NoError(t, err)
	eng := setupEngine(t, db, escrow.Config{FeeRate: feeRate, TreasuryWalletID: treasuryWallet.ID})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	sellerWallet := testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000,
		[]escrow.MilestoneInput{{Title: "all", Amount: 10_000}})

	_, err = eng.escrows.CompleteEscrow(ctx, e.ID, buyer.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(9_750), testutil.GetWalletBalance(t, db, sellerWallet.ID))
	assert.Equal(t, int64(250), testutil.GetWalletBalance(t, db, treasuryWallet.ID))
}

func TestCompleteEscrow_PendingIsInvalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)

	e, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		Title:          "test",
		TotalAmount:    10_000,
		ExpirationDays: 30,
		Milestones:     []escrow.MilestoneInput{{Title: "all", Amount: 10_000}},
	})
	require.NoError(t, err)

	_, err = eng.escrows.CompleteEscrow(ctx, e.ID, buyer.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelEscrow_PendingMovesNoFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	buyerWallet := testutil.SeedTestWallet(t, db, buyer.ID, 20_000)

	e, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        buyer.ID,
		SellerID:       seller.ID,
		Title:          "test",
		TotalAmount:    10_000,
		ExpirationDays: 30,
		Milestones:     []escrow.MilestoneInput{{Title: "all", Amount: 10_000}},
	})
	require.NoError(t, err)

	cancelled, err := eng.escrows.CancelEscrow(ctx, e.ID, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(20_000), testutil.GetWalletBalance(t, db, buyerWallet.ID))
	assert.Equal(t, 0, testutil.CountTransactionLogs(t, db, e.ID))
}

func TestCancelEscrow_FundedRefundsBuyer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	buyerWallet := testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	sellerWallet := testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000,
		[]escrow.MilestoneInput{{Title: "all", Amount: 10_000}})
	assert.Equal(t, int64(10_000), testutil.GetWalletBalance(t, db, buyerWallet.ID))

	cancelled, err := eng.escrows.CancelEscrow(ctx, e.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusCancelled, cancelled.Status)

	assert.Equal(t, int64(20_000), testutil.GetWalletBalance(t, db, buyerWallet.ID))
	assert.Equal(t, int64(0), testutil.GetWalletBalance(t, db, sellerWallet.ID))
	assert.Equal(t, "refunded", testutil.GetPaymentStatus(t, db, *e.FundingPaymentRef))
}

func TestCancelEscrow_NonParticipantForbidden(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	stranger := testutil.SeedTestUser(t, db, "stranger@test.com", "Stranger")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000,
		[]escrow.MilestoneInput{{Title: "all", Amount: 10_000}})

	_, err := eng.escrows.CancelEscrow(ctx, e.ID, stranger.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, "funded", testutil.GetEscrowStatus(t, db, e.ID))
}

func TestUpdateMilestone_CompletingLastSettlesEscrow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	sellerWallet := testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000, []escrow.MilestoneInput{
		{Title: "design", Amount: 4_000},
		{Title: "build", Amount: 6_000},
	})

	full, err := eng.escrows.GetEscrowByID(ctx, e.ID, buyer.ID)
	require.NoError(t, err)
	require.Len(t, full.Milestones, 2)

	m1, err := eng.escrows.UpdateMilestone(ctx, e.ID, full.Milestones[0].ID, domain.MilestoneStatusCompleted, buyer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneStatusCompleted, m1.Status)
	assert.Equal(t, "funded", testutil.GetEscrowStatus(t, db, e.ID))
	assert.Equal(t, int64(0), testutil.GetWalletBalance(t, db, sellerWallet.ID))

	m2, err := eng.escrows.UpdateMilestone(ctx, e.ID, full.Milestones[1].ID, domain.MilestoneStatusCompleted, buyer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneStatusCompleted, m2.Status)

	assert.Equal(t, "completed", testutil.GetEscrowStatus(t, db, e.ID))
	assert.Equal(t, int64(10_000), testutil.GetWalletBalance(t, db, sellerWallet.ID))
	assert.Equal(t, "settled", testutil.GetPaymentStatus(t, db, *e.FundingPaymentRef))
}

func TestUpdateMilestone_SellerCannotComplete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000,
		[]escrow.MilestoneInput{{Title: "all", Amount: 10_000}})

	full, err := eng.escrows.GetEscrowByID(ctx, e.ID, buyer.ID)
	require.NoError(t, err)

	_, err = eng.escrows.UpdateMilestone(ctx, e.ID, full.Milestones[0].ID, domain.MilestoneStatusCompleted, seller.ID, "")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdateMilestone_DisputeOpensEscrowDispute(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 20_000)
	testutil.SeedTestWallet(t, db, seller.ID, 0)

	e := createFundedEscrow(t, eng, buyer.ID, seller.ID, 10_000,
		[]escrow.MilestoneInput{{Title: "all", Amount: 10_000}})

	full, err := eng.escrows.GetEscrowByID(ctx, e.ID, buyer.ID)
	require.NoError(t, err)

	m, err := eng.escrows.UpdateMilestone(ctx, e.ID, full.Milestones[0].ID, domain.MilestoneStatusDisputed, buyer.ID, "deliverable rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneStatusDisputed, m.Status)

	assert.Equal(t, "disputed", testutil.GetEscrowStatus(t, db, e.ID))

	disputes, err := eng.disputes.GetDisputesForUser(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	assert.Equal(t, domain.DisputeStatusEvidenceSubmission, disputes[0].Status)
	assert.Equal(t, "deliverable rejected", disputes[0].Reason)
}

func TestProcessScheduledReleases(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := setupEngine(t, db, escrow.Config{})
	ctx := context.Background()

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")
	testutil.SeedTestWallet(t, db, buyer.ID, 50_000)
	sellerWallet := testutil.SeedTestWallet(t, db, seller.ID, 0)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)

	due, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:           buyer.ID,
		SellerID:          seller.ID,
		Title:             "due for release",
		TotalAmount:       10_000,
		ExpirationDays:    30,
		ScheduleReleaseAt: &past,
		Milestones:        []escrow.MilestoneInput{{Title: "all", Amount: 10_000}},
	})
	require.NoError(t, err)
	_, err = eng.escrows.FundEscrow(ctx, due.ID, buyer.ID)
	require.NoError(t, err)

	notDue, err := eng.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:           buyer.ID,
		SellerID:          seller.ID,
		Title:             "not yet due",
		TotalAmount:       5_000,
		ExpirationDays:    30,
		ScheduleReleaseAt: &future,
		Milestones:        []escrow.MilestoneInput{{Title: "all", Amount: 5_000}},
	})
	require.NoError(t, err)
	_, err = eng.escrows.FundEscrow(ctx, notDue.ID, buyer.ID)
	require.NoError(t, err)

	processed, failedCount, err := eng.escrows.ProcessScheduledReleases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, failedCount)

	assert.Equal(t, "completed", testutil.GetEscrowStatus(t, db, due.ID))
	assert.Equal(t, "funded", testutil.GetEscrowStatus(t, db, notDue.ID))
	assert.Equal(t, int64(10_000), testutil.GetWalletBalance(t, db, sellerWallet.ID))
}
