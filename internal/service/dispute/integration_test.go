package dispute_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
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

type fixture struct {
	db           *sql.DB
	escrows      *escrow.Service
	disputes     *dispute.Service
	buyer        *domain.User
	seller       *domain.User
	buyerWallet  *domain.Wallet
	sellerWallet *domain.Wallet
}

func int64p(v int64) *int64 { return &v }

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)

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

	escrowSvc := escrow.NewService(escrows, milestones, payments, users, wallets, events, ledgerSvc, sink, db, escrow.Config{})
	disputeSvc := dispute.NewService(disputes, escrows, evidence, messages, payments, wallets, users, events, ledgerSvc, sink, db, dispute.Config{})
	escrowSvc.SetDisputeOpener(disputeSvc)

	buyer := testutil.SeedTestUser(t, db, "buyer@test.com", "Buyer")
	seller := testutil.SeedTestUser(t, db, "seller@test.com", "Seller")

	return &fixture{
		db:           db,
		escrows:      escrowSvc,
		disputes:     disputeSvc,
		buyer:        buyer,
		seller:       seller,
		buyerWallet:  testutil.SeedTestWallet(t, db, buyer.ID, 50_000),
		sellerWallet: testutil.SeedTestWallet(t, db, seller.ID, 0),
	}
}

func (f *fixture) fundedEscrow(t *testing.T, total int64) *domain.Escrow {
	t.Helper()
	ctx := context.Background()

	e, err := f.escrows.CreateEscrow(ctx, escrow.CreateEscrowRequest{
		BuyerID:        f.buyer.ID,
		SellerID:       f.seller.ID,
		Title:          "contested work",
		TotalAmount:    total,
		ExpirationDays: 30,
		Milestones:     []escrow.MilestoneInput{{Title: "all", Amount: total}},
	})
	require.NoError(t, err)

	e, err = f.escrows.FundEscrow(ctx, e.ID, f.buyer.ID)
	require.NoError(t, err)
	return e
}

func (f *fixture) openDispute(t *testing.T, e *domain.Escrow, byID uuid.UUID) *domain.Dispute {
	t.Helper()
	d, err := f.disputes.CreateDispute(context.Background(), e.ID, byID, "work not delivered")
	require.NoError(t, err)
	return d
}

func TestCreateDispute_FreezesEscrow(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)

	d := f.openDispute(t, e, f.seller.ID)

	assert.Equal(t, domain.DisputeStatusEvidenceSubmission, d.Status)
	assert.WithinDuration(t, time.Now().UTC().Add(dispute.DefaultEvidenceWindow), d.EvidenceDeadline, time.Minute)
	assert.Equal(t, "disputed", testutil.GetEscrowStatus(t, f.db, e.ID))

	details, err := f.disputes.GetDisputeDetails(context.Background(), d.ID, f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, details.Messages, 1)
	assert.Equal(t, domain.SystemSenderID, details.Messages[0].SenderID)
}

func TestCreateDispute_OnlyOneActivePerEscrow(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)

	f.openDispute(t, e, f.seller.ID)

	_, err := f.disputes.CreateDispute(context.Background(), e.ID, f.buyer.ID, "second complaint")
	require.ErrorIs(t, err, domain.ErrDisputeExists)
}

func TestCreateDispute_NonParticipantForbidden(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	stranger := testutil.SeedTestUser(t, f.db, "stranger@test.com", "Stranger")

	_, err := f.disputes.CreateDispute(context.Background(), e.ID, stranger.ID, "not my escrow")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateDispute_CompletedEscrowRejected(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	ctx := context.Background()

	_, err := f.escrows.CompleteEscrow(ctx, e.ID, f.buyer.ID)
	require.NoError(t, err)

	_, err = f.disputes.CreateDispute(ctx, e.ID, f.buyer.ID, "too late")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSubmitEvidence_HappyPath(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.buyer.ID)
	ctx := context.Background()

	url := "https://files.test/delivery.png"
	ev, err := f.disputes.SubmitEvidence(ctx, d.ID, f.seller.ID, "proof of delivery", &url)
	require.NoError(t, err)
	assert.Equal(t, f.seller.ID, ev.SubmittedByID)

	details, err := f.disputes.GetDisputeDetails(ctx, d.ID, f.seller.ID)
	require.NoError(t, err)
	require.Len(t, details.Evidence, 1)
	assert.Equal(t, "proof of delivery", details.Evidence[0].Description)
}

func TestSubmitEvidence_AfterDeadlineRejected(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.buyer.ID)
	ctx := context.Background()

	// Past deadline but status still evidence_submission: the deadline
	// check must not depend on the sweep having run.
	testutil.SetEvidenceDeadline(t, f.db, d.ID, time.Now().UTC().Add(-time.Hour))

	_, err := f.disputes.SubmitEvidence(ctx, d.ID, f.seller.ID, "late proof", nil)
	require.ErrorIs(t, err, domain.ErrExpired)
}

func TestSendMessage_TerminalDisputeRejected(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.buyer.ID)
	ctx := context.Background()

	_, err := f.disputes.SendMessage(ctx, d.ID, f.seller.ID, "let's talk")
	require.NoError(t, err)

	_, err = f.disputes.ProposeResolution(ctx, d.ID, f.buyer.ID, domain.ResolutionRefundToBuyer, nil, nil)
	require.NoError(t, err)
	_, err = f.disputes.AcceptResolution(ctx, d.ID, f.seller.ID)
	require.NoError(t, err)

	_, err = f.disputes.SendMessage(ctx, d.ID, f.seller.ID, "too late")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestProcessExpiredEvidenceDeadlines(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.buyer.ID)
	ctx := context.Background()

	testutil.SetEvidenceDeadline(t, f.db, d.ID, time.Now().UTC().Add(-time.Hour))

	processed, failed, err := f.disputes.ProcessExpiredEvidenceDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, failed)

	details, err := f.disputes.GetDisputeDetails(ctx, d.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusUnderReview, details.Dispute.Status)
	assert.Equal(t, 1, testutil.CountEscrowEvents(t, f.db, e.ID, string(domain.EscrowEventDisputeEscalated)))

	// A second sweep finds nothing to escalate.
	processed, failed, err = f.disputes.ProcessExpiredEvidenceDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 0, failed)
}

func TestProposeAndAccept_SettlesSplit(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.buyer.ID)
	ctx := context.Background()

	assert.Equal(t, int64(40_000), testutil.GetWalletBalance(t, f.db, f.buyerWallet.ID))

	_, err := f.disputes.ProposeResolution(ctx, d.ID, f.buyer.ID, domain.ResolutionSplit, int64p(4_000), int64p(6_000))
	require.NoError(t, err)

	// No funds move on proposal.
	assert.Equal(t, int64(40_000), testutil.GetWalletBalance(t, f.db, f.buyerWallet.ID))
	assert.Equal(t, int64(0), testutil.GetWalletBalance(t, f.db, f.sellerWallet.ID))

	resolved, err := f.disputes.AcceptResolution(ctx, d.ID, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusMutuallyResolved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, domain.ResolutionSplit, *resolved.Resolution)

	assert.Equal(t, int64(44_000), testutil.GetWalletBalance(t, f.db, f.buyerWallet.ID))
	assert.Equal(t, int64(6_000), testutil.GetWalletBalance(t, f.db, f.sellerWallet.ID))
	assert.Equal(t, "completed", testutil.GetEscrowStatus(t, f.db, e.ID))
	assert.Equal(t, "settled", testutil.GetPaymentStatus(t, f.db, *e.FundingPaymentRef))
	assert.Equal(t, 2, testutil.CountTransactionLogs(t, f.db, d.ID))
}

func TestAcceptResolution_ProposerCannotAccept(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.buyer.ID)
	ctx := context.Background()

	_, err := f.disputes.ProposeResolution(ctx, d.ID, f.buyer.ID, domain.ResolutionRefundToBuyer, nil, nil)
	require.NoError(t, err)

	_, err = f.disputes.AcceptResolution(ctx, d.ID, f.buyer.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAcceptResolution_WithoutProposal(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.buyer.ID)

	_, err := f.disputes.AcceptResolution(context.Background(), d.ID, f.seller.ID)
	require.ErrorIs(t, err, domain.ErrNoProposal)
}

func TestResolveByAdmin_Split(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.seller.ID)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, f.db, "admin@test.com", "Admin")

	resolved, err := f.disputes.ResolveByAdmin(ctx, d.ID, admin.ID, domain.ResolutionSplit, int64p(6_000), int64p(4_000), "partial delivery verified")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusResolvedByAdmin, resolved.Status)

	assert.Equal(t, int64(46_000), testutil.GetWalletBalance(t, f.db, f.buyerWallet.ID))
	assert.Equal(t, int64(4_000), testutil.GetWalletBalance(t, f.db, f.sellerWallet.ID))
	assert.Equal(t, "completed", testutil.GetEscrowStatus(t, f.db, e.ID))

	details, err := f.disputes.GetDisputeDetails(ctx, d.ID, admin.ID)
	require.NoError(t, err)
	var foundNotes bool
	for _, m := range details.Messages {
		if m.SenderID == domain.SystemSenderID && m.Body == "Admin resolution notes: partial delivery verified" {
			foundNotes = true
		}
	}
	assert.True(t, foundNotes)
}

func TestResolveByAdmin_MemberForbidden(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.seller.ID)

	_, err := f.disputes.ResolveByAdmin(context.Background(), d.ID, f.buyer.ID, domain.ResolutionRefundToBuyer, nil, nil, "")
	require.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, "disputed", testutil.GetEscrowStatus(t, f.db, e.ID))
}

func TestResolveByAdmin_AlreadyResolved(t *testing.T) {
	f := setupFixture(t)
	e := f.fundedEscrow(t, 10_000)
	d := f.openDispute(t, e, f.seller.ID)
	ctx := context.Background()

	admin := testutil.SeedAdmin(t, f.db, "admin@test.com", "Admin")

	_, err := f.disputes.ResolveByAdmin(ctx, d.ID, admin.ID, domain.ResolutionRefundToBuyer, nil, nil, "")
	require.NoError(t, err)

	_, err = f.disputes.ResolveByAdmin(ctx, d.ID, admin.ID, domain.ResolutionReleaseToSeller, nil, nil, "")
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// The first resolution's effects stand.
	assert.Equal(t, int64(50_000), testutil.GetWalletBalance(t, f.db, f.buyerWallet.ID))
	assert.Equal(t, int64(0), testutil.GetWalletBalance(t, f.db, f.sellerWallet.ID))
}
