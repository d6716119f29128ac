// The sweeper runs the scheduled-release and evidence-deadline sweeps
// outside the API process. With -once it runs a single pass and exits;
// otherwise it ticks at the configured interval until signalled.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seyi-adel/trustvault/internal/config"
	"github.com/seyi-adel/trustvault/internal/ledger"
	"github.com/seyi-adel/trustvault/internal/logging"
	"github.com/seyi-adel/trustvault/internal/notify"
	"github.com/seyi-adel/trustvault/internal/repository"
	"github.com/seyi-adel/trustvault/internal/scheduler"
	"github.com/seyi-adel/trustvault/internal/service/dispute"
	"github.com/seyi-adel/trustvault/internal/service/escrow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("trustvault-sweeper", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	feeRate, err := decimal.NewFromString(cfg.PlatformFeeRate)
	if err != nil {
		slog.Error("invalid fee rate", "error", err)
		os.Exit(1)
	}
	var treasuryID uuid.UUID
	if cfg.TreasuryWalletID != "" {
		treasuryID, err = uuid.Parse(cfg.TreasuryWalletID)
		if err != nil {
			slog.Error("invalid treasury wallet id", "error", err)
			os.Exit(1)
		}
	}

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

	escrowSvc := escrow.NewService(escrows, milestones, payments, users, wallets, events, ledgerSvc, sink, db, escrow.Config{
		FeeRate:          feeRate,
		TreasuryWalletID: treasuryID,
	})
	disputeSvc := dispute.NewService(disputes, escrows, evidence, messages, payments, wallets, users, events, ledgerSvc, sink, db, dispute.Config{
		EvidenceWindow: time.Duration(cfg.EvidenceWindowDays) * 24 * time.Hour,
	})
	escrowSvc.SetDisputeOpener(disputeSvc)

	runner := scheduler.NewRunner(escrowSvc, disputeSvc, time.Duration(cfg.SweepIntervalM)*time.Minute, slog.Default())
	runner.SetCacheCleaner(repository.NewIdempotencyRepository(db))

	if *once {
		runner.RunOnce(context.Background())
		return
	}

	runCtx, stop := context.WithCancel(context.Background())
	runner.Start(runCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down sweeper")
	stop()
	runner.Wait()
}
