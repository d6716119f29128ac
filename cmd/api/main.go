package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/seyi-adel/trustvault/internal/config"
	"github.com/seyi-adel/trustvault/internal/handler"
	"github.com/seyi-adel/trustvault/internal/ledger"
	"github.com/seyi-adel/trustvault/internal/logging"
	"github.com/seyi-adel/trustvault/internal/middleware"
	"github.com/seyi-adel/trustvault/internal/notify"
	"github.com/seyi-adel/trustvault/internal/repository"
	"github.com/seyi-adel/trustvault/internal/scheduler"
	"github.com/seyi-adel/trustvault/internal/service/dispute"
	"github.com/seyi-adel/trustvault/internal/service/escrow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("trustvault-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	escrowCfg, err := escrowConfig(cfg)
	if err != nil {
		slog.Error("invalid escrow config", "error", err)
		os.Exit(1)
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
	idempotency := repository.NewIdempotencyRepository(db)

	ledgerSvc := ledger.NewService(wallets, txLogs, db)
	sink := notify.NewLogSink(slog.Default())

	escrowSvc := escrow.NewService(escrows, milestones, payments, users, wallets, events, ledgerSvc, sink, db, escrowCfg)
	disputeSvc := dispute.NewService(disputes, escrows, evidence, messages, payments, wallets, users, events, ledgerSvc, sink, db, dispute.Config{
		EvidenceWindow: time.Duration(cfg.EvidenceWindowDays) * 24 * time.Hour,
	})
	escrowSvc.SetDisputeOpener(disputeSvc)

	runner := scheduler.NewRunner(escrowSvc, disputeSvc, time.Duration(cfg.SweepIntervalM)*time.Minute, slog.Default())
	runner.SetCacheCleaner(idempotency)
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	runner.Start(schedCtx)

	authHandler := handler.NewAuthHandler(users, wallets, cfg.JWTSecret, time.Duration(cfg.JWTExpiryH)*time.Hour)
	walletHandler := handler.NewWalletHandler(wallets, txLogs)
	escrowHandler := handler.NewEscrowHandler(escrowSvc)
	disputeHandler := handler.NewDisputeHandler(disputeSvc)
	healthHandler := handler.NewHealthHandler(db)

	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(cfg.JWTSecret)(h)
	}
	mutating := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(cfg.JWTSecret)(middleware.Idempotency(idempotency)(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("GET /api/v1/wallets/me", authed(walletHandler.Get))
	mux.Handle("GET /api/v1/wallets/me/transactions", authed(walletHandler.ListTransactions))

	mux.Handle("POST /api/v1/escrows", mutating(escrowHandler.Create))
	mux.Handle("GET /api/v1/escrows", authed(escrowHandler.List))
	mux.Handle("GET /api/v1/escrows/{id}", authed(escrowHandler.Get))
	mux.Handle("POST /api/v1/escrows/{id}/fund", mutating(escrowHandler.Fund))
	mux.Handle("POST /api/v1/escrows/{id}/cancel", mutating(escrowHandler.Cancel))
	mux.Handle("PATCH /api/v1/escrows/{id}/milestones/{milestoneID}", mutating(escrowHandler.UpdateMilestone))

	mux.Handle("POST /api/v1/disputes", mutating(disputeHandler.Create))
	mux.Handle("GET /api/v1/disputes", authed(disputeHandler.List))
	mux.Handle("GET /api/v1/disputes/{id}", authed(disputeHandler.Get))
	mux.Handle("POST /api/v1/disputes/{id}/evidence", mutating(disputeHandler.SubmitEvidence))
	mux.Handle("POST /api/v1/disputes/{id}/messages", mutating(disputeHandler.SendMessage))
	mux.Handle("POST /api/v1/disputes/{id}/proposal", mutating(disputeHandler.Propose))
	mux.Handle("POST /api/v1/disputes/{id}/accept", mutating(disputeHandler.Accept))
	mux.Handle("POST /api/v1/admin/disputes/{id}/resolve", mutating(disputeHandler.AdminResolve))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopScheduler()
	runner.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func escrowConfig(cfg *config.Config) (escrow.Config, error) {
	feeRate, err := decimal.NewFromString(cfg.PlatformFeeRate)
	if err != nil {
		return escrow.Config{}, fmt.Errorf("escrowConfig: fee rate: %w", err)
	}

	var treasuryID uuid.UUID
	if cfg.TreasuryWalletID != "" {
		treasuryID, err = uuid.Parse(cfg.TreasuryWalletID)
		if err != nil {
			return escrow.Config{}, fmt.Errorf("escrowConfig: treasury wallet id: %w", err)
		}
	}
	if feeRate.IsPositive() && treasuryID == uuid.Nil {
		return escrow.Config{}, fmt.Errorf("escrowConfig: treasury wallet id required when fee rate > 0")
	}

	return escrow.Config{FeeRate: feeRate, TreasuryWalletID: treasuryID}, nil
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var db *sql.DB
	var err error
	for i := range 30 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		cancel()
		if err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
