package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/auth"
	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/logging"
)

type walletReader interface {
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
}

type transactionLogReader interface {
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.TransactionLogEntry, int, error)
}

type WalletHandler struct {
	wallets walletReader
	logs    transactionLogReader
}

func NewWalletHandler(wallets walletReader, logs transactionLogReader) *WalletHandler {
	return &WalletHandler{wallets: wallets, logs: logs}
}

type walletDTO struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Balance   int64     `json:"balance"`
	Available int64     `json:"available"`
	CreatedAt time.Time `json:"created_at"`
}

type transactionDTO struct {
	ID              uuid.UUID `json:"id"`
	Type            string    `json:"type"`
	Direction       string    `json:"direction"`
	Amount          int64     `json:"amount"`
	BalanceBefore   int64     `json:"balance_before"`
	BalanceAfter    int64     `json:"balance_after"`
	RelatedEntityID uuid.UUID `json:"related_entity_id"`
	CreatedAt       time.Time `json:"created_at"`
}

func toTransactionDTO(e *domain.TransactionLogEntry) transactionDTO {
	return transactionDTO{
		ID:              e.ID,
		Type:            string(e.Type),
		Direction:       string(e.Direction),
		Amount:          e.Amount,
		BalanceBefore:   e.BalanceBefore,
		BalanceAfter:    e.BalanceAfter,
		RelatedEntityID: e.RelatedEntityID,
		CreatedAt:       e.CreatedAt,
	}
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	wallet, err := h.wallets.GetByOwnerID(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("wallet lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, walletDTO{
		ID:        wallet.ID,
		OwnerID:   wallet.OwnerID,
		Balance:   wallet.Balance,
		Available: wallet.Available(),
		CreatedAt: wallet.CreatedAt,
	})
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	wallet, err := h.wallets.GetByOwnerID(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.logs.ListByWallet(r.Context(), wallet.ID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("transaction listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(entries))
	for i := range entries {
		dtos[i] = toTransactionDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"transactions": dtos,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
