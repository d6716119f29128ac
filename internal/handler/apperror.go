package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrForbidden          = &AppError{http.StatusForbidden, "FORBIDDEN", "You are not allowed to perform this action"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds     = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInvalidState          = &AppError{http.StatusConflict, "INVALID_STATE", "Operation not allowed in the current state"}
	ErrDisputeExists         = &AppError{http.StatusConflict, "DISPUTE_ALREADY_EXISTS", "An active dispute already exists for this escrow"}
	ErrDisputeResolved       = &AppError{http.StatusConflict, "DISPUTE_ALREADY_RESOLVED", "Dispute has already been resolved"}
	ErrEvidenceWindowClosed  = &AppError{http.StatusUnprocessableEntity, "EVIDENCE_WINDOW_CLOSED", "The evidence submission window has closed"}
	ErrNoPendingProposal     = &AppError{http.StatusUnprocessableEntity, "NO_PENDING_PROPOSAL", "No resolution proposal to accept"}
	ErrMilestoneSumMismatch  = &AppError{http.StatusBadRequest, "MILESTONE_SUM_MISMATCH", "Milestone amounts must sum to the escrow total"}
	ErrSplitSumMismatch      = &AppError{http.StatusBadRequest, "SPLIT_SUM_MISMATCH", "Split amounts must sum to the escrow total"}
	ErrWalletNotFound        = &AppError{http.StatusNotFound, "WALLET_NOT_FOUND", "Wallet not found"}
	ErrUserExists            = &AppError{http.StatusConflict, "USER_ALREADY_EXISTS", "A user with this email already exists"}
	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
)
