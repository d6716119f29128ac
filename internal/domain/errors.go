package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrForbidden         = errors.New("caller is not allowed to perform this action")
	ErrInvalidState      = errors.New("operation not valid for current status")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrMilestoneSum      = errors.New("milestone amounts must sum to escrow total")
	ErrSplitSum          = errors.New("split amounts must sum to escrow total")
	ErrExpired           = errors.New("deadline has passed")
	ErrAlreadyResolved   = errors.New("dispute already resolved")
	ErrDisputeExists     = errors.New("escrow already has an active dispute")
	ErrNoProposal        = errors.New("dispute has no pending proposal")
	ErrVersionConflict   = errors.New("optimistic lock conflict")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUserExists        = errors.New("user already exists")
)
