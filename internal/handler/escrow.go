package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/auth"
	"github.com/seyi-adel/trustvault/internal/domain"
	"github.com/seyi-adel/trustvault/internal/logging"
	"github.com/seyi-adel/trustvault/internal/service/escrow"
)

type escrowService interface {
	CreateEscrow(ctx context.Context, req escrow.CreateEscrowRequest) (*domain.Escrow, error)
	FundEscrow(ctx context.Context, escrowID, callerID uuid.UUID) (*domain.Escrow, error)
	CancelEscrow(ctx context.Context, escrowID, callerID uuid.UUID) (*domain.Escrow, error)
	UpdateMilestone(ctx context.Context, escrowID, milestoneID uuid.UUID, newStatus domain.MilestoneStatus, callerID uuid.UUID, reason string) (*domain.Milestone, error)
	GetEscrowByID(ctx context.Context, escrowID, callerID uuid.UUID) (*domain.Escrow, error)
	GetEscrowsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Escrow, error)
}

type EscrowHandler struct {
	escrows escrowService
}

func NewEscrowHandler(escrows escrowService) *EscrowHandler {
	return &EscrowHandler{escrows: escrows}
}

type milestoneInput struct {
	Title  string `json:"title"`
	Amount int64  `json:"amount"`
}

type createEscrowRequest struct {
	SellerID          string           `json:"seller_id"`
	Title             string           `json:"title"`
	TotalAmount       int64            `json:"total_amount"`
	ExpirationDays    int              `json:"expiration_days"`
	ScheduleReleaseAt *time.Time       `json:"schedule_release_at"`
	Milestones        []milestoneInput `json:"milestones"`
}

func (r createEscrowRequest) Validate() []FieldError {
	var errs []FieldError

	if r.SellerID == "" {
		errs = append(errs, FieldError{Field: "seller_id", Message: "required"})
	} else if _, err := uuid.Parse(r.SellerID); err != nil {
		errs = append(errs, FieldError{Field: "seller_id", Message: "must be a valid uuid"})
	}

	if r.Title == "" {
		errs = append(errs, FieldError{Field: "title", Message: "required"})
	}

	if r.TotalAmount <= 0 {
		errs = append(errs, FieldError{Field: "total_amount", Message: "must be greater than 0"})
	}

	if r.ExpirationDays <= 0 {
		errs = append(errs, FieldError{Field: "expiration_days", Message: "must be greater than 0"})
	}

	if len(r.Milestones) == 0 {
		errs = append(errs, FieldError{Field: "milestones", Message: "at least one milestone required"})
	}
	for i, m := range r.Milestones {
		if m.Title == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("milestones[%d].title", i), Message: "required"})
		}
		if m.Amount <= 0 {
			errs = append(errs, FieldError{Field: fmt.Sprintf("milestones[%d].amount", i), Message: "must be greater than 0"})
		}
	}

	return errs
}

type updateMilestoneRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (r updateMilestoneRequest) Validate() []FieldError {
	var errs []FieldError
	switch domain.MilestoneStatus(r.Status) {
	case domain.MilestoneStatusCompleted:
	case domain.MilestoneStatusDisputed:
		if r.Reason == "" {
			errs = append(errs, FieldError{Field: "reason", Message: "required when disputing"})
		}
	default:
		errs = append(errs, FieldError{Field: "status", Message: "must be completed or disputed"})
	}
	return errs
}

type milestoneDTO struct {
	ID          uuid.UUID  `json:"id"`
	Sequence    int        `json:"sequence"`
	Title       string     `json:"title"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type escrowDTO struct {
	ID                uuid.UUID      `json:"id"`
	BuyerID           uuid.UUID      `json:"buyer_id"`
	SellerID          uuid.UUID      `json:"seller_id"`
	Title             string         `json:"title"`
	TotalAmount       int64          `json:"total_amount"`
	Status            string         `json:"status"`
	ExpiresAt         time.Time      `json:"expires_at"`
	ScheduleReleaseAt *time.Time     `json:"schedule_release_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Milestones        []milestoneDTO `json:"milestones,omitempty"`
}

func toMilestoneDTO(m *domain.Milestone) milestoneDTO {
	return milestoneDTO{
		ID:          m.ID,
		Sequence:    m.Sequence,
		Title:       m.Title,
		Amount:      m.Amount,
		Status:      string(m.Status),
		CompletedAt: m.CompletedAt,
	}
}

func toEscrowDTO(e *domain.Escrow) escrowDTO {
	dto := escrowDTO{
		ID:                e.ID,
		BuyerID:           e.BuyerID,
		SellerID:          e.SellerID,
		Title:             e.Title,
		TotalAmount:       e.TotalAmount,
		Status:            string(e.Status),
		ExpiresAt:         e.ExpiresAt,
		ScheduleReleaseAt: e.ScheduleReleaseAt,
		CreatedAt:         e.CreatedAt,
		CompletedAt:       e.CompletedAt,
	}
	for i := range e.Milestones {
		dto.Milestones = append(dto.Milestones, toMilestoneDTO(&e.Milestones[i]))
	}
	return dto
}

func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	sellerID, _ := uuid.Parse(req.SellerID)

	milestones := make([]escrow.MilestoneInput, len(req.Milestones))
	for i, m := range req.Milestones {
		milestones[i] = escrow.MilestoneInput{Title: m.Title, Amount: m.Amount}
	}

	e, err := h.escrows.CreateEscrow(r.Context(), escrow.CreateEscrowRequest{
		BuyerID:           userID,
		SellerID:          sellerID,
		Title:             req.Title,
		TotalAmount:       req.TotalAmount,
		ExpirationDays:    req.ExpirationDays,
		ScheduleReleaseAt: req.ScheduleReleaseAt,
		Milestones:        milestones,
	})
	if err != nil {
		log.Warn("escrow creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/escrows/%s", e.ID))
	RespondSuccess(w, http.StatusCreated, toEscrowDTO(e))
}

func (h *EscrowHandler) Fund(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	escrowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	e, err := h.escrows.FundEscrow(r.Context(), escrowID, userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("escrow funding failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toEscrowDTO(e))
}

func (h *EscrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	escrowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	e, err := h.escrows.CancelEscrow(r.Context(), escrowID, userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("escrow cancellation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toEscrowDTO(e))
}

func (h *EscrowHandler) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	escrowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}
	milestoneID, err := uuid.Parse(r.PathValue("milestoneID"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req updateMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	m, err := h.escrows.UpdateMilestone(r.Context(), escrowID, milestoneID, domain.MilestoneStatus(req.Status), userID, req.Reason)
	if err != nil {
		logging.FromContext(r.Context()).Warn("milestone update failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toMilestoneDTO(m))
}

func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	escrowID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	e, err := h.escrows.GetEscrowByID(r.Context(), escrowID, userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toEscrowDTO(e))
}

func (h *EscrowHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	escrows, err := h.escrows.GetEscrowsByUser(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("escrow listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]escrowDTO, len(escrows))
	for i := range escrows {
		dtos[i] = toEscrowDTO(&escrows[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
