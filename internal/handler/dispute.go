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
	"github.com/seyi-adel/trustvault/internal/service/dispute"
)

type disputeService interface {
	CreateDispute(ctx context.Context, escrowID, createdByID uuid.UUID, reason string) (*domain.Dispute, error)
	SubmitEvidence(ctx context.Context, disputeID, submittedByID uuid.UUID, description string, fileURL *string) (*domain.Evidence, error)
	SendMessage(ctx context.Context, disputeID, senderID uuid.UUID, body string) (*domain.DisputeMessage, error)
	ProposeResolution(ctx context.Context, disputeID, proposedByID uuid.UUID, resolution domain.DisputeResolution, buyerAmount, sellerAmount *int64) (*domain.Dispute, error)
	AcceptResolution(ctx context.Context, disputeID, acceptedByID uuid.UUID) (*domain.Dispute, error)
	ResolveByAdmin(ctx context.Context, disputeID, reviewedByID uuid.UUID, resolution domain.DisputeResolution, buyerAmount, sellerAmount *int64, notes string) (*domain.Dispute, error)
	GetDisputeDetails(ctx context.Context, disputeID, callerID uuid.UUID) (*dispute.Details, error)
	GetDisputesForUser(ctx context.Context, userID uuid.UUID) ([]domain.Dispute, error)
}

type DisputeHandler struct {
	disputes disputeService
}

func NewDisputeHandler(disputes disputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

type createDisputeRequest struct {
	EscrowID string `json:"escrow_id"`
	Reason   string `json:"reason"`
}

func (r createDisputeRequest) Validate() []FieldError {
	var errs []FieldError
	if r.EscrowID == "" {
		errs = append(errs, FieldError{Field: "escrow_id", Message: "required"})
	} else if _, err := uuid.Parse(r.EscrowID); err != nil {
		errs = append(errs, FieldError{Field: "escrow_id", Message: "must be a valid uuid"})
	}
	if r.Reason == "" {
		errs = append(errs, FieldError{Field: "reason", Message: "required"})
	}
	return errs
}

type submitEvidenceRequest struct {
	Description string  `json:"description"`
	FileURL     *string `json:"file_url"`
}

func (r submitEvidenceRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Description == "" {
		errs = append(errs, FieldError{Field: "description", Message: "required"})
	}
	return errs
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (r sendMessageRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Body == "" {
		errs = append(errs, FieldError{Field: "body", Message: "required"})
	}
	return errs
}

type resolutionRequest struct {
	Resolution   string `json:"resolution"`
	BuyerAmount  *int64 `json:"buyer_amount"`
	SellerAmount *int64 `json:"seller_amount"`
	Notes        string `json:"notes"`
}

func (r resolutionRequest) Validate() []FieldError {
	var errs []FieldError
	if !domain.DisputeResolution(r.Resolution).IsValid() {
		errs = append(errs, FieldError{Field: "resolution", Message: "must be release_to_seller, refund_to_buyer, or split"})
	}
	if domain.DisputeResolution(r.Resolution) == domain.ResolutionSplit {
		if r.BuyerAmount == nil {
			errs = append(errs, FieldError{Field: "buyer_amount", Message: "required for split"})
		}
		if r.SellerAmount == nil {
			errs = append(errs, FieldError{Field: "seller_amount", Message: "required for split"})
		}
	}
	return errs
}

type proposalDTO struct {
	Resolution   string    `json:"resolution"`
	BuyerAmount  *int64    `json:"buyer_amount,omitempty"`
	SellerAmount *int64    `json:"seller_amount,omitempty"`
	ProposedByID uuid.UUID `json:"proposed_by_id"`
}

type resolutionDTO struct {
	Resolution   string    `json:"resolution"`
	BuyerAmount  int64     `json:"buyer_amount"`
	SellerAmount int64     `json:"seller_amount"`
	ResolvedByID uuid.UUID `json:"resolved_by_id"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

type disputeDTO struct {
	ID               uuid.UUID      `json:"id"`
	EscrowID         uuid.UUID      `json:"escrow_id"`
	CreatedByID      uuid.UUID      `json:"created_by_id"`
	Reason           string         `json:"reason"`
	Status           string         `json:"status"`
	EvidenceDeadline time.Time      `json:"evidence_deadline"`
	Proposal         *proposalDTO   `json:"proposal,omitempty"`
	Resolution       *resolutionDTO `json:"resolution,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type evidenceDTO struct {
	ID            uuid.UUID `json:"id"`
	SubmittedByID uuid.UUID `json:"submitted_by_id"`
	Description   string    `json:"description"`
	FileURL       *string   `json:"file_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type messageDTO struct {
	ID        uuid.UUID `json:"id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type disputeDetailsDTO struct {
	Dispute  disputeDTO   `json:"dispute"`
	Evidence []evidenceDTO `json:"evidence"`
	Messages []messageDTO  `json:"messages"`
}

func toDisputeDTO(d *domain.Dispute) disputeDTO {
	dto := disputeDTO{
		ID:               d.ID,
		EscrowID:         d.EscrowID,
		CreatedByID:      d.CreatedByID,
		Reason:           d.Reason,
		Status:           string(d.Status),
		EvidenceDeadline: d.EvidenceDeadline,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.ProposedResolution != nil && d.ProposedByID != nil {
		dto.Proposal = &proposalDTO{
			Resolution:   string(*d.ProposedResolution),
			BuyerAmount:  d.ProposedBuyerAmount,
			SellerAmount: d.ProposedSellerAmount,
			ProposedByID: *d.ProposedByID,
		}
	}
	if d.Resolution != nil && d.ResolvedByID != nil && d.ResolvedAt != nil && d.BuyerAmount != nil && d.SellerAmount != nil {
		dto.Resolution = &resolutionDTO{
			Resolution:   string(*d.Resolution),
			BuyerAmount:  *d.BuyerAmount,
			SellerAmount: *d.SellerAmount,
			ResolvedByID: *d.ResolvedByID,
			ResolvedAt:   *d.ResolvedAt,
		}
	}
	return dto
}

func (h *DisputeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	escrowID, _ := uuid.Parse(req.EscrowID)

	d, err := h.disputes.CreateDispute(r.Context(), escrowID, userID, req.Reason)
	if err != nil {
		logging.FromContext(r.Context()).Warn("dispute creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/disputes/%s", d.ID))
	RespondSuccess(w, http.StatusCreated, toDisputeDTO(d))
}

func (h *DisputeHandler) SubmitEvidence(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	disputeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req submitEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	ev, err := h.disputes.SubmitEvidence(r.Context(), disputeID, userID, req.Description, req.FileURL)
	if err != nil {
		logging.FromContext(r.Context()).Warn("evidence submission failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, evidenceDTO{
		ID:            ev.ID,
		SubmittedByID: ev.SubmittedByID,
		Description:   ev.Description,
		FileURL:       ev.FileURL,
		CreatedAt:     ev.CreatedAt,
	})
}

func (h *DisputeHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	disputeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	m, err := h.disputes.SendMessage(r.Context(), disputeID, userID, req.Body)
	if err != nil {
		logging.FromContext(r.Context()).Warn("dispute message failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, messageDTO{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	})
}

func (h *DisputeHandler) Propose(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	disputeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req resolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	d, err := h.disputes.ProposeResolution(r.Context(), disputeID, userID, domain.DisputeResolution(req.Resolution), req.BuyerAmount, req.SellerAmount)
	if err != nil {
		logging.FromContext(r.Context()).Warn("resolution proposal failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toDisputeDTO(d))
}

func (h *DisputeHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	disputeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	d, err := h.disputes.AcceptResolution(r.Context(), disputeID, userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("resolution acceptance failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toDisputeDTO(d))
}

func (h *DisputeHandler) AdminResolve(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	disputeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req resolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	d, err := h.disputes.ResolveByAdmin(r.Context(), disputeID, userID, domain.DisputeResolution(req.Resolution), req.BuyerAmount, req.SellerAmount, req.Notes)
	if err != nil {
		logging.FromContext(r.Context()).Warn("admin resolution failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toDisputeDTO(d))
}

func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	disputeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	details, err := h.disputes.GetDisputeDetails(r.Context(), disputeID, userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dto := disputeDetailsDTO{
		Dispute:  toDisputeDTO(details.Dispute),
		Evidence: make([]evidenceDTO, len(details.Evidence)),
		Messages: make([]messageDTO, len(details.Messages)),
	}
	for i, ev := range details.Evidence {
		dto.Evidence[i] = evidenceDTO{
			ID:            ev.ID,
			SubmittedByID: ev.SubmittedByID,
			Description:   ev.Description,
			FileURL:       ev.FileURL,
			CreatedAt:     ev.CreatedAt,
		}
	}
	for i, m := range details.Messages {
		dto.Messages[i] = messageDTO{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, dto)
}

func (h *DisputeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	disputes, err := h.disputes.GetDisputesForUser(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("dispute listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]disputeDTO, len(disputes))
	for i := range disputes {
		dtos[i] = toDisputeDTO(&disputes[i])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}
