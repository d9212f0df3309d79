package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cadencehq/cadence/internal/api"
	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/go-chi/chi/v5"
)

type SuppressionService interface {
	Suppress(ctx context.Context, input service.SuppressInput) (*domain.SuppressionRecord, error)
	Get(ctx context.Context, email string) (*domain.SuppressionRecord, error)
	List(ctx context.Context, limit int) ([]*domain.SuppressionRecord, error)
}

type SuppressionHandler struct {
	svc SuppressionService
}

func NewSuppressionHandler(svc SuppressionService) *SuppressionHandler {
	return &SuppressionHandler{svc: svc}
}

type SuppressRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

type SuppressionResponse struct {
	Email     string `json:"email"`
	Reason    string `json:"reason"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"created_at"`
}

func suppressionToResponse(rec *domain.SuppressionRecord) *SuppressionResponse {
	return &SuppressionResponse{
		Email:     rec.Email,
		Reason:    string(rec.Reason),
		Source:    rec.Source,
		CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// Create registers a suppression and halts any active sequence for the
// address. Unsubscribes and provider complaint callbacks land here.
func (h *SuppressionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SuppressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		api.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	reason := domain.SuppressionReason(req.Reason)
	if req.Reason == "" {
		reason = domain.SuppressionReasonManual
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	rec, err := h.svc.Suppress(r.Context(), service.SuppressInput{
		Email:  req.Email,
		Reason: reason,
		Source: source,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, suppressionToResponse(rec))
}

func (h *SuppressionHandler) Get(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		api.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	rec, err := h.svc.Get(r.Context(), email)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, suppressionToResponse(rec))
}

func (h *SuppressionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 100)

	records, err := h.svc.List(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*SuppressionResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, suppressionToResponse(rec))
	}

	api.Success(w, http.StatusOK, resp)
}
