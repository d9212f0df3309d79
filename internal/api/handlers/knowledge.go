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

type KnowledgeService interface {
	Create(ctx context.Context, input service.CreateKnowledgeInput) (*domain.Knowledge, error)
	GetByID(ctx context.Context, id string) (*domain.Knowledge, error)
	Update(ctx context.Context, input service.UpdateKnowledgeInput) (*domain.Knowledge, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, input service.ListKnowledgeInput) (*service.ListKnowledgeOutput, error)
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type KnowledgeRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type KnowledgeResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func knowledgeToResponse(k *domain.Knowledge) *KnowledgeResponse {
	return &KnowledgeResponse{
		ID:        k.ID,
		Title:     k.Title,
		Body:      k.Body,
		CreatedAt: k.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt: k.UpdatedAt.UTC().Format(timeLayout),
	}
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req KnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Body == "" {
		api.Error(w, http.StatusBadRequest, "body is required")
		return
	}

	knowledge, err := h.svc.Create(r.Context(), service.CreateKnowledgeInput{
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, knowledgeToResponse(knowledge))
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	knowledge, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(knowledge))
}

func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req KnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	knowledge, err := h.svc.Update(r.Context(), service.UpdateKnowledgeInput{
		KnowledgeID: id,
		Title:       req.Title,
		Body:        req.Body,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, knowledgeToResponse(knowledge))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}

type KnowledgeListResponse struct {
	Items   []*KnowledgeResponse `json:"items"`
	Cursor  string               `json:"cursor,omitempty"`
	HasMore bool                 `json:"has_more"`
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context(), service.ListKnowledgeInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  parseIntQuery(r, "limit", 20),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := KnowledgeListResponse{
		Items:   make([]*KnowledgeResponse, 0, len(out.Items)),
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	}
	for _, k := range out.Items {
		resp.Items = append(resp.Items, knowledgeToResponse(k))
	}

	api.Success(w, http.StatusOK, resp)
}
