package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cadencehq/cadence/internal/api"
	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/service"
)

// maxBatchSize bounds one enrollment request.
const maxBatchSize = 1000

type EnrollmentService interface {
	EnrollBatch(ctx context.Context, inputs []service.EnrollContactInput) []service.EnrollResult
}

type EnrollmentHandler struct {
	svc EnrollmentService
}

func NewEnrollmentHandler(svc EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{svc: svc}
}

type EnrollContactRequest struct {
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	Organization string            `json:"organization"`
	Role         string            `json:"role"`
	Attributes   map[string]string `json:"attributes"`
}

type EnrollRequest struct {
	Contacts []EnrollContactRequest `json:"contacts"`
}

type EnrollResultResponse struct {
	Email     string `json:"email"`
	ContactID string `json:"contact_id,omitempty"`
	StateID   string `json:"state_id,omitempty"`
	Enrolled  bool   `json:"enrolled"`
	Error     string `json:"error,omitempty"`
}

type EnrollResponse struct {
	Enrolled int                    `json:"enrolled"`
	Failed   int                    `json:"failed"`
	Results  []EnrollResultResponse `json:"results"`
}

// Enroll ingests a batch of contacts. Records fail independently; the
// response reports per-record results alongside the totals.
func (h *EnrollmentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Contacts) == 0 {
		api.Error(w, http.StatusBadRequest, "contacts is required")
		return
	}
	if len(req.Contacts) > maxBatchSize {
		api.Error(w, http.StatusBadRequest, "too many contacts in one batch")
		return
	}

	inputs := make([]service.EnrollContactInput, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		attrs := make(domain.Attributes, len(c.Attributes))
		for k, v := range c.Attributes {
			attrs[domain.AttrKey(k)] = v
		}
		inputs = append(inputs, service.EnrollContactInput{
			Email:        c.Email,
			Name:         c.Name,
			Organization: c.Organization,
			Role:         c.Role,
			Attributes:   attrs,
		})
	}

	results := h.svc.EnrollBatch(r.Context(), inputs)

	resp := EnrollResponse{Results: make([]EnrollResultResponse, 0, len(results))}
	for _, res := range results {
		out := EnrollResultResponse{
			Email:     res.Email,
			ContactID: res.ContactID,
			StateID:   res.StateID,
			Enrolled:  res.Enrolled,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
			resp.Failed++
		} else {
			resp.Enrolled++
		}
		resp.Results = append(resp.Results, out)
	}

	api.Success(w, http.StatusOK, resp)
}
