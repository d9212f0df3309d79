package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cadencehq/cadence/internal/api"
	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/go-chi/chi/v5"
)

type StatusService interface {
	GetByContactID(ctx context.Context, contactID string) (*service.ContactStatus, error)
	GetByEmail(ctx context.Context, email string) (*service.ContactStatus, error)
	ListHistory(ctx context.Context, input service.ListHistoryInput) (*service.ListHistoryOutput, error)
	ScoreContact(ctx context.Context, contactID string) (int, service.ScoreBreakdown, error)
	Counts(ctx context.Context) (map[domain.SequenceStatus]int, error)
}

// SequenceControl covers the operator overrides on a progression.
type SequenceControl interface {
	Pause(ctx context.Context, stateID string) error
	Resume(ctx context.Context, stateID string) error
}

type ContactHandler struct {
	svc     StatusService
	control SequenceControl
}

func NewContactHandler(svc StatusService, control SequenceControl) *ContactHandler {
	return &ContactHandler{svc: svc, control: control}
}

type ContactStatusResponse struct {
	ContactID    string            `json:"contact_id"`
	Email        string            `json:"email"`
	Name         string            `json:"name,omitempty"`
	Organization string            `json:"organization,omitempty"`
	Role         string            `json:"role,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Status       string            `json:"status,omitempty"`
	StepIndex    int               `json:"step_index"`
	Attempts     int               `json:"attempts"`
	EnrolledAt   string            `json:"enrolled_at,omitempty"`
	LastSentAt   string            `json:"last_sent_at,omitempty"`
	NextDueAt    string            `json:"next_due_at,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05Z"

func statusToResponse(st *service.ContactStatus) *ContactStatusResponse {
	resp := &ContactStatusResponse{
		ContactID:    st.Contact.ID,
		Email:        st.Contact.Email,
		Name:         st.Contact.Name,
		Organization: st.Contact.Organization,
		Role:         st.Contact.Role,
		Status:       string(st.Status),
		StepIndex:    st.StepIndex,
		Attempts:     st.Attempts,
	}

	if len(st.Contact.Attributes) > 0 {
		resp.Attributes = make(map[string]string, len(st.Contact.Attributes))
		for k, v := range st.Contact.Attributes {
			resp.Attributes[string(k)] = v
		}
	}
	if !st.EnrolledAt.IsZero() {
		resp.EnrolledAt = st.EnrolledAt.UTC().Format(timeLayout)
	}
	if st.LastSentAt != nil {
		resp.LastSentAt = st.LastSentAt.UTC().Format(timeLayout)
	}
	if st.NextDueAt != nil {
		resp.NextDueAt = st.NextDueAt.UTC().Format(timeLayout)
	}

	return resp
}

// Get returns the progression snapshot for a contact. The path parameter
// accepts either a contact ID or an email address.
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "contact id is required")
		return
	}

	var (
		st  *service.ContactStatus
		err error
	)
	if isEmail(id) {
		st, err = h.svc.GetByEmail(r.Context(), id)
	} else {
		st, err = h.svc.GetByContactID(r.Context(), id)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, statusToResponse(st))
}

type StepRecordResponse struct {
	ID         string `json:"id"`
	StepIndex  int    `json:"step_index"`
	Attempt    int    `json:"attempt"`
	Subject    string `json:"subject,omitempty"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	ArchiveKey string `json:"archive_key,omitempty"`
	SentAt     string `json:"sent_at"`
}

type HistoryResponse struct {
	Items   []*StepRecordResponse `json:"items"`
	Cursor  string                `json:"cursor,omitempty"`
	HasMore bool                  `json:"has_more"`
}

// History returns a contact's send history, newest first.
func (h *ContactHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "contact id is required")
		return
	}

	out, err := h.svc.ListHistory(r.Context(), service.ListHistoryInput{
		ContactID: id,
		Cursor:    r.URL.Query().Get("cursor"),
		Limit:     parseIntQuery(r, "limit", 20),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := HistoryResponse{
		Items:   make([]*StepRecordResponse, 0, len(out.Items)),
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	}
	for _, rec := range out.Items {
		resp.Items = append(resp.Items, &StepRecordResponse{
			ID:         rec.ID,
			StepIndex:  rec.StepIndex,
			Attempt:    rec.Attempt,
			Subject:    rec.Subject,
			Outcome:    string(rec.Outcome),
			Detail:     rec.Detail,
			ArchiveKey: rec.ArchiveKey,
			SentAt:     rec.SentAt.UTC().Format(timeLayout),
		})
	}

	api.Success(w, http.StatusOK, resp)
}

type ScoreResponse struct {
	ContactID string                 `json:"contact_id"`
	Score     int                    `json:"score"`
	Breakdown service.ScoreBreakdown `json:"breakdown"`
}

// Score returns the qualification score with its per-signal breakdown.
func (h *ContactHandler) Score(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "contact id is required")
		return
	}

	score, breakdown, err := h.svc.ScoreContact(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ScoreResponse{ContactID: id, Score: score, Breakdown: breakdown})
}

// Pause applies the administrative pause to a contact's active sequence.
func (h *ContactHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.control.Pause, domain.SequenceStatusPaused)
}

// Resume lifts a pause, whether an operator set it or the step ran out of
// retry attempts.
func (h *ContactHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.control.Resume, domain.SequenceStatusActive)
}

func (h *ContactHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, target domain.SequenceStatus) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "contact id is required")
		return
	}

	var (
		st  *service.ContactStatus
		err error
	)
	if isEmail(id) {
		st, err = h.svc.GetByEmail(r.Context(), id)
	} else {
		st, err = h.svc.GetByContactID(r.Context(), id)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if st.StateID == "" {
		api.HandleError(w, domain.ErrSequenceStateNotFound)
		return
	}

	if err := op(r.Context(), st.StateID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{
		"contact_id": st.Contact.ID,
		"status":     string(target),
	})
}

// Counts returns progression counts grouped by status.
func (h *ContactHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Counts(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make(map[string]int, len(counts))
	for status, n := range counts {
		resp[string(status)] = n
	}

	api.Success(w, http.StatusOK, resp)
}

func isEmail(s string) bool {
	for _, r := range s {
		if r == '@' {
			return true
		}
	}
	return false
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
