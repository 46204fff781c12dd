package transaction

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/transport"
)

// Handler serves one transaction type; the router mounts one per type.
type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	txnType Type
}

func NewHandler(service ServiceAPI, txnType Type, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     service,
		txnType:     txnType,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	var payload map[string]any
	if err := h.DecodeJSON(r, &payload); err != nil {
		h.WriteAppError(w, err)
		return
	}

	txn, err := h.Service.Create(r.Context(), user.ID, companyID, h.txnType, payload)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, txn)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, offset := transport.Pagination(r)
	f := Filter{
		CompanyID:      companyID,
		Type:           h.txnType,
		WorkflowStatus: q.Get("status"),
		ApprovalStatus: q.Get("approval_status"),
		Limit:          limit,
		Offset:         offset,
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError(key, fmt.Sprintf("%s must be YYYY-MM-DD", key), internal.ErrCodeInvalidDate))
			return
		}
		*dst = &t
	}

	page, err := h.Service.List(r.Context(), user.ID, f)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}

	txn, err := h.Service.Get(r.Context(), user.ID, companyID, h.txnType, id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, txn)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}

	var payload map[string]any
	if err := h.DecodeJSON(r, &payload); err != nil {
		h.WriteAppError(w, err)
		return
	}

	txn, err := h.Service.Update(r.Context(), user.ID, companyID, h.txnType, id, payload)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, txn)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), user.ID, companyID, h.txnType, id); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Statuses serves GET /transaction-types/{type}/statuses.
func (h *Handler) Statuses(w http.ResponseWriter, r *http.Request) {
	txnType, ok := ParseType(chi.URLParam(r, "type"))
	if !ok {
		h.WriteAppError(w, internal.NewValidationFieldError("type", "type must be expense or income", internal.ErrCodeValidationFailed))
		return
	}
	statuses, err := h.Service.Statuses(txnType)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"type":     txnType,
		"statuses": statuses,
	})
}
