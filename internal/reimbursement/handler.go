package reimbursement

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
	"github.com/frahmantamala/bookkeeping/internal/fraud"
	"github.com/frahmantamala/bookkeeping/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service    ServiceAPI
	webhookKey string
}

func NewHandler(service ServiceAPI, webhookKey string, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     service,
		webhookKey:  webhookKey,
	}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	var req SubmitRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}

	created, err := h.Service.Submit(r.Context(), user.ID, companyID, req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, created)
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
	limit, offset := transport.Pagination(r)

	page, err := h.Service.List(r.Context(), user.ID, companyID, Filter{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, companyID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	req, err := h.Service.Get(r.Context(), user.ID, companyID, id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	user, companyID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	req, err := h.Service.Approve(r.Context(), user.ID, companyID, id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	user, companyID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var body RejectRequest
	if err := h.DecodeJSON(r, &body); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if err := validation.Struct(body); err != nil {
		h.WriteAppError(w, err)
		return
	}

	req, err := h.Service.Reject(r.Context(), user.ID, companyID, id, body.Reason)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	user, companyID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var body PayRequest
	if err := h.DecodeJSON(r, &body); err != nil {
		h.WriteAppError(w, err)
		return
	}

	req, err := h.Service.Pay(r.Context(), user.ID, companyID, id, body)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// Track is public; the route is rate limited per client.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Track(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, view)
}

// FraudWebhook accepts asynchronous scores from the external scorer.
func (h *Handler) FraudWebhook(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(fraud.APIKeyHeader)
	if h.webhookKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.webhookKey)) != 1 {
		h.WriteAppError(w, internal.NewUnauthorizedError("invalid webhook key", internal.ErrCodeInvalidToken))
		return
	}

	var sig Signal
	if err := h.DecodeJSON(r, &sig); err != nil {
		h.WriteAppError(w, err)
		return
	}

	req, err := h.Service.ApplyFraudSignal(r.Context(), sig)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":          req.ID,
		"status":      req.Status,
		"fraud_score": req.FraudScore,
	})
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (*internal.CurrentUser, int64, int64, bool) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return nil, 0, 0, false
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return nil, 0, 0, false
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return nil, 0, 0, false
	}
	return user, companyID, id, true
}
