package settlement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
	"github.com/frahmantamala/bookkeeping/internal/transport"
)

type SettleRequest struct {
	PaymentIDs    []int64 `json:"paymentIds" validate:"required,min=1,dive,gt=0"`
	SettlementRef string  `json:"settlementRef" validate:"max=100"`
}

type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{BaseHandler: transport.NewBaseHandler(logger), Service: service}
}

// List serves GET /settlements?status=&groupBy=&includeDeleted=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	query := r.URL.Query()
	q := Query{Status: query.Get("status"), GroupBy: query.Get("groupBy")}
	if raw := query.Get("includeDeleted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError("includeDeleted", "includeDeleted must be true or false", internal.ErrCodeValidationFailed))
			return
		}
		q.IncludeDeleted = &v
	}
	report, err := h.Service.List(r.Context(), user.ID, companyID, q)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	var req SettleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.WriteAppError(w, err)
		return
	}

	result, err := h.Service.Settle(r.Context(), user.ID, companyID, req.PaymentIDs, req.SettlementRef)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}
	paymentID, ok := h.IDParam(w, r, "paymentID")
	if !ok {
		return
	}

	var req ReverseRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.WriteAppError(w, err)
		return
	}

	payment, err := h.Service.Reverse(r.Context(), user.ID, companyID, paymentID, req.Reason)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, payment)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}
	paymentID, ok := h.IDParam(w, r, "paymentID")
	if !ok {
		return
	}

	history, err := h.Service.History(r.Context(), user.ID, companyID, paymentID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": history})
}

func (h *Handler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	imbalances, err := h.Service.Reconcile(r.Context(), user.ID, companyID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	if imbalances == nil {
		imbalances = []*Imbalance{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"balanced":   len(imbalances) == 0,
		"imbalances": imbalances,
	})
}
