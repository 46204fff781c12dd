package workflow

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
	"github.com/frahmantamala/bookkeeping/internal/transport"
)

type BulkStatusRequest struct {
	IDs          []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	TargetStatus string  `json:"targetStatus" validate:"required"`
}

type ApprovalRequest struct {
	Action string `json:"action" validate:"required,oneof=submit approve reject resubmit"`
	Reason string `json:"reason" validate:"max=500"`
}

// Handler exposes the status endpoints for one transaction type.
type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	txnType transaction.Type
}

func NewHandler(service ServiceAPI, txnType transaction.Type, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     service,
		txnType:     txnType,
	}
}

func (h *Handler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	var req BulkStatusRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.WriteAppError(w, err)
		return
	}

	result, err := h.Service.BulkChangeStatus(r.Context(), user.ID, companyID, h.txnType, req.IDs, req.TargetStatus)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Approval(w http.ResponseWriter, r *http.Request) {
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

	var req ApprovalRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.WriteAppError(w, err)
		return
	}

	txn, err := h.Service.ChangeApprovalStatus(r.Context(), user.ID, companyID, h.txnType, id, req.Action, req.Reason)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, txn)
}
