package account

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/bookkeeping/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     service,
	}
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

	accounts, err := h.Service.List(r.Context(), user.ID, companyID, r.URL.Query().Get("class"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ListResponse{Accounts: accounts})
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

	var req CreateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	created, err := h.Service.Create(r.Context(), user.ID, companyID, req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	var req ImportRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	result, err := h.Service.Import(r.Context(), user.ID, companyID, req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}
