package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/bookkeeping/internal/transport"
)

type Lister interface {
	List(ctx context.Context, companyID int64, f Filter) ([]*Entry, error)
}

type Handler struct {
	*transport.BaseHandler
	lister Lister
}

func NewHandler(lister Lister, logger *slog.Logger) *Handler {
	return &Handler{BaseHandler: transport.NewBaseHandler(logger), lister: lister}
}

// List is mounted behind audit:read.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}
	limit, offset := transport.Pagination(r)
	f := Filter{EntityType: r.URL.Query().Get("entity_type"), Limit: limit, Offset: offset}

	entries, err := h.lister.List(r.Context(), companyID, f)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": entries})
}
