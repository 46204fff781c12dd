package user

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/bookkeeping/internal/transport"
)

type ServiceAPI interface {
	Me(ctx context.Context, userID int64) (*Profile, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     svc,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	current, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.Service.Me(r.Context(), current.ID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, profile)
}
