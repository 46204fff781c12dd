package permission

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/transport"
)

type PermissionsReader interface {
	GetUserPermissions(ctx context.Context, userID, companyID int64) (UserPermissions, error)
}

type Handler struct {
	*transport.BaseHandler
	reader PermissionsReader
}

func NewHandler(reader PermissionsReader, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		reader:      reader,
	}
}

// Me returns the caller's effective permissions in a company, {false, []} without membership.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.CurrentUser(w, r)
	if !ok {
		return
	}
	companyID, ok := h.IDParam(w, r, "companyID")
	if !ok {
		return
	}

	perms, err := h.reader.GetUserPermissions(r.Context(), user.ID, companyID)
	if err != nil {
		h.WriteAppError(w, internal.NewInternalError("failed to load permissions", err))
		return
	}
	h.WriteJSON(w, http.StatusOK, perms)
}
