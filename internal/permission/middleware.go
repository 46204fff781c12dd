package permission

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/transport"
)

// Middleware gates routes that carry a {companyID} URL parameter.
type Middleware struct {
	*transport.BaseHandler
	authorizer Authorizer
}

func NewMiddleware(authorizer Authorizer, logger *slog.Logger) *Middleware {
	return &Middleware{
		BaseHandler: transport.NewBaseHandler(logger),
		authorizer:  authorizer,
	}
}

func (m *Middleware) RequirePermission(cap Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				m.Logger.Warn("authorization check failed: user not found in context")
				m.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			companyID, err := transport.ParseIDParam(r, "companyID")
			if err != nil {
				m.WriteAppError(w, err)
				return
			}

			if err := m.authorizer.Require(r.Context(), user.ID, companyID, cap); err != nil {
				m.WriteAppError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
