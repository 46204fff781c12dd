package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/bookkeeping/internal/account"
	"github.com/frahmantamala/bookkeeping/internal/audit"
	"github.com/frahmantamala/bookkeeping/internal/auth"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/reimbursement"
	"github.com/frahmantamala/bookkeeping/internal/settlement"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
	"github.com/frahmantamala/bookkeeping/internal/transport/middleware"
	"github.com/frahmantamala/bookkeeping/internal/user"
	"github.com/frahmantamala/bookkeeping/internal/workflow"
)

// TransactionRoutes bundles the handlers mounted under one transaction type.
type TransactionRoutes struct {
	CRUD     *transaction.Handler
	Workflow *workflow.Handler
}

type Routes struct {
	Auth          *auth.Handler
	User          *user.Handler
	Permission    *permission.Handler
	Permissions   *permission.Middleware
	Expenses      TransactionRoutes
	Incomes       TransactionRoutes
	Settlement    *settlement.Handler
	Reimbursement *reimbursement.Handler
	Account       *account.Handler
	Audit         *audit.Handler
	Health        *HealthHandler

	// TrackLimit guards the public tracking lookup. Nil disables limiting.
	TrackLimit func(http.Handler) http.Handler

	Metrics        *metrics.Metrics
	MetricsPath    string
	OpenAPI        http.Handler
	Swagger        http.Handler
	AllowedOrigins string
}

func RegisterAllRoutes(router *chi.Mux, routes Routes, logger *slog.Logger) {
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.CORS(routes.AllowedOrigins))
	router.Use(middleware.RecoveryMiddleware(logger))
	if routes.Metrics != nil {
		router.Use(routes.Metrics.Middleware)
	}
	router.Use(middleware.LoggingMiddleware(logger))

	if routes.Metrics != nil && routes.MetricsPath != "" {
		router.Handle(routes.MetricsPath, routes.Metrics.Handler())
	}
	if routes.OpenAPI != nil {
		router.Handle("/openapi.yml", routes.OpenAPI)
	}
	if routes.Swagger != nil {
		router.Handle("/swagger/*", routes.Swagger)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if routes.Health != nil {
			r.Get("/health", routes.Health.healthCheckHandler)
			r.Get("/ping", routes.Health.pingHandler)
		}

		if routes.Reimbursement != nil {
			r.Group(func(tr chi.Router) {
				if routes.TrackLimit != nil {
					tr.Use(routes.TrackLimit)
				}
				tr.Get("/track/{code}", routes.Reimbursement.Track)
			})
			r.Post("/webhooks/fraud-score", routes.Reimbursement.FraudWebhook)
		}

		if routes.Auth == nil {
			return
		}
		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", routes.Auth.Login)
			sr.Post("/refresh", routes.Auth.RefreshToken)
			sr.Post("/logout", routes.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(routes.Auth.AuthMiddleware)
			pr.Use(middleware.UserContext)

			if routes.User != nil {
				pr.Get("/users/me", routes.User.GetCurrentUser)
			}
			if routes.Expenses.CRUD != nil {
				pr.Get("/transaction-types/{type}/statuses", routes.Expenses.CRUD.Statuses)
			}

			pr.Route("/companies/{companyID}", func(cr chi.Router) {
				if routes.Permission != nil {
					cr.Get("/permissions/me", routes.Permission.Me)
				}
				mountTransactions(cr, "/expenses", routes.Expenses)
				mountTransactions(cr, "/incomes", routes.Incomes)

				if h := routes.Settlement; h != nil {
					cr.Route("/settlements", func(sr chi.Router) {
						sr.Get("/", h.List)
						sr.Post("/settle", h.Settle)
						sr.Get("/reconciliation", h.Reconciliation)
						sr.Patch("/{paymentID}", h.Reverse)
						sr.Get("/{paymentID}/history", h.History)
					})
				}

				if h := routes.Reimbursement; h != nil {
					cr.Route("/reimbursements", func(rr chi.Router) {
						rr.Post("/", h.Submit)
						rr.Get("/", h.List)
						rr.Get("/{id}", h.Get)
						rr.Post("/{id}/approve", h.Approve)
						rr.Post("/{id}/reject", h.Reject)
						rr.Post("/{id}/pay", h.Pay)
					})
				}

				if h := routes.Account; h != nil {
					cr.Route("/accounts", func(ar chi.Router) {
						ar.Get("/", h.List)
						ar.Post("/", h.Create)
						ar.Post("/import", h.Import)
					})
				}

				if routes.Audit != nil && routes.Permissions != nil {
					cr.With(routes.Permissions.RequirePermission(permission.Cap(permission.ModuleAudit, permission.ActionRead))).
						Get("/audit-logs", routes.Audit.List)
				}
			})
		})
	})
}

func mountTransactions(r chi.Router, prefix string, routes TransactionRoutes) {
	if routes.CRUD == nil {
		return
	}
	r.Route(prefix, func(tr chi.Router) {
		tr.Post("/", routes.CRUD.Create)
		tr.Get("/", routes.CRUD.List)
		tr.Get("/{id}", routes.CRUD.Get)
		tr.Patch("/{id}", routes.CRUD.Update)
		tr.Delete("/{id}", routes.CRUD.Delete)
		if routes.Workflow != nil {
			tr.Post("/bulk-status", routes.Workflow.BulkStatus)
			tr.Post("/{id}/approval", routes.Workflow.Approval)
		}
	})
}
