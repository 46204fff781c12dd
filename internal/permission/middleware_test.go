package permission_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

var _ = Describe("HTTP surface", func() {
	var (
		repo   *mockRepository
		router chi.Router
	)

	withUser := func(id int64) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id > 0 {
					r = r.WithContext(internal.ContextWithUser(r.Context(), &internal.CurrentUser{ID: id}))
				}
				next.ServeHTTP(w, r)
			})
		}
	}

	build := func(userID int64) {
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		checker := permission.NewChecker(repo, lg)
		mw := permission.NewMiddleware(checker, lg)
		h := permission.NewHandler(checker, lg)

		router = chi.NewRouter()
		router.Use(withUser(userID))
		router.Get("/companies/{companyID}/permissions/me", h.Me)
		router.With(mw.RequirePermission(permission.Cap(permission.ModuleSettlements, permission.ActionRead))).
			Get("/companies/{companyID}/settlements", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
	}

	do := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	BeforeEach(func() {
		repo = newMockRepository()
		repo.put(&permission.CompanyAccess{UserID: 1, CompanyID: 10, Permissions: []string{"settlements:read"}})
		repo.put(&permission.CompanyAccess{UserID: 2, CompanyID: 10, Permissions: []string{"expenses:read"}})
	})

	It("passes holders of the capability", func() {
		build(1)
		Expect(do("/companies/10/settlements").Code).To(Equal(http.StatusNoContent))
	})

	It("rejects callers without it with a generic 403", func() {
		build(2)
		rec := do("/companies/10/settlements")
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(rec.Body.String()).NotTo(ContainSubstring("expenses:read"))
	})

	It("requires authentication", func() {
		build(0)
		Expect(do("/companies/10/settlements").Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a malformed company id", func() {
		build(1)
		Expect(do("/companies/abc/settlements").Code).To(Equal(http.StatusBadRequest))
	})

	It("reports the caller's permissions", func() {
		build(2)
		rec := do("/companies/10/permissions/me")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body permission.UserPermissions
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.IsOwner).To(BeFalse())
		Expect(body.Permissions).To(ConsistOf("expenses:read"))
	})
})
