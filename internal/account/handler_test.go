package account_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/account"
	"github.com/frahmantamala/bookkeeping/internal/account/postgres"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/core/store/storetest"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

var _ = Describe("Handler", func() {
	var (
		router http.Handler
		user   *internal.CurrentUser
	)

	BeforeEach(func() {
		db, err := storetest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		perms := &stubAuthorizer{denied: map[permission.Capability]bool{}}
		svc := account.NewService(postgres.NewAccountRepository(db), store.NewTransactor(db), perms,
			internal.AccountsConfig{}, nil, nil, logger)
		h := account.NewHandler(svc, logger)

		r := chi.NewRouter()
		r.Route("/companies/{companyID}/accounts", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Post("/import", h.Import)
		})
		router = r
		user = &internal.CurrentUser{ID: 4, Email: "nok@example.com", Name: "Nok"}
	})

	do := func(method, target string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, target, &buf)
		if user != nil {
			req = req.WithContext(internal.ContextWithUser(context.Background(), user))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("creates, imports and lists accounts", func() {
		rec := do(http.MethodPost, "/companies/1/accounts/", map[string]string{"code": "5100", "name": "Travel", "class": "EXPENSE"})
		Expect(rec.Code).To(Equal(http.StatusCreated))

		rec = do(http.MethodPost, "/companies/1/accounts/import", map[string]interface{}{
			"rows": []map[string]string{
				{"code": "5100", "name": "Travel and lodging", "class": "EXPENSE"},
				{"code": "1000", "name": "Cash", "class": "ASSET"},
			},
		})
		Expect(rec.Code).To(Equal(http.StatusOK))
		var result account.ImportResult
		Expect(json.NewDecoder(rec.Body).Decode(&result)).To(Succeed())
		Expect(result).To(Equal(account.ImportResult{Created: 1, Updated: 1}))

		rec = do(http.MethodGet, "/companies/1/accounts/", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(ContainSubstring("application/json"))
		var list account.ListResponse
		Expect(json.NewDecoder(rec.Body).Decode(&list)).To(Succeed())
		Expect(list.Accounts).To(HaveLen(2))
		Expect(list.Accounts[1].Name).To(Equal("Travel and lodging"))
	})

	It("answers 409 for a taken code", func() {
		body := map[string]string{"code": "5100", "name": "Travel", "class": "EXPENSE"}
		Expect(do(http.MethodPost, "/companies/1/accounts/", body).Code).To(Equal(http.StatusCreated))
		Expect(do(http.MethodPost, "/companies/1/accounts/", body).Code).To(Equal(http.StatusConflict))
	})

	It("answers 400 for a malformed body and a bad company id", func() {
		req := httptest.NewRequest(http.MethodPost, "/companies/1/accounts/", bytes.NewBufferString("{"))
		req = req.WithContext(internal.ContextWithUser(context.Background(), user))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		Expect(do(http.MethodGet, "/companies/abc/accounts/", nil).Code).To(Equal(http.StatusBadRequest))
	})

	It("answers 401 without a user", func() {
		user = nil
		Expect(do(http.MethodGet, "/companies/1/accounts/", nil).Code).To(Equal(http.StatusUnauthorized))
	})
})
