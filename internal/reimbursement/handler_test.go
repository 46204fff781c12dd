package reimbursement_test

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
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/fraud"
	"github.com/frahmantamala/bookkeeping/internal/reimbursement"
)

// mockService records what the handler passes through; unused methods panic via the nil embed.
type mockService struct {
	reimbursement.ServiceAPI
	submitted *reimbursement.SubmitRequest
	submitter int64
	rejected  string
	signal    *reimbursement.Signal
	trackErr  error
}

func (m *mockService) Submit(_ context.Context, actorID, companyID int64, req reimbursement.SubmitRequest) (*reimbursement.Request, error) {
	m.submitted, m.submitter = &req, actorID
	return &reimbursement.Request{ID: 11, CompanyID: companyID, TrackingCode: "RB-ABC123", Status: reimbursement.StatusPending}, nil
}

func (m *mockService) Reject(_ context.Context, _, _, id int64, reason string) (*reimbursement.Request, error) {
	m.rejected = reason
	return &reimbursement.Request{ID: id, Status: reimbursement.StatusRejected}, nil
}

func (m *mockService) Track(_ context.Context, code string) (*reimbursement.TrackView, error) {
	if m.trackErr != nil {
		return nil, m.trackErr
	}
	return &reimbursement.TrackView{TrackingCode: code, Status: reimbursement.StatusApproved, RequesterName: "Malee"}, nil
}

func (m *mockService) ApplyFraudSignal(_ context.Context, sig reimbursement.Signal) (*reimbursement.Request, error) {
	m.signal = &sig
	return &reimbursement.Request{ID: sig.RequestID, Status: reimbursement.StatusFlagged, FraudScore: sig.Score}, nil
}

var _ = Describe("Handler", func() {
	var (
		svc    *mockService
		router http.Handler
	)

	BeforeEach(func() {
		svc = &mockService{}
		h := reimbursement.NewHandler(svc, "hook-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
		r := chi.NewRouter()
		r.Get("/track/{code}", h.Track)
		r.Post("/webhooks/fraud-score", h.FraudWebhook)
		r.Post("/companies/{companyID}/reimbursements", h.Submit)
		r.Post("/companies/{companyID}/reimbursements/{id}/reject", h.Reject)
		router = r
	})

	send := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	asUser := func(req *http.Request) *http.Request {
		return req.WithContext(internal.ContextWithUser(req.Context(), &internal.CurrentUser{ID: 2, Name: "Malee"}))
	}

	It("submits with the caller as requester", func() {
		body := `{"requesterName":"Malee","bankName":"KBank","bankAccountNo":"1234567890","bankAccountName":"Malee S.",` +
			`"description":"Taxi","billDate":"2026-03-10","amount":1000,"vatAmount":"70.00"}`
		rec := send(asUser(httptest.NewRequest(http.MethodPost, "/companies/7/reimbursements", bytes.NewBufferString(body))))
		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(svc.submitter).To(Equal(int64(2)))
		Expect(svc.submitted.Amount.Equal(decimal.NewFromInt(1000))).To(BeTrue())
		Expect(svc.submitted.VATAmount.Equal(decimal.RequireFromString("70"))).To(BeTrue())

		var out reimbursement.Request
		Expect(json.NewDecoder(rec.Body).Decode(&out)).To(Succeed())
		Expect(out.TrackingCode).To(Equal("RB-ABC123"))
		Expect(out.CompanyID).To(Equal(int64(7)))
	})

	It("needs a signed-in user to submit", func() {
		rec := send(httptest.NewRequest(http.MethodPost, "/companies/7/reimbursements", bytes.NewBufferString(`{}`)))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("passes the rejection reason", func() {
		rec := send(asUser(httptest.NewRequest(http.MethodPost, "/companies/7/reimbursements/11/reject",
			bytes.NewBufferString(`{"reason":"no receipt"}`))))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.rejected).To(Equal("no receipt"))
	})

	It("serves tracking without authentication", func() {
		rec := send(httptest.NewRequest(http.MethodGet, "/track/RB-ABC123", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		var view reimbursement.TrackView
		Expect(json.NewDecoder(rec.Body).Decode(&view)).To(Succeed())
		Expect(view.TrackingCode).To(Equal("RB-ABC123"))
		Expect(view.RequesterName).To(Equal("Malee"))
	})

	It("maps tracking errors to their status", func() {
		svc.trackErr = internal.NewNotFoundError("no reimbursement with this tracking code", internal.ErrCodeReimbursementNotFound)
		Expect(send(httptest.NewRequest(http.MethodGet, "/track/RB-ZZZZZZ", nil)).Code).To(Equal(http.StatusNotFound))
	})

	Describe("fraud webhook", func() {
		post := func(key string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/fraud-score",
				bytes.NewBufferString(`{"requestId":11,"score":88,"flags":["VELOCITY"]}`))
			if key != "" {
				req.Header.Set(fraud.APIKeyHeader, key)
			}
			return send(req)
		}

		It("accepts a signal with the shared key", func() {
			rec := post("hook-secret")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(svc.signal.RequestID).To(Equal(int64(11)))
			Expect(svc.signal.Flags).To(Equal([]string{"VELOCITY"}))

			var out map[string]interface{}
			Expect(json.NewDecoder(rec.Body).Decode(&out)).To(Succeed())
			Expect(out).To(HaveKeyWithValue("status", "FLAGGED"))
			Expect(out).To(HaveKeyWithValue("fraud_score", BeNumerically("==", 88)))
		})

		It("refuses a missing or wrong key", func() {
			Expect(post("").Code).To(Equal(http.StatusUnauthorized))
			Expect(post("guess").Code).To(Equal(http.StatusUnauthorized))
			Expect(svc.signal).To(BeNil())
		})
	})
})
