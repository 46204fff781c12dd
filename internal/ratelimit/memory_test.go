package ratelimit_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/bookkeeping/internal/ratelimit"
)

var _ = Describe("MemoryBucket", func() {
	It("allows the burst then refuses", func() {
		b, err := ratelimit.NewMemoryBucket(0.001, 3)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			res, err := b.Allow(context.Background(), "ip:1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Allowed).To(BeTrue())
		}
		res, err := b.Allow(context.Background(), "ip:1")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Allowed).To(BeFalse())
		Expect(res.RetryAfter).To(BeNumerically(">", 0))

		res, err = b.Allow(context.Background(), "ip:2")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Allowed).To(BeTrue())
	})

	It("rejects bad settings", func() {
		_, err := ratelimit.NewMemoryBucket(0, 1)
		Expect(err).To(HaveOccurred())
	})

	It("returns 429 from the middleware once exhausted", func() {
		b, err := ratelimit.NewMemoryBucket(0.001, 1)
		Expect(err).NotTo(HaveOccurred())

		h := ratelimit.PerClientIP(b, "track:", slog.New(slog.NewTextHandler(io.Discard, nil)))(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

		req := httptest.NewRequest(http.MethodGet, "/track/RB-ABC123", nil)
		req.RemoteAddr = "203.0.113.7:5555"

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
		Expect(rec.Header().Get("Retry-After")).NotTo(BeEmpty())
	})
})
