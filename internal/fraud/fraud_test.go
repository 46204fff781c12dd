package fraud_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/fraud"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
)

type stubHistory struct {
	similar int64
	err     error
	since   time.Time
}

func (h *stubHistory) CountSimilar(_ context.Context, _ int64, _ string, _ decimal.Decimal, since time.Time, _ int64) (int64, error) {
	h.since = since
	return h.similar, h.err
}

type fixedScorer struct {
	res fraud.Result
	err error
}

func (f fixedScorer) Score(context.Context, fraud.Input) (fraud.Result, error) {
	return f.res, f.err
}

var _ = Describe("RuleScorer", func() {
	var (
		history *stubHistory
		scorer  *fraud.RuleScorer
		// a Wednesday
		today = time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		history = &stubHistory{}
		scorer = fraud.NewRuleScorer(history, internal.ReimbursementConfig{HighAmountLimit: 20000, DuplicateWindowDay: 30})
		fraud.SetRuleClock(scorer, func() time.Time { return today })
	})

	input := func(amount string, billDate time.Time) fraud.Input {
		a := decimal.RequireFromString(amount)
		return fraud.Input{CompanyID: 1, BankAccountNo: "1234567890", Amount: a, NetAmount: a, BillDate: billDate}
	}

	It("scores an ordinary request as zero", func() {
		res, err := scorer.Score(context.Background(), input("1250.50", time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Score).To(BeZero())
		Expect(res.Flags).To(BeEmpty())
		Expect(history.since).To(Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
	})

	DescribeTable("individual rules",
		func(amount string, billDate time.Time, similar int64, score int, flag string) {
			history.similar = similar
			res, err := scorer.Score(context.Background(), input(amount, billDate))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Score).To(Equal(score))
			Expect(res.Flags).To(ConsistOf(flag))
		},
		Entry("duplicate", "1250.50", time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC), int64(1), 40, fraud.FlagDuplicate),
		Entry("high amount", "25000.50", time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC), int64(0), 30, fraud.FlagHighAmount),
		Entry("future bill date", "1250.50", time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC), int64(0), 25, fraud.FlagFutureBillDate),
		Entry("round amount", "3000", time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC), int64(0), 10, fraud.FlagRoundAmount),
		Entry("weekend", "1250.50", time.Date(2026, 4, 11, 0, 0, 0, 0, time.UTC), int64(0), 5, fraud.FlagWeekendBillDate),
	)

	It("adds up and sorts flags", func() {
		history.similar = 2
		res, err := scorer.Score(context.Background(), input("30000", time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC)))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Score).To(Equal(100))
		Expect(res.Flags).To(Equal([]string{
			fraud.FlagDuplicate, fraud.FlagFutureBillDate, fraud.FlagHighAmount, fraud.FlagRoundAmount, fraud.FlagWeekendBillDate,
		}))
	})

	It("surfaces history failures", func() {
		history.err = errors.New("db down")
		_, err := scorer.Score(context.Background(), input("10", today))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Client", func() {
	var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	It("posts the request with the api key and reads the score", func() {
		var got fraud.Input
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/score"))
			Expect(r.Header.Get(fraud.APIKeyHeader)).To(Equal("secret"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"score":130,"flags":["VELOCITY"]}}`))
		}))
		defer server.Close()

		client := fraud.NewClient(internal.FraudConfig{ScorerURL: server.URL, APIKey: "secret", Timeout: time.Second}, logger)
		res, err := client.Score(context.Background(), fraud.Input{TrackingCode: "RB-ABC123", Amount: decimal.NewFromInt(10)})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Score).To(Equal(100))
		Expect(res.Flags).To(Equal([]string{"VELOCITY"}))
		Expect(got.TrackingCode).To(Equal("RB-ABC123"))
	})

	It("fails on a non-200 answer", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		client := fraud.NewClient(internal.FraudConfig{ScorerURL: server.URL}, logger)
		_, err := client.Score(context.Background(), fraud.Input{})
		Expect(err).To(MatchError(ContainSubstring("502")))
	})
})

var _ = Describe("Engine", func() {
	var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	It("merges scorer results", func() {
		engine := fraud.NewEngine(logger, nil,
			fixedScorer{res: fraud.Result{Score: 40, Flags: []string{"B", "A"}}},
			fixedScorer{res: fraud.Result{Score: 35, Flags: []string{"A", "C"}}},
		)
		res, err := engine.Score(context.Background(), fraud.Input{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Score).To(Equal(75))
		Expect(res.Flags).To(Equal([]string{"A", "B", "C"}))
	})

	It("fails open when a scorer is down", func() {
		reg := prometheus.NewRegistry()
		engine := fraud.NewEngine(logger, metrics.New(reg),
			fixedScorer{res: fraud.Result{Score: 10, Flags: []string{fraud.FlagRoundAmount}}},
			fixedScorer{err: errors.New("timeout")},
		)
		res, err := engine.Score(context.Background(), fraud.Input{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Score).To(Equal(10))
		Expect(res.Flags).To(ConsistOf(fraud.FlagRoundAmount, fraud.FlagScorerUnavailable))

		Expect(testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP bookkeeping_reimbursement_fraud_scorer_errors_total External fraud scorer calls that failed.
# TYPE bookkeeping_reimbursement_fraud_scorer_errors_total counter
bookkeeping_reimbursement_fraud_scorer_errors_total 1
`), "bookkeeping_reimbursement_fraud_scorer_errors_total")).To(Succeed())
	})
})
