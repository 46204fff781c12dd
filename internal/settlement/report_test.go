package settlement_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/cache"
	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/core/store/storetest"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/settlement"
	"github.com/frahmantamala/bookkeeping/internal/settlement/postgres"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
	txnpostgres "github.com/frahmantamala/bookkeeping/internal/transaction/postgres"
)

var _ = Describe("Reports", func() {
	const (
		companyID = int64(20)
		actorID   = int64(1)
	)

	var (
		db     *gorm.DB
		bus    *events.EventBus
		ledger *settlement.Ledger
		txns   *transaction.Service
		clock  time.Time
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = storetest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		perms := &stubAuthorizer{denied: map[permission.Capability]bool{}}
		bus = events.NewEventBus(logger)
		transactor := store.NewTransactor(db)

		ledger = settlement.NewLedger(postgres.NewSettlementRepository(db), transactor, perms, cache.NewMemory(),
			internal.SettlementConfig{ReportCacheTTL: time.Hour}, bus, nil, logger)
		clock = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
		settlement.SetClock(ledger, func() time.Time { return clock })

		txns = transaction.NewService(txnpostgres.NewTransactionRepository(db), transactor, perms, ledger, noAccounts{}, bus, logger)
		ctx = context.Background()
	})

	AfterEach(func() {
		bus.Wait()
	})

	expense := func(date, amount string, payers ...any) *transaction.Transaction {
		txn, err := txns.Create(ctx, actorID, companyID, transaction.TypeExpense, map[string]any{
			"amount":      json.Number(amount),
			"bill_date":   date,
			"description": "expense " + date,
			"payers":      payers,
		})
		Expect(err).NotTo(HaveOccurred())
		return txn
	}

	It("lists pending employee payments and leaves company money out", func() {
		expense("2026-03-01", "1000", payer("COMPANY", 0, "400"), payer("USER", 2, "600"))
		expense("2026-03-02", "300", payer("USER", 3, "300"))

		report, err := ledger.List(ctx, actorID, companyID, settlement.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Status).To(Equal("PENDING"))
		Expect(report.Count).To(Equal(2))
		Expect(report.Total.Equal(d("900"))).To(BeTrue())
		Expect(report.Items).To(HaveLen(2))
		Expect(report.Items[0].TxnDate).To(Equal("2026-03-01"))
		Expect(report.Items[0].Description).To(Equal("expense 2026-03-01"))
	})

	It("groups by payer and by month and payer", func() {
		expense("2026-02-27", "100", payer("USER", 2, "100"))
		expense("2026-03-01", "200", payer("USER", 2, "200"))
		expense("2026-03-02", "50", payer("USER", 3, "50"))

		byPayer, err := ledger.List(ctx, actorID, companyID, settlement.Query{GroupBy: settlement.GroupByPayer})
		Expect(err).NotTo(HaveOccurred())
		Expect(byPayer.Groups).To(HaveLen(2))
		Expect(byPayer.Groups[0].Key).To(Equal("2"))
		Expect(byPayer.Groups[0].Total.Equal(d("300"))).To(BeTrue())
		Expect(byPayer.Groups[0].Count).To(Equal(2))
		Expect(byPayer.Groups[1].Total.Equal(d("50"))).To(BeTrue())

		byMonth, err := ledger.List(ctx, actorID, companyID, settlement.Query{GroupBy: settlement.GroupByMonthPayer})
		Expect(err).NotTo(HaveOccurred())
		keys := []string{}
		for _, g := range byMonth.Groups {
			keys = append(keys, g.Key)
		}
		Expect(keys).To(Equal([]string{"2026-02/2", "2026-03/2", "2026-03/3"}))
	})

	It("groups settled payments into rounds, newest first", func() {
		a := paymentFor(expense("2026-03-01", "100", payer("USER", 2, "100")), transaction.PayerUser, 2)
		b := paymentFor(expense("2026-03-02", "200", payer("USER", 3, "200")), transaction.PayerUser, 3)
		c := paymentFor(expense("2026-03-03", "300", payer("USER", 2, "300")), transaction.PayerUser, 2)

		_, err := ledger.Settle(ctx, actorID, companyID, []int64{a.ID, b.ID}, "R1")
		Expect(err).NotTo(HaveOccurred())
		clock = clock.Add(24 * time.Hour)
		_, err = ledger.Settle(ctx, actorID, companyID, []int64{c.ID}, "R2")
		Expect(err).NotTo(HaveOccurred())

		report, err := ledger.List(ctx, actorID, companyID, settlement.Query{GroupBy: settlement.GroupByRound})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Status).To(Equal("SETTLED"))
		Expect(report.Groups).To(HaveLen(2))
		Expect(report.Groups[0].Key).To(Equal("2026-04-02T08:00:00Z"))
		Expect(report.Groups[0].Total.Equal(d("300"))).To(BeTrue())
		Expect(report.Groups[1].Count).To(Equal(2))
		Expect(report.Total.Equal(d("600"))).To(BeTrue())
	})

	It("rejects round grouping of pending payments and unknown groupings", func() {
		_, err := ledger.List(ctx, actorID, companyID, settlement.Query{Status: "pending", GroupBy: settlement.GroupByRound})
		Expect(err).To(HaveOccurred())
		_, err = ledger.List(ctx, actorID, companyID, settlement.Query{GroupBy: "week"})
		Expect(err).To(HaveOccurred())
		_, err = ledger.List(ctx, actorID, companyID, settlement.Query{Status: "REVERSED"})
		Expect(err).To(HaveOccurred())
	})

	It("flags rows of deleted expenses without counting them", func() {
		kept := expense("2026-03-01", "100", payer("USER", 2, "100"))
		gone := expense("2026-03-02", "200", payer("USER", 2, "200"))
		Expect(txns.Delete(ctx, actorID, companyID, transaction.TypeExpense, gone.ID)).To(Succeed())

		history, err := ledger.List(ctx, actorID, companyID, settlement.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(history.Items).To(HaveLen(2))
		Expect(history.Count).To(Equal(1))
		Expect(history.Total.Equal(d("100"))).To(BeTrue())
		Expect(history.Items[0].TransactionID).To(Equal(kept.ID))
		Expect(history.Items[1].TransactionID).To(Equal(gone.ID))
		Expect(history.Items[1].TransactionDeleted).To(BeTrue())

		hide := false
		live, err := ledger.List(ctx, actorID, companyID, settlement.Query{IncludeDeleted: &hide})
		Expect(err).NotTo(HaveOccurred())
		Expect(live.Items).To(HaveLen(1))
		Expect(live.Items[0].TransactionID).To(Equal(kept.ID))

		byPayer, err := ledger.List(ctx, actorID, companyID, settlement.Query{GroupBy: settlement.GroupByPayer})
		Expect(err).NotTo(HaveOccurred())
		Expect(byPayer.Groups).To(HaveLen(1))
		Expect(byPayer.Groups[0].Items).To(HaveLen(1))
		Expect(byPayer.Groups[0].Total.Equal(d("100"))).To(BeTrue())

		show := true
		flagged, err := ledger.List(ctx, actorID, companyID, settlement.Query{GroupBy: settlement.GroupByPayer, IncludeDeleted: &show})
		Expect(err).NotTo(HaveOccurred())
		Expect(flagged.Groups[0].Items).To(HaveLen(2))
		Expect(flagged.Groups[0].Count).To(Equal(1))
		Expect(flagged.Groups[0].Total.Equal(d("100"))).To(BeTrue())
	})

	It("serves reports from cache until a settlement invalidates them", func() {
		p := paymentFor(expense("2026-03-01", "100", payer("USER", 2, "100")), transaction.PayerUser, 2)

		first, err := ledger.List(ctx, actorID, companyID, settlement.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Count).To(Equal(1))

		// a write behind the ledger's back is invisible while the cached report lives
		Expect(db.Model(&dm.Payment{}).Where("id = ?", p.ID).Update("amount", "150").Error).To(Succeed())
		cached, err := ledger.List(ctx, actorID, companyID, settlement.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(cached.Total.Equal(d("100"))).To(BeTrue())

		_, err = ledger.Settle(ctx, actorID, companyID, []int64{p.ID}, "")
		Expect(err).NotTo(HaveOccurred())
		fresh, err := ledger.List(ctx, actorID, companyID, settlement.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(fresh.Count).To(BeZero())
	})

	Describe("Reconcile", func() {
		It("is clean when every split matches", func() {
			expense("2026-03-01", "1000", payer("USER", 2, "600"), payer("USER", 3, "400"))
			out, err := ledger.Reconcile(ctx, actorID, companyID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeEmpty())
		})

		It("reports expenses whose allocations drifted", func() {
			txn := expense("2026-03-01", "1000", payer("USER", 2, "600"), payer("USER", 3, "400"))
			p := paymentFor(txn, transaction.PayerUser, 3)
			Expect(db.Model(&dm.Payment{}).Where("id = ?", p.ID).Update("amount", "350").Error).To(Succeed())

			out, err := ledger.Reconcile(ctx, actorID, companyID)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].TransactionID).To(Equal(txn.ID))
			Expect(out[0].Difference.Equal(d("50"))).To(BeTrue())
		})
	})
})
