package settlement_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/cache"
	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/core/store/storetest"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/settlement"
	"github.com/frahmantamala/bookkeeping/internal/settlement/postgres"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
	txnpostgres "github.com/frahmantamala/bookkeeping/internal/transaction/postgres"
)

type stubAuthorizer struct {
	denied map[permission.Capability]bool
}

func (a *stubAuthorizer) HasPermission(_ context.Context, _, _ int64, c permission.Capability) (bool, error) {
	return !a.denied[c], nil
}

func (a *stubAuthorizer) Require(ctx context.Context, userID, companyID int64, c permission.Capability) error {
	if ok, _ := a.HasPermission(ctx, userID, companyID, c); !ok {
		return internal.ErrPermissionDenied
	}
	return nil
}

type noAccounts struct{}

func (noAccounts) AccountClass(context.Context, int64, int64) (string, bool, error) {
	return "", false, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func payer(kind string, userID int64, amount string) map[string]any {
	p := map[string]any{"paid_by_type": kind, "amount": json.Number(amount)}
	if userID > 0 {
		p["paid_by_user_id"] = json.Number(strconv.FormatInt(userID, 10))
	}
	return p
}

func appCode(err error) internal.ErrorCode {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	return appErr.Code
}

func paymentFor(txn *transaction.Transaction, kind transaction.PayerType, userID int64) *transaction.Payment {
	for _, p := range txn.Payments {
		if p.PaidByType != kind {
			continue
		}
		if kind != transaction.PayerUser || (p.PaidByUserID != nil && *p.PaidByUserID == userID) {
			return p
		}
	}
	Fail("payment not found")
	return nil
}

var _ = Describe("Ledger", func() {
	const (
		companyID = int64(10)
		actorID   = int64(1)
	)

	var (
		db      *gorm.DB
		perms   *stubAuthorizer
		bus     *events.EventBus
		reg     *prometheus.Registry
		reports *cache.Memory
		ledger  *settlement.Ledger
		txns    *transaction.Service
		clock   time.Time
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = storetest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		perms = &stubAuthorizer{denied: map[permission.Capability]bool{}}
		bus = events.NewEventBus(logger)
		reg = prometheus.NewRegistry()
		reports = cache.NewMemory()
		transactor := store.NewTransactor(db)

		ledger = settlement.NewLedger(postgres.NewSettlementRepository(db), transactor, perms, reports,
			internal.SettlementConfig{ReportCacheTTL: time.Minute}, bus, metrics.New(reg), logger)
		clock = time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
		settlement.SetClock(ledger, func() time.Time { return clock })

		txns = transaction.NewService(txnpostgres.NewTransactionRepository(db), transactor, perms, ledger, noAccounts{}, bus, logger)
		ctx = context.Background()
	})

	AfterEach(func() {
		bus.Wait()
	})

	expense := func(amount string, payers ...any) *transaction.Transaction {
		payload := map[string]any{
			"amount":          json.Number(amount),
			"bill_date":       "2026-03-01",
			"has_tax_invoice": true,
		}
		if len(payers) > 0 {
			payload["payers"] = payers
		}
		txn, err := txns.Create(ctx, actorID, companyID, transaction.TypeExpense, payload)
		Expect(err).NotTo(HaveOccurred())
		return txn
	}

	Describe("allocations", func() {
		It("starts company money settled and employee money pending", func() {
			txn := expense("1000", payer("COMPANY", 0, "400"), payer("USER", 2, "600"))

			company := paymentFor(txn, transaction.PayerCompany, 0)
			Expect(company.SettlementStatus).To(Equal(transaction.SettlementSettled))
			Expect(company.SettledAt).NotTo(BeNil())

			user := paymentFor(txn, transaction.PayerUser, 2)
			Expect(user.SettlementStatus).To(Equal(transaction.SettlementPending))
			Expect(user.SettledAt).To(BeNil())
		})

		It("voids the old split when the payers change", func() {
			txn := expense("1000", payer("USER", 2, "1000"))
			updated, err := txns.Update(ctx, actorID, companyID, transaction.TypeExpense, txn.ID, map[string]any{
				"payers": []any{payer("USER", 2, "500"), payer("USER", 3, "500")},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.ActivePayments()).To(HaveLen(2))

			var voided []dm.Payment
			Expect(db.Where("transaction_id = ? AND settlement_status = ?", txn.ID, "REVERSED").Find(&voided).Error).To(Succeed())
			Expect(voided).To(HaveLen(1))
			Expect(*voided[0].ReversalReason).To(Equal("payer split replaced"))
		})

		It("refuses to replace a split that already paid an employee back", func() {
			txn := expense("1000", payer("USER", 2, "1000"))
			p := paymentFor(txn, transaction.PayerUser, 2)
			_, err := ledger.Settle(ctx, actorID, companyID, []int64{p.ID}, "")
			Expect(err).NotTo(HaveOccurred())

			_, err = txns.Update(ctx, actorID, companyID, transaction.TypeExpense, txn.ID, map[string]any{
				"payers": []any{payer("COMPANY", 0, "1000")},
			})
			Expect(err).To(HaveOccurred())
			Expect(appCode(err)).To(Equal(internal.ErrCodeSettlementLocked))
		})
	})

	Describe("Settle", func() {
		It("settles a round with one shared timestamp and reference", func() {
			a := paymentFor(expense("600", payer("USER", 2, "600")), transaction.PayerUser, 2)
			b := paymentFor(expense("440", payer("USER", 3, "440")), transaction.PayerUser, 3)

			clock = time.Date(2026, 3, 31, 9, 0, 0, 750_000_000, time.UTC)
			result, err := ledger.Settle(ctx, actorID, companyID, []int64{a.ID, b.ID, a.ID}, " TRF-001 ")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Settled).To(ConsistOf(a.ID, b.ID))
			Expect(result.Skipped).To(BeEmpty())
			Expect(result.Total.Equal(d("1040"))).To(BeTrue())
			Expect(result.SettledAt).To(Equal(time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)))

			var rows []dm.Payment
			Expect(db.Where("id IN ?", []int64{a.ID, b.ID}).Find(&rows).Error).To(Succeed())
			for _, row := range rows {
				Expect(row.SettlementStatus).To(Equal("SETTLED"))
				Expect(*row.SettlementRef).To(Equal("TRF-001"))
				Expect(row.SettledAt.Equal(result.SettledAt)).To(BeTrue())
				Expect(*row.SettledBy).To(Equal(actorID))
			}
			n, err := testutil.GatherAndCount(reg, "bookkeeping_settlement_operations_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeNumerically(">", 0))
		})

		It("skips payments that are already settled", func() {
			p := paymentFor(expense("600", payer("USER", 2, "600")), transaction.PayerUser, 2)
			_, err := ledger.Settle(ctx, actorID, companyID, []int64{p.ID}, "")
			Expect(err).NotTo(HaveOccurred())

			result, err := ledger.Settle(ctx, actorID, companyID, []int64{p.ID}, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Settled).To(BeEmpty())
			Expect(result.Skipped).To(ConsistOf(p.ID))

			history, err := ledger.History(ctx, actorID, companyID, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(1))
		})

		It("rejects company allocations", func() {
			txn := expense("1000", payer("COMPANY", 0, "400"), payer("USER", 2, "600"))
			company := paymentFor(txn, transaction.PayerCompany, 0)
			user := paymentFor(txn, transaction.PayerUser, 2)
			// company rows start settled, so force one back to pending to reach the payer check
			Expect(db.Model(&dm.Payment{}).Where("id = ?", company.ID).Update("settlement_status", "PENDING").Error).To(Succeed())

			_, err := ledger.Settle(ctx, actorID, companyID, []int64{user.ID, company.ID}, "")
			Expect(err).To(HaveOccurred())
			Expect(appCode(err)).To(Equal(internal.ErrCodeInvalidTransition))

			var row dm.Payment
			Expect(db.First(&row, user.ID).Error).To(Succeed())
			Expect(row.SettlementStatus).To(Equal("PENDING"))
		})

		It("reports unknown and foreign payments as not found", func() {
			p := paymentFor(expense("600", payer("USER", 2, "600")), transaction.PayerUser, 2)
			_, err := ledger.Settle(ctx, actorID, companyID+1, []int64{p.ID}, "")
			Expect(err).To(HaveOccurred())
			Expect(appCode(err)).To(Equal(internal.ErrCodePaymentNotFound))

			_, err = ledger.Settle(ctx, actorID, companyID, []int64{p.ID, 9999}, "")
			Expect(appCode(err)).To(Equal(internal.ErrCodePaymentNotFound))
		})

		It("locks payments of deleted transactions", func() {
			txn := expense("600", payer("USER", 2, "600"))
			p := paymentFor(txn, transaction.PayerUser, 2)
			Expect(txns.Delete(ctx, actorID, companyID, transaction.TypeExpense, txn.ID)).To(Succeed())

			_, err := ledger.Settle(ctx, actorID, companyID, []int64{p.ID}, "")
			Expect(err).To(HaveOccurred())
			Expect(appCode(err)).To(Equal(internal.ErrCodeSettlementLocked))
		})

		It("checks settlements:pay first", func() {
			perms.denied[permission.Cap(permission.ModuleSettlements, permission.ActionPay)] = true
			_, err := ledger.Settle(ctx, actorID, companyID, []int64{9999}, "")
			Expect(err).To(MatchError(internal.ErrPermissionDenied))
		})

		It("requires at least one id", func() {
			_, err := ledger.Settle(ctx, actorID, companyID, nil, "")
			Expect(err).To(HaveOccurred())
			Expect(appCode(err)).To(Equal(internal.ErrCodeValidationFailed))
		})
	})

	Describe("Reverse", func() {
		It("returns the payment to pending and keeps both events", func() {
			p := paymentFor(expense("600", payer("USER", 2, "600")), transaction.PayerUser, 2)
			settled, err := ledger.Settle(ctx, actorID, companyID, []int64{p.ID}, "TRF-9")
			Expect(err).NotTo(HaveOccurred())

			clock = clock.Add(time.Hour)
			reversed, err := ledger.Reverse(ctx, actorID, companyID, p.ID, "wrong account")
			Expect(err).NotTo(HaveOccurred())
			Expect(reversed.SettlementStatus).To(Equal(transaction.SettlementPending))
			Expect(reversed.SettledAt).To(BeNil())
			Expect(*reversed.ReversalReason).To(Equal("wrong account"))

			history, err := ledger.History(ctx, actorID, companyID, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
			Expect(history[0].Action).To(Equal(settlement.ActionSettled))
			Expect(history[1].Action).To(Equal(settlement.ActionReversed))
			Expect(history[1].SettledAt.Equal(settled.SettledAt)).To(BeTrue())
			Expect(*history[1].SettlementRef).To(Equal("TRF-9"))
			Expect(*history[1].Reason).To(Equal("wrong account"))

			again, err := ledger.Settle(ctx, actorID, companyID, []int64{p.ID}, "TRF-10")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Settled).To(ConsistOf(p.ID))
		})

		It("rejects a payment that is not settled", func() {
			p := paymentFor(expense("600", payer("USER", 2, "600")), transaction.PayerUser, 2)
			_, err := ledger.Reverse(ctx, actorID, companyID, p.ID, "oops")
			Expect(err).To(HaveOccurred())
			Expect(appCode(err)).To(Equal(internal.ErrCodeNotSettled))
		})

		It("requires a reason", func() {
			_, err := ledger.Reverse(ctx, actorID, companyID, 1, "  ")
			Expect(err).To(HaveOccurred())
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Details.(internal.ValidationErrors).Errors[0].Code).To(Equal("REASON_REQUIRED"))
		})
	})

	Describe("History", func() {
		It("is not found for unknown payments", func() {
			_, err := ledger.History(ctx, actorID, companyID, 4242)
			Expect(appCode(err)).To(Equal(internal.ErrCodePaymentNotFound))
		})
	})
})
