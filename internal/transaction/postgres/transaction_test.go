package postgres_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
	"github.com/frahmantamala/bookkeeping/internal/core/store/storetest"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
	"github.com/frahmantamala/bookkeeping/internal/transaction/postgres"
)

var _ = Describe("TransactionRepository", func() {
	var (
		db   *gorm.DB
		repo *postgres.TransactionRepository
		ctx  context.Context
	)

	newExpense := func(companyID int64, status string) *transaction.Transaction {
		t := &transaction.Transaction{
			CompanyID:      companyID,
			Type:           transaction.TypeExpense,
			Amount:         decimal.NewFromInt(100),
			NetAmount:      decimal.NewFromInt(100),
			TxnDate:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			DocumentType:   transaction.DocumentTaxInvoice,
			WorkflowStatus: status,
			ApprovalStatus: transaction.ApprovalNotRequired,
			CreatedBy:      1,
		}
		Expect(repo.Create(ctx, t)).To(Succeed())
		return t
	}

	BeforeEach(func() {
		var err error
		db, err = storetest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		repo = postgres.NewTransactionRepository(db)
		ctx = context.Background()
	})

	It("scopes reads to company and type", func() {
		t := newExpense(10, "PAID")

		got, err := repo.GetByID(ctx, 10, transaction.TypeExpense, t.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.WorkflowStatus).To(Equal("PAID"))

		got, err = repo.GetByID(ctx, 11, transaction.TypeExpense, t.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeNil())

		got, err = repo.GetByID(ctx, 10, transaction.TypeIncome, t.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeNil())
	})

	It("only moves rows still in the expected status", func() {
		a := newExpense(10, "PAID")
		b := newExpense(10, "DRAFT")

		n, err := repo.UpdateWorkflowStatus(ctx, 10, transaction.TypeExpense, []int64{a.ID, b.ID}, "PAID", "READY_FOR_ACCOUNTING")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		rows, err := repo.LockMany(ctx, 10, transaction.TypeExpense, []int64{b.ID, a.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].ID).To(Equal(a.ID))
		Expect(rows[0].WorkflowStatus).To(Equal("READY_FOR_ACCOUNTING"))
		Expect(rows[1].WorkflowStatus).To(Equal("DRAFT"))
	})

	It("hides soft-deleted rows from locks and lists", func() {
		a := newExpense(10, "PAID")
		newExpense(10, "PAID")
		Expect(repo.SoftDelete(ctx, 10, transaction.TypeExpense, a.ID)).To(Succeed())

		rows, err := repo.LockMany(ctx, 10, transaction.TypeExpense, []int64{a.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(BeEmpty())

		items, total, err := repo.List(ctx, transaction.Filter{CompanyID: 10, Type: transaction.TypeExpense, Limit: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(int64(1)))
		Expect(items).To(HaveLen(1))
	})

	It("persists updates including zero values", func() {
		t := newExpense(10, "PAID")
		rate := decimal.NewFromInt(3)
		t.IsWHT, t.WHTRate = true, &rate
		Expect(repo.Update(ctx, t)).To(Succeed())

		t.IsWHT, t.WHTRate = false, nil
		Expect(repo.Update(ctx, t)).To(Succeed())

		got, err := repo.GetByID(ctx, 10, transaction.TypeExpense, t.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.IsWHT).To(BeFalse())
		Expect(got.WHTRate).To(BeNil())
	})

	It("groups payments by transaction", func() {
		a := newExpense(10, "PAID")
		uid := int64(2)
		Expect(db.Create(&dm.Payment{TransactionID: a.ID, CompanyID: 10, PaidByType: "USER", PaidByUserID: &uid, Amount: decimal.NewFromInt(60), SettlementStatus: "PENDING"}).Error).To(Succeed())
		Expect(db.Create(&dm.Payment{TransactionID: a.ID, CompanyID: 10, PaidByType: "COMPANY", Amount: decimal.NewFromInt(40), SettlementStatus: "SETTLED"}).Error).To(Succeed())

		byTxn, err := repo.PaymentsFor(ctx, []int64{a.ID, 999})
		Expect(err).NotTo(HaveOccurred())
		Expect(byTxn[a.ID]).To(HaveLen(2))
		Expect(byTxn[999]).To(BeEmpty())
	})
})
