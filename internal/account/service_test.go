package account_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/account"
	"github.com/frahmantamala/bookkeeping/internal/account/postgres"
	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/account"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/core/store/storetest"
	"github.com/frahmantamala/bookkeeping/internal/permission"
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

// stallingTransactor holds the transaction open after fn succeeds until ctx expires.
type stallingTransactor struct {
	inner store.Transactor
}

func (t stallingTransactor) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.inner.Transaction(ctx, func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
}

func appErr(err error) *internal.AppError {
	e, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	return e
}

var _ = Describe("Service", func() {
	const (
		companyID = int64(1)
		actorID   = int64(9)
	)

	var (
		db     *gorm.DB
		perms  *stubAuthorizer
		svc    *account.Service
		ctx    context.Context
		logger *slog.Logger
	)

	BeforeEach(func() {
		var err error
		db, err = storetest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		perms = &stubAuthorizer{denied: map[permission.Capability]bool{}}
		svc = account.NewService(postgres.NewAccountRepository(db), store.NewTransactor(db), perms,
			internal.AccountsConfig{}, nil, nil, logger)
		ctx = context.Background()
	})

	Describe("Create", func() {
		It("creates a manual account", func() {
			a, err := svc.Create(ctx, actorID, companyID, account.CreateRequest{Code: " 5100 ", Name: "Travel", Class: "expense"})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.ID).NotTo(BeZero())
			Expect(a.Code).To(Equal("5100"))
			Expect(a.Class).To(Equal(account.ClassExpense))
			Expect(a.Source).To(Equal(account.SourceManual))
			Expect(a.IsActive).To(BeTrue())
		})

		It("rejects a duplicate code in the same company only", func() {
			_, err := svc.Create(ctx, actorID, companyID, account.CreateRequest{Code: "5100", Name: "Travel", Class: "EXPENSE"})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Create(ctx, actorID, companyID, account.CreateRequest{Code: "5100", Name: "Taxi", Class: "EXPENSE"})
			Expect(appErr(err).Code).To(Equal(internal.ErrCodeDuplicateCode))
			Expect(appErr(err).Type).To(Equal(internal.ErrorTypeConflict))

			_, err = svc.Create(ctx, actorID, companyID+1, account.CreateRequest{Code: "5100", Name: "Travel", Class: "EXPENSE"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("validates the class", func() {
			_, err := svc.Create(ctx, actorID, companyID, account.CreateRequest{Code: "9", Name: "Misc", Class: "OTHER"})
			Expect(appErr(err).Code).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("needs accounts:create", func() {
			perms.denied[permission.Cap(permission.ModuleAccounts, permission.ActionCreate)] = true
			_, err := svc.Create(ctx, actorID, companyID, account.CreateRequest{Code: "9", Name: "Misc", Class: "ASSET"})
			Expect(err).To(MatchError(internal.ErrPermissionDenied))
		})
	})

	Describe("List", func() {
		It("rejects an unknown class filter", func() {
			_, err := svc.List(ctx, actorID, companyID, "bogus")
			Expect(appErr(err).Code).To(Equal(internal.ErrCodeValidationFailed))

			list, err := svc.List(ctx, actorID, companyID, " asset ")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})

	Describe("Import", func() {
		BeforeEach(func() {
			_, err := svc.Create(ctx, actorID, companyID, account.CreateRequest{Code: "4000", Name: "Sales", Class: "REVENUE"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("upserts rows by code", func() {
			inactive := false
			res, err := svc.Import(ctx, actorID, companyID, account.ImportRequest{Rows: []account.ImportRow{
				{Code: "4000", Name: "Service revenue", Class: "revenue"},
				{Code: "5100", Name: "Travel", Class: "EXPENSE"},
				{Code: "5200", Name: "Old rent", Class: "EXPENSE", IsActive: &inactive},
			}})
			Expect(err).NotTo(HaveOccurred())
			Expect(*res).To(Equal(account.ImportResult{Created: 2, Updated: 1}))

			list, err := svc.List(ctx, actorID, companyID, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(3))
			Expect(list[0].Code).To(Equal("4000"))
			Expect(list[0].Name).To(Equal("Service revenue"))
			Expect(list[0].Source).To(Equal(account.SourceImported))
			Expect(list[2].IsActive).To(BeFalse())

			expenses, err := svc.List(ctx, actorID, companyID, "expense")
			Expect(err).NotTo(HaveOccurred())
			Expect(expenses).To(HaveLen(2))
		})

		It("deactivates an existing account and keeps it out of postings", func() {
			inactive := false
			_, err := svc.Import(ctx, actorID, companyID, account.ImportRequest{Rows: []account.ImportRow{
				{Code: "4000", Name: "Sales", Class: "REVENUE", IsActive: &inactive},
				{Code: "5300", Name: "Closed float", Class: "ASSET", IsActive: &inactive},
			}})
			Expect(err).NotTo(HaveOccurred())

			var rows []dm.Account
			Expect(db.Order("code").Find(&rows).Error).To(Succeed())
			Expect(rows).To(HaveLen(2))
			for _, r := range rows {
				Expect(r.IsActive).To(BeFalse(), r.Code)
				_, ok, err := svc.AccountClass(ctx, companyID, r.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse(), r.Code)
			}
		})

		It("refuses repeated codes within one import", func() {
			_, err := svc.Import(ctx, actorID, companyID, account.ImportRequest{Rows: []account.ImportRow{
				{Code: "5100", Name: "Travel", Class: "EXPENSE"},
				{Code: "5100", Name: "Taxi", Class: "EXPENSE"},
			}})
			details := appErr(err).Details.(internal.ValidationErrors)
			Expect(details.Errors[0].Code).To(Equal(string(internal.ErrCodeDuplicateCode)))
		})

		It("rejects an invalid row without writing anything", func() {
			_, err := svc.Import(ctx, actorID, companyID, account.ImportRequest{Rows: []account.ImportRow{
				{Code: "5100", Name: "Travel", Class: "EXPENSE"},
				{Code: "", Name: "Blank", Class: "EXPENSE"},
			}})
			Expect(appErr(err).Code).To(Equal(internal.ErrCodeValidationFailed))

			var n int64
			Expect(db.Model(&dm.Account{}).Count(&n).Error).To(Succeed())
			Expect(n).To(Equal(int64(1)))
		})

		It("rolls back everything when the import times out", func() {
			slow := account.NewService(postgres.NewAccountRepository(db), stallingTransactor{inner: store.NewTransactor(db)}, perms,
				internal.AccountsConfig{ImportTimeout: 20 * time.Millisecond}, nil, nil, logger)

			_, err := slow.Import(ctx, actorID, companyID, account.ImportRequest{Rows: []account.ImportRow{
				{Code: "4000", Name: "Renamed", Class: "REVENUE"},
				{Code: "5100", Name: "Travel", Class: "EXPENSE"},
			}})
			Expect(err).To(HaveOccurred())
			Expect(appErr(err).Message).To(ContainSubstring("timed out"))

			var rows []dm.Account
			Expect(db.Find(&rows).Error).To(Succeed())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].Name).To(Equal("Sales"))
		})

		It("needs accounts:import", func() {
			perms.denied[permission.Cap(permission.ModuleAccounts, permission.ActionImport)] = true
			_, err := svc.Import(ctx, actorID, companyID, account.ImportRequest{Rows: []account.ImportRow{
				{Code: "5100", Name: "Travel", Class: "EXPENSE"},
			}})
			Expect(err).To(MatchError(internal.ErrPermissionDenied))
		})
	})

	Describe("AccountClass", func() {
		It("resolves active accounts of the company", func() {
			a, err := svc.Create(ctx, actorID, companyID, account.CreateRequest{Code: "5100", Name: "Travel", Class: "EXPENSE"})
			Expect(err).NotTo(HaveOccurred())

			class, ok, err := svc.AccountClass(ctx, companyID, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(class).To(Equal(account.ClassExpense))

			_, ok, err = svc.AccountClass(ctx, companyID+1, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			Expect(db.Model(&dm.Account{}).Where("id = ?", a.ID).Update("is_active", false).Error).To(Succeed())
			_, ok, err = svc.AccountClass(ctx, companyID, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})
})
