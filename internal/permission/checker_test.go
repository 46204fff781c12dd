package permission_test

import (
	"context"
	"errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

type accessKey struct{ userID, companyID int64 }

type mockRepository struct {
	rows map[accessKey]*permission.CompanyAccess
	err  error
}

func newMockRepository() *mockRepository {
	return &mockRepository{rows: map[accessKey]*permission.CompanyAccess{}}
}

func (m *mockRepository) put(a *permission.CompanyAccess) {
	m.rows[accessKey{a.UserID, a.CompanyID}] = a
}

func (m *mockRepository) FindAccess(_ context.Context, userID, companyID int64) (*permission.CompanyAccess, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[accessKey{userID, companyID}], nil
}

func (m *mockRepository) ListAccessesForUser(_ context.Context, userID int64) ([]*permission.CompanyAccess, error) {
	var out []*permission.CompanyAccess
	for k, v := range m.rows {
		if k.userID == userID {
			out = append(out, v)
		}
	}
	return out, m.err
}

var _ = Describe("Checker", func() {
	var (
		repo    *mockRepository
		checker *permission.Checker
		ctx     context.Context
	)

	expensesDelete := permission.Cap(permission.ModuleExpenses, permission.ActionDelete)
	incomesRead := permission.Cap(permission.ModuleIncomes, permission.ActionRead)
	settlementsPay := permission.Cap(permission.ModuleSettlements, permission.ActionPay)

	BeforeEach(func() {
		repo = newMockRepository()
		checker = permission.NewChecker(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
		ctx = context.Background()
	})

	Context("module wildcard", func() {
		BeforeEach(func() {
			repo.put(&permission.CompanyAccess{UserID: 1, CompanyID: 10, Permissions: []string{"expenses:*"}})
		})

		It("allows any action in the module", func() {
			ok, err := checker.HasPermission(ctx, 1, 10, expensesDelete)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("denies other modules", func() {
			ok, err := checker.HasPermission(ctx, 1, 10, incomesRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("does not leak into another company", func() {
			ok, err := checker.HasPermission(ctx, 1, 11, expensesDelete)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	It("allows exact grants", func() {
		repo.put(&permission.CompanyAccess{UserID: 2, CompanyID: 10, Permissions: []string{"settlements:pay"}})

		ok, err := checker.HasPermission(ctx, 2, 10, settlementsPay)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = checker.HasPermission(ctx, 2, 10, permission.Cap(permission.ModuleSettlements, permission.ActionUpdate))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("lets owners pass every check with an empty list", func() {
		repo.put(&permission.CompanyAccess{UserID: 3, CompanyID: 10, IsOwner: true, Permissions: []string{}})

		for _, cap := range []permission.Capability{expensesDelete, incomesRead, settlementsPay} {
			ok, err := checker.HasPermission(ctx, 3, 10, cap)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue(), cap.String())
		}
	})

	It("denies every check without an access row", func() {
		for _, cap := range []permission.Capability{expensesDelete, incomesRead, settlementsPay} {
			ok, err := checker.HasPermission(ctx, 99, 10, cap)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		}
	})

	It("ignores malformed stored grants", func() {
		repo.put(&permission.CompanyAccess{UserID: 4, CompanyID: 10, Permissions: []string{"expense:*", "*:*", "expenses"}})

		ok, err := checker.HasPermission(ctx, 4, 10, expensesDelete)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	Describe("folds", func() {
		BeforeEach(func() {
			repo.put(&permission.CompanyAccess{UserID: 5, CompanyID: 10, Permissions: []string{"incomes:read"}})
		})

		It("HasAnyPermission is an OR", func() {
			ok, err := checker.HasAnyPermission(ctx, 5, 10, expensesDelete, incomesRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = checker.HasAnyPermission(ctx, 5, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("HasAllPermissions is an AND", func() {
			ok, err := checker.HasAllPermissions(ctx, 5, 10, expensesDelete, incomesRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			ok, err = checker.HasAllPermissions(ctx, 5, 10, incomesRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})
	})

	Describe("GetUserPermissions", func() {
		It("defaults to no access", func() {
			perms, err := checker.GetUserPermissions(ctx, 42, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms.IsOwner).To(BeFalse())
			Expect(perms.Permissions).To(BeEmpty())
			Expect(perms.Permissions).NotTo(BeNil())
		})

		It("returns the stored list", func() {
			repo.put(&permission.CompanyAccess{UserID: 6, CompanyID: 10, IsOwner: true, Permissions: []string{"reports:read"}})

			perms, err := checker.GetUserPermissions(ctx, 6, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms.IsOwner).To(BeTrue())
			Expect(perms.Permissions).To(ConsistOf("reports:read"))
		})
	})

	Describe("legacy role track", func() {
		It("uses the role table when the custom list is empty", func() {
			repo.put(&permission.CompanyAccess{UserID: 7, CompanyID: 10, Role: permission.CompanyRoleViewer, SystemRole: permission.SystemRoleUser})

			ok, err := checker.HasPermission(ctx, 7, 10, incomesRead)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = checker.HasPermission(ctx, 7, 10, expensesDelete)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("gives accountants settlement rights", func() {
			repo.put(&permission.CompanyAccess{UserID: 8, CompanyID: 10, Role: permission.CompanyRoleAccountant, SystemRole: permission.SystemRoleUser})

			ok, err := checker.HasPermission(ctx, 8, 10, settlementsPay)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("grants system admins the company admin set", func() {
			repo.put(&permission.CompanyAccess{UserID: 9, CompanyID: 10, Role: permission.CompanyRoleViewer, SystemRole: permission.SystemRoleAdmin})

			ok, err := checker.HasPermission(ctx, 9, 10, expensesDelete)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("prefers the custom list over the role", func() {
			repo.put(&permission.CompanyAccess{
				UserID: 11, CompanyID: 10,
				Role:        permission.CompanyRoleAdmin,
				SystemRole:  permission.SystemRoleUser,
				Permissions: []string{"incomes:read"},
			})

			ok, err := checker.HasPermission(ctx, 11, 10, expensesDelete)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Require", func() {
		It("returns the generic denial", func() {
			err := checker.Require(ctx, 99, 10, settlementsPay)
			Expect(err).To(MatchError(internal.ErrPermissionDenied))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(403))
			Expect(appErr.Message).NotTo(ContainSubstring("settlements"))
		})

		It("wraps lookup failures as internal errors", func() {
			repo.err = errors.New("connection refused")

			err := checker.Require(ctx, 1, 10, settlementsPay)
			Expect(internal.IsErrorType(err, internal.ErrorTypeInternal)).To(BeTrue())
		})
	})
})

var _ = Describe("ParseCapability", func() {
	It("parses known pairs", func() {
		c, err := permission.ParseCapability("expenses:approve")
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(permission.Cap(permission.ModuleExpenses, permission.ActionApprove)))
		Expect(c.String()).To(Equal("expenses:approve"))
	})

	DescribeTable("rejects",
		func(raw string) {
			_, err := permission.ParseCapability(raw)
			Expect(err).To(HaveOccurred())
		},
		Entry("wildcard action", "expenses:*"),
		Entry("unknown module", "payroll:read"),
		Entry("unknown action", "expenses:explode"),
		Entry("missing separator", "expenses"),
		Entry("extra segment", "expenses:read:all"),
	)

	It("keeps wildcards as grants only", func() {
		g, err := permission.ParseGrant("accounts:*")
		Expect(err).NotTo(HaveOccurred())
		Expect(g.IsWildcard()).To(BeTrue())
		Expect(g.Allows(permission.Cap(permission.ModuleAccounts, permission.ActionImport))).To(BeTrue())
	})
})
