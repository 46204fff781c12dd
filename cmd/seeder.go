package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal/account"
	accountpg "github.com/frahmantamala/bookkeeping/internal/account/postgres"
	dmaccess "github.com/frahmantamala/bookkeeping/internal/core/datamodel/access"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	permissionpg "github.com/frahmantamala/bookkeeping/internal/permission/postgres"
	"github.com/frahmantamala/bookkeeping/internal/user"
	userpg "github.com/frahmantamala/bookkeeping/internal/user/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with a demo company, its members and a Thai chart of accounts.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if err := seed(context.Background(), db, cfg.Security.BCryptCost); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
		log.Println("seed complete")
	},
}

type seedUser struct {
	email      string
	name       string
	systemRole string
	owner      bool
	role       string
	grants     []string
}

var seedUsers = []seedUser{
	{email: "owner@siamcoffee.co.th", name: "Somchai Owner", systemRole: permission.SystemRoleUser, owner: true},
	{email: "accountant@siamcoffee.co.th", name: "Malee Accountant", systemRole: permission.SystemRoleUser, role: permission.CompanyRoleAccountant},
	{email: "staff@siamcoffee.co.th", name: "Niran Staff", systemRole: permission.SystemRoleUser, role: permission.CompanyRoleStaff},
	{email: "auditor@siamcoffee.co.th", name: "Ploy Auditor", systemRole: permission.SystemRoleUser,
		grants: []string{"expenses:read", "incomes:read", "settlements:read", "audit:read"}},
	{email: "admin@bookkeeping.local", name: "Platform Admin", systemRole: permission.SystemRoleAdmin, role: permission.CompanyRoleAdmin},
}

var seedAccounts = []struct {
	code, name, class string
}{
	{"1111", "Cash on hand", account.ClassAsset},
	{"1112", "Bank deposit - KBank", account.ClassAsset},
	{"1151", "Input VAT", account.ClassAsset},
	{"2151", "Output VAT", account.ClassLiability},
	{"2152", "Withholding tax payable", account.ClassLiability},
	{"2199", "Due to staff (reimbursements)", account.ClassLiability},
	{"3100", "Owner capital", account.ClassEquity},
	{"4100", "Sales revenue", account.ClassRevenue},
	{"4200", "Service revenue", account.ClassRevenue},
	{"5100", "Cost of goods sold", account.ClassExpense},
	{"5210", "Office supplies", account.ClassExpense},
	{"5220", "Travel expense", account.ClassExpense},
	{"5230", "Professional fees", account.ClassExpense},
	{"5240", "Rent expense", account.ClassExpense},
}

func seed(ctx context.Context, db *gorm.DB, cost int) error {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clearData {
			for _, table := range []string{
				"audit_logs", "settlement_events", "payments", "reimbursement_events", "reimbursement_requests",
				"tracking_codes", "transactions", "accounts", "company_accesses", "companies", "users",
			} {
				if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
					return err
				}
			}
			log.Println("cleared existing data")
		}

		company := dmaccess.Company{Name: "Siam Coffee Co., Ltd.", TaxID: "0105561234567"}
		if err := tx.Where("name = ?", company.Name).FirstOrCreate(&company).Error; err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte("password"), cost)
		if err != nil {
			return err
		}

		users := userpg.NewUserRepository(tx)
		accesses := permissionpg.NewAccessRepository(tx)
		for _, su := range seedUsers {
			u := &user.User{Email: su.email, Name: su.name, PasswordHash: string(hash), SystemRole: su.systemRole, IsActive: true}
			if err := users.Upsert(ctx, u); err != nil {
				return err
			}
			err := accesses.Grant(ctx, &permission.CompanyAccess{
				UserID:      u.ID,
				CompanyID:   company.ID,
				IsOwner:     su.owner,
				Role:        su.role,
				Permissions: su.grants,
			})
			if err != nil {
				return err
			}
			log.Printf("seeded user %s (id=%d)", u.Email, u.ID)
		}

		chart := make([]*account.Account, 0, len(seedAccounts))
		for _, a := range seedAccounts {
			chart = append(chart, &account.Account{
				CompanyID: company.ID,
				Code:      a.code,
				Name:      a.name,
				Class:     a.class,
				Source:    account.SourceImported,
				IsActive:  true,
			})
		}
		if err := accountpg.NewAccountRepository(tx).Upsert(ctx, chart); err != nil {
			return err
		}
		log.Printf("seeded company %q (id=%d) with %d accounts", company.Name, company.ID, len(chart))
		return nil
	})
}
