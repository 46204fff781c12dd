package user_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	dmaccess "github.com/frahmantamala/bookkeeping/internal/core/datamodel/access"
	"github.com/frahmantamala/bookkeeping/internal/core/store/storetest"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	permissionpg "github.com/frahmantamala/bookkeeping/internal/permission/postgres"
	"github.com/frahmantamala/bookkeeping/internal/user"
	"github.com/frahmantamala/bookkeeping/internal/user/postgres"
)

var _ = Describe("Me", func() {
	var (
		db    *gorm.DB
		users *postgres.UserRepository
		svc   *user.Service
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		db, err = storetest.OpenSQLite()
		Expect(err).NotTo(HaveOccurred())
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		accesses := permissionpg.NewAccessRepository(db)
		users = postgres.NewUserRepository(db)
		svc = user.NewService(users, accesses, permission.NewChecker(accesses, logger), logger)
		ctx = context.Background()

		Expect(db.Create(&[]dmaccess.Company{{ID: 1, Name: "Siam Bakery"}, {ID: 2, Name: "Chiang Mai Crafts"}}).Error).To(Succeed())
	})

	grant := func(userID, companyID int64, owner bool, role string, perms ...string) {
		row := &dmaccess.CompanyAccess{UserID: userID, CompanyID: companyID, IsOwner: owner, Permissions: datatypes.NewJSONSlice(perms)}
		if role != "" {
			row.Role = &role
		}
		Expect(db.Create(row).Error).To(Succeed())
	}

	It("lists every membership with its resolved grants", func() {
		u := &user.User{Email: "nok@example.com", Name: "Nok", PasswordHash: "x", SystemRole: permission.SystemRoleUser, IsActive: true}
		Expect(users.Upsert(ctx, u)).To(Succeed())
		grant(u.ID, 1, true, "")
		grant(u.ID, 2, false, permission.CompanyRoleViewer)

		profile, err := svc.Me(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.Email).To(Equal("nok@example.com"))
		Expect(profile.Companies).To(HaveLen(2))
		Expect(profile.Companies[0].CompanyName).To(Equal("Siam Bakery"))
		Expect(profile.Companies[0].IsOwner).To(BeTrue())
		Expect(profile.Companies[1].Permissions).To(ContainElement("expenses:read"))
		Expect(profile.Companies[1].Permissions).NotTo(ContainElement("expenses:create"))
	})

	It("gives system admins the admin set on role-based rows", func() {
		u := &user.User{Email: "root@example.com", Name: "Root", PasswordHash: "x", SystemRole: permission.SystemRoleAdmin, IsActive: true}
		Expect(users.Upsert(ctx, u)).To(Succeed())
		grant(u.ID, 1, false, permission.CompanyRoleViewer)

		profile, err := svc.Me(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.Companies[0].Permissions).To(ContainElement("settlements:*"))
	})

	It("stores an inactive user as inactive", func() {
		u := &user.User{Email: "former@example.com", Name: "Former", PasswordHash: "x", SystemRole: permission.SystemRoleUser}
		Expect(users.Upsert(ctx, u)).To(Succeed())

		stored, err := users.GetByID(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.IsActive).To(BeFalse())
	})

	It("reports an unknown user", func() {
		_, err := svc.Me(ctx, 404)
		e, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(e.Code).To(Equal(internal.ErrCodeUserNotFound))
	})

	It("serves GET /users/me and hides the password hash", func() {
		u := &user.User{Email: "nok@example.com", Name: "Nok", PasswordHash: "secret-hash", SystemRole: permission.SystemRoleUser, IsActive: true}
		Expect(users.Upsert(ctx, u)).To(Succeed())
		h := user.NewHandler(svc, nil)

		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req = req.WithContext(internal.ContextWithUser(req.Context(), &internal.CurrentUser{ID: u.ID}))
		rec := httptest.NewRecorder()
		h.GetCurrentUser(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).NotTo(ContainSubstring("secret-hash"))
		var body map[string]interface{}
		Expect(json.NewDecoder(rec.Body).Decode(&body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("name", "Nok"))
		Expect(body).To(HaveKeyWithValue("companies", BeEmpty()))
	})
})
