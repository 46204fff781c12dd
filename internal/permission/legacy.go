package permission

const (
	SystemRoleAdmin = "ADMIN"
	SystemRoleUser  = "USER"

	CompanyRoleOwner      = "OWNER"
	CompanyRoleAdmin      = "ADMIN"
	CompanyRoleAccountant = "ACCOUNTANT"
	CompanyRoleStaff      = "STAFF"
	CompanyRoleViewer     = "VIEWER"
)

var viewerGrants = []string{
	"expenses:read", "incomes:read", "reimbursements:read", "settlements:read", "accounts:read", "reports:read",
}

var staffGrants = append(append([]string{}, viewerGrants...),
	"expenses:create", "incomes:create", "reimbursements:create",
)

var accountantGrants = append(append([]string{}, staffGrants...),
	"expenses:update", "incomes:update", "expenses:delete", "incomes:delete",
	"settlements:*", "accounts:*", "reimbursements:pay", "audit:read",
)

var adminGrants = func() []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		out = append(out, ModuleWildcard(m).String())
	}
	return out
}()

var companyRoleGrants = map[string][]string{
	CompanyRoleOwner:      adminGrants,
	CompanyRoleAdmin:      adminGrants,
	CompanyRoleAccountant: accountantGrants,
	CompanyRoleStaff:      staffGrants,
	CompanyRoleViewer:     viewerGrants,
}

// legacyGrants resolves the fixed grant set for a system role × company role pair.
func legacyGrants(systemRole, companyRole string) []string {
	if systemRole == SystemRoleAdmin {
		return adminGrants
	}
	return companyRoleGrants[companyRole]
}

func IsCompanyRole(role string) bool {
	_, ok := companyRoleGrants[role]
	return ok
}
