package permission

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/bookkeeping/internal"
)

type Repository interface {
	// FindAccess returns nil, nil when the user has no row for the company.
	FindAccess(ctx context.Context, userID, companyID int64) (*CompanyAccess, error)
	ListAccessesForUser(ctx context.Context, userID int64) ([]*CompanyAccess, error)
}

// Authorizer is what the domain services depend on.
type Authorizer interface {
	HasPermission(ctx context.Context, userID, companyID int64, c Capability) (bool, error)
	Require(ctx context.Context, userID, companyID int64, c Capability) error
}

type Checker struct {
	repo   Repository
	logger *slog.Logger
}

func NewChecker(repo Repository, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{repo: repo, logger: logger}
}

func (c *Checker) HasPermission(ctx context.Context, userID, companyID int64, cap Capability) (bool, error) {
	access, err := c.repo.FindAccess(ctx, userID, companyID)
	if err != nil {
		return false, err
	}
	return c.allows(access, cap), nil
}

func (c *Checker) HasAnyPermission(ctx context.Context, userID, companyID int64, caps ...Capability) (bool, error) {
	access, err := c.repo.FindAccess(ctx, userID, companyID)
	if err != nil {
		return false, err
	}
	for _, cap := range caps {
		if c.allows(access, cap) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Checker) HasAllPermissions(ctx context.Context, userID, companyID int64, caps ...Capability) (bool, error) {
	access, err := c.repo.FindAccess(ctx, userID, companyID)
	if err != nil {
		return false, err
	}
	for _, cap := range caps {
		if !c.allows(access, cap) {
			return false, nil
		}
	}
	return true, nil
}

func (c *Checker) GetUserPermissions(ctx context.Context, userID, companyID int64) (UserPermissions, error) {
	access, err := c.repo.FindAccess(ctx, userID, companyID)
	if err != nil {
		return UserPermissions{}, err
	}
	if access == nil {
		return UserPermissions{IsOwner: false, Permissions: []string{}}, nil
	}
	return UserPermissions{IsOwner: access.IsOwner, Permissions: c.effectiveGrants(access)}, nil
}

// Require turns a denied check into the generic PermissionDenied error.
func (c *Checker) Require(ctx context.Context, userID, companyID int64, cap Capability) error {
	ok, err := c.HasPermission(ctx, userID, companyID, cap)
	if err != nil {
		c.logger.ErrorContext(ctx, "permission lookup failed",
			"error", err, "user_id", userID, "company_id", companyID, "permission", cap.String())
		return internal.NewInternalError("failed to check permissions", err)
	}
	if !ok {
		c.logger.WarnContext(ctx, "access denied: insufficient permissions",
			"user_id", userID, "company_id", companyID, "required_permission", cap.String())
		return internal.ErrPermissionDenied
	}
	return nil
}

func (c *Checker) allows(access *CompanyAccess, cap Capability) bool {
	if access == nil {
		return false
	}
	if access.IsOwner {
		return true
	}
	for _, raw := range c.effectiveGrants(access) {
		g, err := ParseGrant(raw)
		if err != nil {
			c.logger.Warn("ignoring malformed permission", "permission", raw, "user_id", access.UserID, "company_id", access.CompanyID)
			continue
		}
		if g.Allows(cap) {
			return true
		}
	}
	return false
}

// EffectiveGrants is the grant list a membership row resolves to. Owners are reported
// through IsOwner rather than an expanded list.
func (c *Checker) EffectiveGrants(access *CompanyAccess) []string {
	if access == nil {
		return []string{}
	}
	return c.effectiveGrants(access)
}

// effectiveGrants prefers the row's custom list; the role table only fills in when it is empty.
func (c *Checker) effectiveGrants(access *CompanyAccess) []string {
	if len(access.Permissions) > 0 {
		return access.Permissions
	}
	if access.Role == "" {
		return []string{}
	}
	return append([]string{}, legacyGrants(access.SystemRole, access.Role)...)
}
