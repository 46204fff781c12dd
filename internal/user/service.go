package user

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}

type AccessLister interface {
	ListAccessesForUser(ctx context.Context, userID int64) ([]*permission.CompanyAccess, error)
}

type GrantResolver interface {
	EffectiveGrants(access *permission.CompanyAccess) []string
}

type Service struct {
	repo     Repository
	accesses AccessLister
	grants   GrantResolver
	logger   *slog.Logger
}

func NewService(repo Repository, accesses AccessLister, grants GrantResolver, logger *slog.Logger) *Service {
	return &Service{repo: repo, accesses: accesses, grants: grants, logger: logger}
}

// Me loads the caller with every company membership.
func (s *Service) Me(ctx context.Context, userID int64) (*Profile, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if u == nil {
		return nil, internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
	}

	accesses, err := s.accesses.ListAccessesForUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load company accesses", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to load company accesses", err)
	}

	profile := &Profile{User: u, Companies: make([]CompanyMembership, 0, len(accesses))}
	for _, a := range accesses {
		a.SystemRole = u.SystemRole
		profile.Companies = append(profile.Companies, CompanyMembership{
			CompanyID:   a.CompanyID,
			CompanyName: a.CompanyName,
			IsOwner:     a.IsOwner,
			Role:        a.Role,
			Permissions: s.grants.EffectiveGrants(a),
		})
	}
	return profile, nil
}
