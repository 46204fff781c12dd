package permission

import (
	"time"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/access"
)

// CompanyAccess is a user's membership in one company.
type CompanyAccess struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	CompanyID   int64     `json:"company_id"`
	CompanyName string    `json:"company_name,omitempty"`
	IsOwner     bool      `json:"is_owner"`
	Permissions []string  `json:"permissions"`
	Role        string    `json:"role,omitempty"`
	SystemRole  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserPermissions is the UI view of a caller's access in a company.
type UserPermissions struct {
	IsOwner     bool     `json:"is_owner"`
	Permissions []string `json:"permissions"`
}

func FromDataModel(a *dm.CompanyAccess) *CompanyAccess {
	out := &CompanyAccess{
		ID:          a.ID,
		UserID:      a.UserID,
		CompanyID:   a.CompanyID,
		IsOwner:     a.IsOwner,
		Permissions: append([]string{}, a.Permissions...),
		CreatedAt:   a.CreatedAt,
	}
	if a.Role != nil {
		out.Role = *a.Role
	}
	return out
}

func ToDataModel(a *CompanyAccess) *dm.CompanyAccess {
	row := &dm.CompanyAccess{
		ID:          a.ID,
		UserID:      a.UserID,
		CompanyID:   a.CompanyID,
		IsOwner:     a.IsOwner,
		Permissions: append([]string{}, a.Permissions...),
	}
	if a.Role != "" {
		role := a.Role
		row.Role = &role
	}
	return row
}
