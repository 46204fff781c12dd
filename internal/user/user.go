package user

import (
	"time"

	dmuser "github.com/frahmantamala/bookkeeping/internal/core/datamodel/user"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	SystemRole   string    `json:"system_role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) IsSystemAdmin() bool {
	return u.SystemRole == permission.SystemRoleAdmin
}

// CompanyMembership is one company the user can act in, with the grants it resolves to.
type CompanyMembership struct {
	CompanyID   int64    `json:"company_id"`
	CompanyName string   `json:"company_name"`
	IsOwner     bool     `json:"is_owner"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
}

type Profile struct {
	*User
	Companies []CompanyMembership `json:"companies"`
}

func ToDataModel(u *User) *dmuser.User {
	return &dmuser.User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		SystemRole:   u.SystemRole,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModel(u *dmuser.User) *User {
	return &User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		SystemRole:   u.SystemRole,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
