package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	dmuser "github.com/frahmantamala/bookkeeping/internal/core/datamodel/user"
	"github.com/frahmantamala/bookkeeping/internal/user"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var row dmuser.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user.FromDataModel(&row), nil
}

// Upsert keys on email, so seeding can run more than once.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	row := user.ToDataModel(u)
	err := r.db.WithContext(ctx).
		Where("email = ?", row.Email).
		Assign(map[string]interface{}{
			"name":          row.Name,
			"password_hash": row.PasswordHash,
			"system_role":   row.SystemRole,
			"is_active":     row.IsActive,
		}).
		FirstOrCreate(row).Error
	if err != nil {
		return err
	}
	u.ID, u.CreatedAt, u.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}
