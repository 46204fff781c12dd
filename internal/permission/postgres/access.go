package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/access"
	dmuser "github.com/frahmantamala/bookkeeping/internal/core/datamodel/user"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

type AccessRepository struct {
	db *gorm.DB
}

func NewAccessRepository(db *gorm.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

func (r *AccessRepository) WithTx(tx *gorm.DB) *AccessRepository {
	return &AccessRepository{db: tx}
}

func (r *AccessRepository) FindAccess(ctx context.Context, userID, companyID int64) (*permission.CompanyAccess, error) {
	var row dm.CompanyAccess
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ?", userID, companyID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	access := permission.FromDataModel(&row)
	if access.Role != "" {
		var u dmuser.User
		err := r.db.WithContext(ctx).Select("system_role").Where("id = ?", userID).First(&u).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		access.SystemRole = u.SystemRole
	}
	return access, nil
}

func (r *AccessRepository) ListAccessesForUser(ctx context.Context, userID int64) ([]*permission.CompanyAccess, error) {
	type accessWithCompany struct {
		dm.CompanyAccess
		CompanyName string
	}
	var rows []accessWithCompany
	err := r.db.WithContext(ctx).
		Table("company_accesses").
		Select("company_accesses.*, companies.name AS company_name").
		Joins("JOIN companies ON companies.id = company_accesses.company_id").
		Where("company_accesses.user_id = ?", userID).
		Order("company_accesses.company_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*permission.CompanyAccess, 0, len(rows))
	for i := range rows {
		a := permission.FromDataModel(&rows[i].CompanyAccess)
		a.CompanyName = rows[i].CompanyName
		out = append(out, a)
	}
	return out, nil
}

// Grant inserts or replaces a membership row.
func (r *AccessRepository) Grant(ctx context.Context, a *permission.CompanyAccess) error {
	row := permission.ToDataModel(a)
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ?", row.UserID, row.CompanyID).
		Assign(map[string]interface{}{
			"is_owner":    row.IsOwner,
			"permissions": row.Permissions,
			"role":        row.Role,
		}).
		FirstOrCreate(row).Error
	if err != nil {
		return err
	}
	a.ID = row.ID
	return nil
}
