package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/bookkeeping/internal/account"
	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/account"
)

const importBatchSize = 500

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) WithTx(tx *gorm.DB) account.Repository {
	return &AccountRepository{db: tx}
}

func (r *AccountRepository) List(ctx context.Context, companyID int64, class string) ([]*account.Account, error) {
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if class != "" {
		q = q.Where("class = ?", class)
	}
	var rows []dm.Account
	if err := q.Order("code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*account.Account, 0, len(rows))
	for i := range rows {
		out = append(out, account.FromDataModel(&rows[i]))
	}
	return out, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, companyID, id int64) (*account.Account, error) {
	var row dm.Account
	err := r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account.FromDataModel(&row), nil
}

func (r *AccountRepository) Create(ctx context.Context, a *account.Account) (bool, error) {
	row := account.ToDataModel(a)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	a.ID, a.CreatedAt, a.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return true, nil
}

func (r *AccountRepository) ExistingCodes(ctx context.Context, companyID int64, codes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	var found []string
	err := r.db.WithContext(ctx).
		Model(&dm.Account{}).
		Where("company_id = ? AND code IN ?", companyID, codes).
		Pluck("code", &found).Error
	if err != nil {
		return nil, err
	}
	for _, c := range found {
		out[c] = true
	}
	return out, nil
}

// Upsert keys on (company_id, code); an existing row takes the imported name, class and state.
func (r *AccountRepository) Upsert(ctx context.Context, accounts []*account.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	rows := make([]*dm.Account, len(accounts))
	for i, a := range accounts {
		rows[i] = account.ToDataModel(a)
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "class", "source", "is_active", "updated_at"}),
		}).
		CreateInBatches(rows, importBatchSize).Error
	if err != nil {
		return err
	}
	for i, row := range rows {
		accounts[i].ID, accounts[i].CreatedAt, accounts[i].UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	}
	return nil
}
