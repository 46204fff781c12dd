package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/reimbursement"
	"github.com/frahmantamala/bookkeeping/internal/reimbursement"
)

type ReimbursementRepository struct {
	db *gorm.DB
}

func NewReimbursementRepository(db *gorm.DB) *ReimbursementRepository {
	return &ReimbursementRepository{db: db}
}

func (r *ReimbursementRepository) WithTx(tx *gorm.DB) reimbursement.Repository {
	return &ReimbursementRepository{db: tx}
}

// IssueCode inserts into the registry with ON CONFLICT DO NOTHING, so a collision
// does not abort the surrounding transaction.
func (r *ReimbursementRepository) IssueCode(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&dm.TrackingCode{Code: code})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ReimbursementRepository) Create(ctx context.Context, req *reimbursement.Request) error {
	row := reimbursement.ToDataModel(req)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	req.ID, req.CreatedAt, req.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *ReimbursementRepository) GetByID(ctx context.Context, companyID, id int64) (*reimbursement.Request, error) {
	return r.first(r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id))
}

func (r *ReimbursementRepository) GetForUpdate(ctx context.Context, companyID, id int64) (*reimbursement.Request, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id = ?", companyID, id))
}

func (r *ReimbursementRepository) GetByCode(ctx context.Context, code string) (*reimbursement.Request, error) {
	return r.first(r.db.WithContext(ctx).Where("tracking_code = ?", code))
}

func (r *ReimbursementRepository) FindForSignal(ctx context.Context, id int64, code string) (*reimbursement.Request, error) {
	q := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	if id > 0 {
		q = q.Where("id = ?", id)
	}
	if code != "" {
		q = q.Where("tracking_code = ?", code)
	}
	return r.first(q)
}

func (r *ReimbursementRepository) first(q *gorm.DB) (*reimbursement.Request, error) {
	var row dm.Request
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reimbursement.FromDataModel(&row), nil
}

func (r *ReimbursementRepository) List(ctx context.Context, companyID int64, f reimbursement.Filter) ([]*reimbursement.Request, int64, error) {
	q := r.db.WithContext(ctx).Model(&dm.Request{}).Where("company_id = ?", companyID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []dm.Request
	err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]*reimbursement.Request, 0, len(rows))
	for i := range rows {
		out = append(out, reimbursement.FromDataModel(&rows[i]))
	}
	return out, total, nil
}

func (r *ReimbursementRepository) Update(ctx context.Context, req *reimbursement.Request) error {
	row := reimbursement.ToDataModel(req)
	res := r.db.WithContext(ctx).
		Model(&dm.Request{ID: req.ID}).
		Select("*").
		Omit("id", "company_id", "tracking_code", "requester_user_id", "created_at", "deleted_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	req.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *ReimbursementRepository) AppendEvent(ctx context.Context, e *reimbursement.Event) error {
	row := reimbursement.EventToDataModel(e)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	e.ID, e.CreatedAt = row.ID, row.CreatedAt
	return nil
}

// Timeline returns events oldest first; actors without a stored name take it from users.
func (r *ReimbursementRepository) Timeline(ctx context.Context, requestID int64) ([]*reimbursement.Event, error) {
	type eventRow struct {
		dm.Event
		UserName *string
	}
	var rows []eventRow
	err := r.db.WithContext(ctx).
		Table("reimbursement_events").
		Select("reimbursement_events.*, users.name AS user_name").
		Joins("LEFT JOIN users ON users.id = reimbursement_events.actor_id").
		Where("reimbursement_events.request_id = ?", requestID).
		Order("reimbursement_events.created_at, reimbursement_events.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*reimbursement.Event, 0, len(rows))
	for i := range rows {
		e := reimbursement.EventFromDataModel(&rows[i].Event)
		if e.ActorName == nil {
			e.ActorName = rows[i].UserName
		}
		out = append(out, e)
	}
	return out, nil
}

// CountSimilar counts earlier live requests paying the same amount to the same account.
func (r *ReimbursementRepository) CountSimilar(ctx context.Context, companyID int64, bankAccountNo string, amount decimal.Decimal, since time.Time, excludeID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&dm.Request{}).
		Where("company_id = ? AND bank_account_no = ? AND amount = ? AND bill_date >= ? AND id <> ? AND status <> ?",
			companyID, bankAccountNo, amount, since, excludeID, reimbursement.StatusRejected).
		Count(&n).Error
	return n, err
}
