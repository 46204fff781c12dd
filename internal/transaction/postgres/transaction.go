package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
)

// TransactionRepository implements transaction.Repository using GORM.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) WithTx(tx *gorm.DB) transaction.Repository {
	return &TransactionRepository{db: tx}
}

func (r *TransactionRepository) scoped(ctx context.Context, companyID int64, txnType transaction.Type) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&dm.Transaction{}).
		Where("company_id = ? AND type = ?", companyID, string(txnType))
}

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	row := transaction.ToDataModel(t)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	t.ID, t.CreatedAt, t.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, companyID int64, txnType transaction.Type, id int64) (*transaction.Transaction, error) {
	return r.first(r.scoped(ctx, companyID, txnType).Where("id = ?", id))
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, companyID int64, txnType transaction.Type, id int64) (*transaction.Transaction, error) {
	return r.first(r.scoped(ctx, companyID, txnType).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *TransactionRepository) first(q *gorm.DB) (*transaction.Transaction, error) {
	var row dm.Transaction
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return transaction.FromDataModel(&row), nil
}

// LockMany locks rows in id order so concurrent bulk changes cannot deadlock each other.
func (r *TransactionRepository) LockMany(ctx context.Context, companyID int64, txnType transaction.Type, ids []int64) ([]*transaction.Transaction, error) {
	var rows []dm.Transaction
	err := r.scoped(ctx, companyID, txnType).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*transaction.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, transaction.FromDataModel(&rows[i]))
	}
	return out, nil
}

func (r *TransactionRepository) List(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, int64, error) {
	q := r.scoped(ctx, f.CompanyID, f.Type)
	if f.WorkflowStatus != "" {
		q = q.Where("workflow_status = ?", f.WorkflowStatus)
	}
	if f.ApprovalStatus != "" {
		q = q.Where("approval_status = ?", f.ApprovalStatus)
	}
	if f.From != nil {
		q = q.Where("txn_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("txn_date <= ?", *f.To)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []dm.Transaction
	err := q.Order("txn_date DESC, id DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	out := make([]*transaction.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, transaction.FromDataModel(&rows[i]))
	}
	return out, total, nil
}

func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	t.UpdatedAt = time.Now().UTC()
	row := transaction.ToDataModel(t)
	return r.db.WithContext(ctx).
		Model(&dm.Transaction{ID: t.ID}).
		Select("*").
		Omit("id", "company_id", "type", "created_by", "created_at", "deleted_at").
		Updates(row).Error
}

// UpdateWorkflowStatus only touches rows still in from; the caller compares the count.
func (r *TransactionRepository) UpdateWorkflowStatus(ctx context.Context, companyID int64, txnType transaction.Type, ids []int64, from, to string) (int64, error) {
	res := r.scoped(ctx, companyID, txnType).
		Where("id IN ? AND workflow_status = ?", ids, from).
		Updates(map[string]interface{}{
			"workflow_status": to,
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *TransactionRepository) SoftDelete(ctx context.Context, companyID int64, txnType transaction.Type, id int64) error {
	return r.db.WithContext(ctx).
		Where("company_id = ? AND type = ? AND id = ?", companyID, string(txnType), id).
		Delete(&dm.Transaction{}).Error
}

func (r *TransactionRepository) PaymentsFor(ctx context.Context, txnIDs []int64) (map[int64][]*transaction.Payment, error) {
	out := make(map[int64][]*transaction.Payment, len(txnIDs))
	if len(txnIDs) == 0 {
		return out, nil
	}
	var rows []dm.Payment
	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", txnIDs).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		p := transaction.PaymentFromDataModel(&rows[i])
		out[p.TransactionID] = append(out[p.TransactionID], p)
	}
	return out, nil
}
