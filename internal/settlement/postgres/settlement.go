package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
	"github.com/frahmantamala/bookkeeping/internal/settlement"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) WithTx(tx *gorm.DB) settlement.Repository {
	return &SettlementRepository{db: tx}
}

func (r *SettlementRepository) InsertPayments(ctx context.Context, payments []*transaction.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	rows := make([]*dm.Payment, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, transaction.PaymentToDataModel(p))
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}
	for i, row := range rows {
		payments[i].ID, payments[i].CreatedAt = row.ID, row.CreatedAt
	}
	return nil
}

func (r *SettlementRepository) ActivePayments(ctx context.Context, txnID int64) ([]*transaction.Payment, error) {
	var rows []dm.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ? AND settlement_status <> ?", txnID, transaction.SettlementReversed).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toPayments(rows), nil
}

// VoidPayments marks the current split REVERSED; voided rows never count again.
func (r *SettlementRepository) VoidPayments(ctx context.Context, txnID, actorID int64, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&dm.Payment{}).
		Where("transaction_id = ? AND settlement_status <> ?", txnID, transaction.SettlementReversed).
		Updates(map[string]interface{}{
			"settlement_status": transaction.SettlementReversed,
			"reversed_at":       at,
			"reversed_by":       actorID,
			"reversal_reason":   reason,
		}).Error
}

func (r *SettlementRepository) GetPayment(ctx context.Context, companyID, paymentID int64) (*transaction.Payment, error) {
	var row dm.Payment
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, paymentID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return transaction.PaymentFromDataModel(&row), nil
}

func (r *SettlementRepository) LockPayments(ctx context.Context, companyID int64, ids []int64) ([]*transaction.Payment, error) {
	var rows []dm.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id IN ?", companyID, ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toPayments(rows), nil
}

func (r *SettlementRepository) DeletedTransactions(ctx context.Context, txnIDs []int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Unscoped().
		Model(&dm.Transaction{}).
		Where("id IN ? AND deleted_at IS NOT NULL", txnIDs).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// MarkSettled only touches rows still PENDING, so a concurrent settle cannot count twice.
func (r *SettlementRepository) MarkSettled(ctx context.Context, ids []int64, settledAt time.Time, ref *string, actorID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&dm.Payment{}).
		Where("id IN ? AND settlement_status = ?", ids, transaction.SettlementPending).
		Updates(map[string]interface{}{
			"settlement_status": transaction.SettlementSettled,
			"settled_at":        settledAt,
			"settlement_ref":    ref,
			"settled_by":        actorID,
		})
	return res.RowsAffected, res.Error
}

func (r *SettlementRepository) MarkReversed(ctx context.Context, id, actorID int64, reason string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&dm.Payment{}).
		Where("id = ? AND settlement_status = ?", id, transaction.SettlementSettled).
		Updates(map[string]interface{}{
			"settlement_status": transaction.SettlementPending,
			"settled_at":        nil,
			"settlement_ref":    nil,
			"settled_by":        nil,
			"reversed_at":       at,
			"reversed_by":       actorID,
			"reversal_reason":   reason,
		})
	return res.RowsAffected, res.Error
}

func (r *SettlementRepository) AppendEvents(ctx context.Context, events []*settlement.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*dm.SettlementEvent, 0, len(events))
	for _, e := range events {
		rows = append(rows, settlement.EventToDataModel(e))
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}
	for i, row := range rows {
		events[i].ID, events[i].CreatedAt = row.ID, row.CreatedAt
	}
	return nil
}

func (r *SettlementRepository) Events(ctx context.Context, companyID, paymentID int64) ([]*settlement.Event, error) {
	var rows []dm.SettlementEvent
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND payment_id = ?", companyID, paymentID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*settlement.Event, 0, len(rows))
	for i := range rows {
		out = append(out, settlement.EventFromDataModel(&rows[i]))
	}
	return out, nil
}

// ListRows returns USER allocations in status, joined with their parent transaction.
func (r *SettlementRepository) ListRows(ctx context.Context, companyID int64, status string, includeDeleted bool) ([]*settlement.Row, error) {
	type paymentRow struct {
		dm.Payment
		TxnDate      time.Time
		Description  string
		TxnDeletedAt *time.Time
	}

	q := r.db.WithContext(ctx).
		Table("payments").
		Select("payments.*, transactions.txn_date AS txn_date, transactions.description AS description, transactions.deleted_at AS txn_deleted_at").
		Joins("JOIN transactions ON transactions.id = payments.transaction_id").
		Where("payments.company_id = ? AND payments.paid_by_type = ? AND payments.settlement_status = ?",
			companyID, string(transaction.PayerUser), status)
	if !includeDeleted {
		q = q.Where("transactions.deleted_at IS NULL")
	}

	var rows []paymentRow
	if err := q.Order("transactions.txn_date, payments.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*settlement.Row, 0, len(rows))
	for i := range rows {
		out = append(out, &settlement.Row{
			Payment:            transaction.PaymentFromDataModel(&rows[i].Payment),
			TxnDate:            rows[i].TxnDate,
			Description:        rows[i].Description,
			TransactionDeleted: rows[i].TxnDeletedAt != nil,
		})
	}
	return out, nil
}

func (r *SettlementRepository) Unbalanced(ctx context.Context, companyID int64, tolerance decimal.Decimal) ([]*settlement.Imbalance, error) {
	type sumRow struct {
		ID        int64
		NetAmount decimal.Decimal
		Allocated decimal.Decimal
	}
	var rows []sumRow
	err := r.db.WithContext(ctx).
		Table("transactions").
		Select("transactions.id, transactions.net_amount, COALESCE(SUM(payments.amount), 0) AS allocated").
		Joins("LEFT JOIN payments ON payments.transaction_id = transactions.id AND payments.settlement_status <> ?", transaction.SettlementReversed).
		Where("transactions.company_id = ? AND transactions.type = ? AND transactions.deleted_at IS NULL", companyID, string(transaction.TypeExpense)).
		Group("transactions.id, transactions.net_amount").
		Order("transactions.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var out []*settlement.Imbalance
	for _, row := range rows {
		diff := row.NetAmount.Sub(row.Allocated)
		if diff.Abs().GreaterThan(tolerance) {
			out = append(out, &settlement.Imbalance{
				TransactionID: row.ID,
				NetAmount:     row.NetAmount,
				Allocated:     row.Allocated,
				Difference:    diff,
			})
		}
	}
	return out, nil
}

func toPayments(rows []dm.Payment) []*transaction.Payment {
	out := make([]*transaction.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, transaction.PaymentFromDataModel(&rows[i]))
	}
	return out
}
