package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
)

const (
	ActionSettled  = "SETTLED"
	ActionReversed = "REVERSED"
)

const (
	GroupByNone       = ""
	GroupByPayer      = "payer"
	GroupByMonthPayer = "monthPayer"
	GroupByRound      = "round"
)

const voidReason = "payer split replaced"

// Event is one row of a payment's settlement history.
type Event struct {
	ID            int64      `json:"id"`
	PaymentID     int64      `json:"payment_id"`
	CompanyID     int64      `json:"company_id"`
	Action        string     `json:"action"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	SettlementRef *string    `json:"settlement_ref,omitempty"`
	ActorID       int64      `json:"actor_id"`
	Reason        *string    `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Row is a payment joined with the parent fields reports need.
type Row struct {
	Payment            *transaction.Payment
	TxnDate            time.Time
	Description        string
	TransactionDeleted bool
}

type Imbalance struct {
	TransactionID int64           `json:"transaction_id"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Allocated     decimal.Decimal `json:"allocated_amount"`
	Difference    decimal.Decimal `json:"difference"`
}

// Query selects a settlement report. A nil IncludeDeleted lists rows of deleted
// transactions in the ungrouped item list and hides them from grouped reports.
type Query struct {
	Status         string
	GroupBy        string
	IncludeDeleted *bool
}

func (q Query) withDeleted() bool {
	if q.IncludeDeleted == nil {
		return q.GroupBy == GroupByNone
	}
	return *q.IncludeDeleted
}

type Item struct {
	PaymentID          int64           `json:"payment_id"`
	TransactionID      int64           `json:"transaction_id"`
	TxnDate            string          `json:"txn_date"`
	Description        string          `json:"description"`
	PaidByUserID       *int64          `json:"paid_by_user_id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	SettlementStatus   string          `json:"settlement_status"`
	SettledAt          *time.Time      `json:"settled_at,omitempty"`
	SettlementRef      *string         `json:"settlement_ref,omitempty"`
	TransactionDeleted bool            `json:"transaction_deleted,omitempty"`
}

type Group struct {
	Key          string          `json:"key"`
	PaidByUserID *int64          `json:"paid_by_user_id,omitempty"`
	Month        string          `json:"month,omitempty"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
	Items        []Item          `json:"items"`
}

type Report struct {
	Status  string          `json:"status"`
	GroupBy string          `json:"group_by,omitempty"`
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
	Items   []Item          `json:"items,omitempty"`
	Groups  []Group         `json:"groups,omitempty"`
}

type SettleResult struct {
	SettledAt time.Time       `json:"settled_at"`
	Settled   []int64         `json:"settled"`
	Skipped   []int64         `json:"skipped"`
	Total     decimal.Decimal `json:"total"`
}

// Repository returns nil, nil for a missing payment.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertPayments(ctx context.Context, payments []*transaction.Payment) error
	ActivePayments(ctx context.Context, txnID int64) ([]*transaction.Payment, error)
	VoidPayments(ctx context.Context, txnID, actorID int64, reason string, at time.Time) error
	GetPayment(ctx context.Context, companyID, paymentID int64) (*transaction.Payment, error)
	LockPayments(ctx context.Context, companyID int64, ids []int64) ([]*transaction.Payment, error)
	DeletedTransactions(ctx context.Context, txnIDs []int64) ([]int64, error)
	MarkSettled(ctx context.Context, ids []int64, settledAt time.Time, ref *string, actorID int64) (int64, error)
	MarkReversed(ctx context.Context, id, actorID int64, reason string, at time.Time) (int64, error)
	AppendEvents(ctx context.Context, events []*Event) error
	Events(ctx context.Context, companyID, paymentID int64) ([]*Event, error)
	ListRows(ctx context.Context, companyID int64, status string, includeDeleted bool) ([]*Row, error)
	Unbalanced(ctx context.Context, companyID int64, tolerance decimal.Decimal) ([]*Imbalance, error)
}

func EventToDataModel(e *Event) *dm.SettlementEvent {
	return &dm.SettlementEvent{
		ID:            e.ID,
		PaymentID:     e.PaymentID,
		CompanyID:     e.CompanyID,
		Action:        e.Action,
		SettledAt:     e.SettledAt,
		SettlementRef: e.SettlementRef,
		ActorID:       e.ActorID,
		Reason:        e.Reason,
		CreatedAt:     e.CreatedAt,
	}
}

func EventFromDataModel(row *dm.SettlementEvent) *Event {
	return &Event{
		ID:            row.ID,
		PaymentID:     row.PaymentID,
		CompanyID:     row.CompanyID,
		Action:        row.Action,
		SettledAt:     row.SettledAt,
		SettlementRef: row.SettlementRef,
		ActorID:       row.ActorID,
		Reason:        row.Reason,
		CreatedAt:     row.CreatedAt,
	}
}
