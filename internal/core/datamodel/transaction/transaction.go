package transaction

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Transaction struct {
	ID                     int64            `gorm:"primaryKey"`
	CompanyID              int64            `gorm:"column:company_id;not null;index"`
	Type                   string           `gorm:"column:type;size:16;not null;index"`
	Amount                 decimal.Decimal  `gorm:"column:amount;type:numeric(15,2);not null"`
	VATRate                decimal.Decimal  `gorm:"column:vat_rate;type:numeric(5,2);not null"`
	VATAmount              decimal.Decimal  `gorm:"column:vat_amount;type:numeric(15,2);not null"`
	IsWHT                  bool             `gorm:"column:is_wht;not null;default:false"`
	WHTRate                *decimal.Decimal `gorm:"column:wht_rate;type:numeric(5,2)"`
	WHTType                *string          `gorm:"column:wht_type;size:32"`
	WHTAmount              decimal.Decimal  `gorm:"column:wht_amount;type:numeric(15,2);not null"`
	NetAmount              decimal.Decimal  `gorm:"column:net_amount;type:numeric(15,2);not null"`
	TxnDate                time.Time        `gorm:"column:txn_date;type:date;not null"`
	ContactID              *int64           `gorm:"column:contact_id"`
	AccountID              *int64           `gorm:"column:account_id"`
	Description            string           `gorm:"column:description"`
	DocumentType           string           `gorm:"column:document_type;size:16;not null"`
	HasDocument            bool             `gorm:"column:has_document;not null;default:false"`
	WorkflowStatus         string           `gorm:"column:workflow_status;size:32;not null;index"`
	ApprovalStatus         string           `gorm:"column:approval_status;size:16;not null"`
	RejectionReason        *string          `gorm:"column:rejection_reason"`
	IsReimbursement        bool             `gorm:"column:is_reimbursement;not null;default:false"`
	ReimbursementRequestID *int64           `gorm:"column:reimbursement_request_id"`
	CreatedBy              int64            `gorm:"column:created_by;not null"`
	ApprovedBy             *int64           `gorm:"column:approved_by"`
	ApprovedAt             *time.Time       `gorm:"column:approved_at"`
	CreatedAt              time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt              gorm.DeletedAt   `gorm:"column:deleted_at;index"`
}

func (Transaction) TableName() string {
	return "transactions"
}

type Payment struct {
	ID               int64           `gorm:"primaryKey"`
	TransactionID    int64           `gorm:"column:transaction_id;not null;index"`
	CompanyID        int64           `gorm:"column:company_id;not null;index"`
	PaidByType       string          `gorm:"column:paid_by_type;size:16;not null"`
	PaidByUserID     *int64          `gorm:"column:paid_by_user_id;index"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null"`
	SettlementStatus string          `gorm:"column:settlement_status;size:16;not null;index"`
	SettledAt        *time.Time      `gorm:"column:settled_at"`
	SettlementRef    *string         `gorm:"column:settlement_ref"`
	SettledBy        *int64          `gorm:"column:settled_by"`
	ReversedAt       *time.Time      `gorm:"column:reversed_at"`
	ReversedBy       *int64          `gorm:"column:reversed_by"`
	ReversalReason   *string         `gorm:"column:reversal_reason"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

type SettlementEvent struct {
	ID            int64      `gorm:"primaryKey"`
	PaymentID     int64      `gorm:"column:payment_id;not null;index"`
	CompanyID     int64      `gorm:"column:company_id;not null"`
	Action        string     `gorm:"column:action;size:16;not null"`
	SettledAt     *time.Time `gorm:"column:settled_at"`
	SettlementRef *string    `gorm:"column:settlement_ref"`
	ActorID       int64      `gorm:"column:actor_id;not null"`
	Reason        *string    `gorm:"column:reason"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (SettlementEvent) TableName() string {
	return "settlement_events"
}
