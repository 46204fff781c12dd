package reimbursement

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Request struct {
	ID              int64                       `gorm:"primaryKey"`
	CompanyID       int64                       `gorm:"column:company_id;not null;index"`
	TrackingCode    string                      `gorm:"column:tracking_code;size:9;not null;uniqueIndex"`
	RequesterUserID *int64                      `gorm:"column:requester_user_id;index"`
	RequesterName   string                      `gorm:"column:requester_name;not null"`
	RequesterEmail  string                      `gorm:"column:requester_email"`
	BankName        string                      `gorm:"column:bank_name;not null"`
	BankAccountNo   string                      `gorm:"column:bank_account_no;not null"`
	BankAccountName string                      `gorm:"column:bank_account_name;not null"`
	Description     string                      `gorm:"column:description;not null"`
	BillDate        time.Time                   `gorm:"column:bill_date;type:date;not null"`
	AccountID       *int64                      `gorm:"column:account_id"`
	Amount          decimal.Decimal             `gorm:"column:amount;type:numeric(15,2);not null"`
	VATAmount       decimal.Decimal             `gorm:"column:vat_amount;type:numeric(15,2);not null"`
	NetAmount       decimal.Decimal             `gorm:"column:net_amount;type:numeric(15,2);not null"`
	Status          string                      `gorm:"column:status;size:16;not null;index"`
	FraudScore      int                         `gorm:"column:fraud_score;not null;default:0"`
	FraudFlags      datatypes.JSONSlice[string] `gorm:"column:fraud_flags"`
	RejectionReason *string                     `gorm:"column:rejection_reason"`
	ApprovedBy      *int64                      `gorm:"column:approved_by"`
	ApprovedAt      *time.Time                  `gorm:"column:approved_at"`
	RejectedBy      *int64                      `gorm:"column:rejected_by"`
	RejectedAt      *time.Time                  `gorm:"column:rejected_at"`
	PaidBy          *int64                      `gorm:"column:paid_by"`
	PaidAt          *time.Time                  `gorm:"column:paid_at"`
	PaymentRef      *string                     `gorm:"column:payment_ref"`
	PaymentMethod   *string                     `gorm:"column:payment_method"`
	ExpenseID       *int64                      `gorm:"column:expense_id"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt              `gorm:"column:deleted_at;index"`
}

func (Request) TableName() string {
	return "reimbursement_requests"
}

type Event struct {
	ID         int64     `gorm:"primaryKey"`
	RequestID  int64     `gorm:"column:request_id;not null;index"`
	FromStatus *string   `gorm:"column:from_status"`
	ToStatus   string    `gorm:"column:to_status;not null"`
	ActorID    *int64    `gorm:"column:actor_id"`
	ActorName  *string   `gorm:"column:actor_name"`
	Note       *string   `gorm:"column:note"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Event) TableName() string {
	return "reimbursement_events"
}

// TrackingCode rows are never deleted; the primary key keeps every issued code unique.
type TrackingCode struct {
	Code     string    `gorm:"column:code;primaryKey;size:9"`
	IssuedAt time.Time `gorm:"column:issued_at;autoCreateTime"`
}

func (TrackingCode) TableName() string {
	return "tracking_codes"
}
