package transaction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
)

type Type string

const (
	TypeExpense Type = "EXPENSE"
	TypeIncome  Type = "INCOME"
)

// ParseType accepts "expense", "expenses", "EXPENSE" and the income equivalents.
func ParseType(s string) (Type, bool) {
	switch strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "S") {
	case string(TypeExpense):
		return TypeExpense, true
	case string(TypeIncome):
		return TypeIncome, true
	}
	return "", false
}

const (
	ApprovalNotRequired = "NOT_REQUIRED"
	ApprovalPending     = "PENDING"
	ApprovalApproved    = "APPROVED"
	ApprovalRejected    = "REJECTED"
)

const (
	DocumentTaxInvoice = "TAX_INVOICE"
	DocumentReceipt    = "RECEIPT"
	DocumentNone       = "NO_DOCUMENT"
)

var documentTypes = []string{DocumentTaxInvoice, DocumentReceipt, DocumentNone}

type PayerType string

const (
	PayerCompany   PayerType = "COMPANY"
	PayerPettyCash PayerType = "PETTY_CASH"
	PayerUser      PayerType = "USER"
)

const (
	SettlementPending  = "PENDING"
	SettlementSettled  = "SETTLED"
	SettlementReversed = "REVERSED"
)

// SplitTolerance is the rounding slack allowed between a payer split and the net amount.
var SplitTolerance = decimal.RequireFromString("0.01")

type Transaction struct {
	ID                     int64            `json:"id"`
	CompanyID              int64            `json:"company_id"`
	Type                   Type             `json:"type"`
	Amount                 decimal.Decimal  `json:"amount"`
	VATRate                decimal.Decimal  `json:"vat_rate"`
	VATAmount              decimal.Decimal  `json:"vat_amount"`
	IsWHT                  bool             `json:"is_wht"`
	WHTRate                *decimal.Decimal `json:"wht_rate,omitempty"`
	WHTType                *string          `json:"wht_type,omitempty"`
	WHTAmount              decimal.Decimal  `json:"wht_amount"`
	NetAmount              decimal.Decimal  `json:"net_amount"`
	TxnDate                time.Time        `json:"date"`
	ContactID              *int64           `json:"contact_id,omitempty"`
	AccountID              *int64           `json:"account_id,omitempty"`
	Description            string           `json:"description"`
	DocumentType           string           `json:"document_type"`
	HasDocument            bool             `json:"has_document"`
	WorkflowStatus         string           `json:"workflow_status"`
	ApprovalStatus         string           `json:"approval_status"`
	RejectionReason        *string          `json:"rejection_reason,omitempty"`
	IsReimbursement        bool             `json:"is_reimbursement"`
	ReimbursementRequestID *int64           `json:"reimbursement_request_id,omitempty"`
	CreatedBy              int64            `json:"created_by"`
	ApprovedBy             *int64           `json:"approved_by,omitempty"`
	ApprovedAt             *time.Time       `json:"approved_at,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	DeletedAt              *time.Time       `json:"deleted_at,omitempty"`

	Payments []*Payment `json:"payments,omitempty"`
}

// Payer is one line of a requested payer split.
type Payer struct {
	PaidByType   PayerType       `json:"paid_by_type"`
	PaidByUserID *int64          `json:"paid_by_user_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

type Payment struct {
	ID               int64           `json:"id"`
	TransactionID    int64           `json:"transaction_id"`
	CompanyID        int64           `json:"company_id"`
	PaidByType       PayerType       `json:"paid_by_type"`
	PaidByUserID     *int64          `json:"paid_by_user_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	SettlementStatus string          `json:"settlement_status"`
	SettledAt        *time.Time      `json:"settled_at,omitempty"`
	SettlementRef    *string         `json:"settlement_ref,omitempty"`
	SettledBy        *int64          `json:"settled_by,omitempty"`
	ReversedAt       *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy       *int64          `json:"reversed_by,omitempty"`
	ReversalReason   *string         `json:"reversal_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ActivePayments drops allocations voided by a split replacement.
func (t *Transaction) ActivePayments() []*Payment {
	out := make([]*Payment, 0, len(t.Payments))
	for _, p := range t.Payments {
		if p.SettlementStatus != SettlementReversed {
			out = append(out, p)
		}
	}
	return out
}

func (t *Transaction) IsDeleted() bool {
	return t.DeletedAt != nil
}

func SumPayers(payers []Payer) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payers {
		sum = sum.Add(p.Amount)
	}
	return sum
}

func SumPayments(payments []*Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// WithinTolerance reports whether a and b differ by at most SplitTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(SplitTolerance)
}

func ToDataModel(t *Transaction) *dm.Transaction {
	row := &dm.Transaction{
		ID:                     t.ID,
		CompanyID:              t.CompanyID,
		Type:                   string(t.Type),
		Amount:                 t.Amount,
		VATRate:                t.VATRate,
		VATAmount:              t.VATAmount,
		IsWHT:                  t.IsWHT,
		WHTRate:                t.WHTRate,
		WHTType:                t.WHTType,
		WHTAmount:              t.WHTAmount,
		NetAmount:              t.NetAmount,
		TxnDate:                t.TxnDate,
		ContactID:              t.ContactID,
		AccountID:              t.AccountID,
		Description:            t.Description,
		DocumentType:           t.DocumentType,
		HasDocument:            t.HasDocument,
		WorkflowStatus:         t.WorkflowStatus,
		ApprovalStatus:         t.ApprovalStatus,
		RejectionReason:        t.RejectionReason,
		IsReimbursement:        t.IsReimbursement,
		ReimbursementRequestID: t.ReimbursementRequestID,
		CreatedBy:              t.CreatedBy,
		ApprovedBy:             t.ApprovedBy,
		ApprovedAt:             t.ApprovedAt,
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
	if t.DeletedAt != nil {
		row.DeletedAt = gorm.DeletedAt{Time: *t.DeletedAt, Valid: true}
	}
	return row
}

func FromDataModel(row *dm.Transaction) *Transaction {
	t := &Transaction{
		ID:                     row.ID,
		CompanyID:              row.CompanyID,
		Type:                   Type(row.Type),
		Amount:                 row.Amount,
		VATRate:                row.VATRate,
		VATAmount:              row.VATAmount,
		IsWHT:                  row.IsWHT,
		WHTRate:                row.WHTRate,
		WHTType:                row.WHTType,
		WHTAmount:              row.WHTAmount,
		NetAmount:              row.NetAmount,
		TxnDate:                row.TxnDate,
		ContactID:              row.ContactID,
		AccountID:              row.AccountID,
		Description:            row.Description,
		DocumentType:           row.DocumentType,
		HasDocument:            row.HasDocument,
		WorkflowStatus:         row.WorkflowStatus,
		ApprovalStatus:         row.ApprovalStatus,
		RejectionReason:        row.RejectionReason,
		IsReimbursement:        row.IsReimbursement,
		ReimbursementRequestID: row.ReimbursementRequestID,
		CreatedBy:              row.CreatedBy,
		ApprovedBy:             row.ApprovedBy,
		ApprovedAt:             row.ApprovedAt,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}
	if row.DeletedAt.Valid {
		deleted := row.DeletedAt.Time
		t.DeletedAt = &deleted
	}
	return t
}

func PaymentToDataModel(p *Payment) *dm.Payment {
	return &dm.Payment{
		ID:               p.ID,
		TransactionID:    p.TransactionID,
		CompanyID:        p.CompanyID,
		PaidByType:       string(p.PaidByType),
		PaidByUserID:     p.PaidByUserID,
		Amount:           p.Amount,
		SettlementStatus: p.SettlementStatus,
		SettledAt:        p.SettledAt,
		SettlementRef:    p.SettlementRef,
		SettledBy:        p.SettledBy,
		ReversedAt:       p.ReversedAt,
		ReversedBy:       p.ReversedBy,
		ReversalReason:   p.ReversalReason,
		CreatedAt:        p.CreatedAt,
	}
}

func PaymentFromDataModel(row *dm.Payment) *Payment {
	return &Payment{
		ID:               row.ID,
		TransactionID:    row.TransactionID,
		CompanyID:        row.CompanyID,
		PaidByType:       PayerType(row.PaidByType),
		PaidByUserID:     row.PaidByUserID,
		Amount:           row.Amount,
		SettlementStatus: row.SettlementStatus,
		SettledAt:        row.SettledAt,
		SettlementRef:    row.SettlementRef,
		SettledBy:        row.SettledBy,
		ReversedAt:       row.ReversedAt,
		ReversedBy:       row.ReversedBy,
		ReversalReason:   row.ReversalReason,
		CreatedAt:        row.CreatedAt,
	}
}
