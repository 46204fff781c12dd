package reimbursement

import "github.com/shopspring/decimal"

const dateLayout = "2006-01-02"

type SubmitRequest struct {
	RequesterName   string          `json:"requesterName" validate:"required,max=200"`
	RequesterEmail  string          `json:"requesterEmail" validate:"omitempty,email,max=200"`
	BankName        string          `json:"bankName" validate:"required,max=100"`
	BankAccountNo   string          `json:"bankAccountNo" validate:"required,numeric,min=6,max=20"`
	BankAccountName string          `json:"bankAccountName" validate:"required,max=200"`
	Description     string          `json:"description" validate:"required,max=500"`
	BillDate        string          `json:"billDate" validate:"required,datetime=2006-01-02"`
	AccountID       *int64          `json:"accountId" validate:"omitempty,gt=0"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	VATAmount       decimal.Decimal `json:"vatAmount" validate:"gte=0"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type PayRequest struct {
	PaymentRef    string `json:"paymentRef" validate:"required,max=100"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=BANK_TRANSFER CASH PROMPTPAY CHEQUE"`
}
