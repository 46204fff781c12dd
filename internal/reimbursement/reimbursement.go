package reimbursement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/reimbursement"
)

const (
	StatusPending  = "PENDING"
	StatusFlagged  = "FLAGGED"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusPaid     = "PAID"
)

const (
	MethodBankTransfer = "BANK_TRANSFER"
	MethodCash         = "CASH"
	MethodPromptPay    = "PROMPTPAY"
	MethodCheque       = "CHEQUE"
)

// systemActor names timeline rows written without a human actor.
const systemActor = "System"

var transitions = map[string][]string{
	StatusPending:  {StatusFlagged, StatusApproved, StatusRejected},
	StatusFlagged:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaid},
}

// CanTransition reports whether a request may move from one status to another.
// REJECTED and PAID are terminal.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Request struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	TrackingCode    string          `json:"tracking_code"`
	RequesterUserID *int64          `json:"requester_user_id,omitempty"`
	RequesterName   string          `json:"requester_name"`
	RequesterEmail  string          `json:"requester_email,omitempty"`
	BankName        string          `json:"bank_name"`
	BankAccountNo   string          `json:"bank_account_no"`
	BankAccountName string          `json:"bank_account_name"`
	Description     string          `json:"description"`
	BillDate        time.Time       `json:"bill_date"`
	AccountID       *int64          `json:"account_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	Status          string          `json:"status"`
	FraudScore      int             `json:"fraud_score"`
	FraudFlags      []string        `json:"fraud_flags"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectedBy      *int64          `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time      `json:"rejected_at,omitempty"`
	PaidBy          *int64          `json:"paid_by,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentRef      *string         `json:"payment_ref,omitempty"`
	PaymentMethod   *string         `json:"payment_method,omitempty"`
	ExpenseID       *int64          `json:"expense_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Event is one timeline row. ActorName is filled from the users table when not stored.
type Event struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	FromStatus *string   `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	ActorName  *string   `json:"actor_name,omitempty"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TrackView is what the public tracking page may see; no bank details.
type TrackView struct {
	TrackingCode  string          `json:"tracking_code"`
	Status        string          `json:"status"`
	RequesterName string          `json:"requester_name"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	SubmittedAt   time.Time       `json:"submitted_at"`
	Timeline      []TimelineEntry `json:"timeline"`
}

type TimelineEntry struct {
	FromStatus *string   `json:"from_status,omitempty"`
	Status     string    `json:"status"`
	ActorName  string    `json:"actor_name"`
	Note       *string   `json:"note,omitempty"`
	At         time.Time `json:"at"`
}

type Filter struct {
	Status string
	Limit  int
	Offset int
}

type Page struct {
	Items  []*Request `json:"items"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Signal is an asynchronous fraud-scorer callback. Either RequestID or TrackingCode identifies the request.
type Signal struct {
	RequestID    int64    `json:"requestId" validate:"omitempty,gt=0"`
	TrackingCode string   `json:"trackingCode" validate:"omitempty,tracking_code"`
	Score        int      `json:"score" validate:"gte=0,lte=100"`
	Flags        []string `json:"flags" validate:"omitempty,dive,required,max=64"`
}

// Repository returns nil, nil for missing rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// IssueCode reserves code in the registry; false means it was issued before.
	IssueCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, companyID, id int64) (*Request, error)
	GetForUpdate(ctx context.Context, companyID, id int64) (*Request, error)
	GetByCode(ctx context.Context, code string) (*Request, error)
	// FindForSignal locks a request by id or tracking code across companies.
	FindForSignal(ctx context.Context, id int64, code string) (*Request, error)
	List(ctx context.Context, companyID int64, f Filter) ([]*Request, int64, error)
	Update(ctx context.Context, r *Request) error
	AppendEvent(ctx context.Context, e *Event) error
	Timeline(ctx context.Context, requestID int64) ([]*Event, error)
	CountSimilar(ctx context.Context, companyID int64, bankAccountNo string, amount decimal.Decimal, since time.Time, excludeID int64) (int64, error)
}

func ToDataModel(r *Request) *dm.Request {
	return &dm.Request{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		TrackingCode:    r.TrackingCode,
		RequesterUserID: r.RequesterUserID,
		RequesterName:   r.RequesterName,
		RequesterEmail:  r.RequesterEmail,
		BankName:        r.BankName,
		BankAccountNo:   r.BankAccountNo,
		BankAccountName: r.BankAccountName,
		Description:     r.Description,
		BillDate:        r.BillDate,
		AccountID:       r.AccountID,
		Amount:          r.Amount,
		VATAmount:       r.VATAmount,
		NetAmount:       r.NetAmount,
		Status:          r.Status,
		FraudScore:      r.FraudScore,
		FraudFlags:      datatypes.NewJSONSlice(r.FraudFlags),
		RejectionReason: r.RejectionReason,
		ApprovedBy:      r.ApprovedBy,
		ApprovedAt:      r.ApprovedAt,
		RejectedBy:      r.RejectedBy,
		RejectedAt:      r.RejectedAt,
		PaidBy:          r.PaidBy,
		PaidAt:          r.PaidAt,
		PaymentRef:      r.PaymentRef,
		PaymentMethod:   r.PaymentMethod,
		ExpenseID:       r.ExpenseID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func FromDataModel(row *dm.Request) *Request {
	flags := []string(row.FraudFlags)
	if flags == nil {
		flags = []string{}
	}
	return &Request{
		ID:              row.ID,
		CompanyID:       row.CompanyID,
		TrackingCode:    row.TrackingCode,
		RequesterUserID: row.RequesterUserID,
		RequesterName:   row.RequesterName,
		RequesterEmail:  row.RequesterEmail,
		BankName:        row.BankName,
		BankAccountNo:   row.BankAccountNo,
		BankAccountName: row.BankAccountName,
		Description:     row.Description,
		BillDate:        row.BillDate,
		AccountID:       row.AccountID,
		Amount:          row.Amount,
		VATAmount:       row.VATAmount,
		NetAmount:       row.NetAmount,
		Status:          row.Status,
		FraudScore:      row.FraudScore,
		FraudFlags:      flags,
		RejectionReason: row.RejectionReason,
		ApprovedBy:      row.ApprovedBy,
		ApprovedAt:      row.ApprovedAt,
		RejectedBy:      row.RejectedBy,
		RejectedAt:      row.RejectedAt,
		PaidBy:          row.PaidBy,
		PaidAt:          row.PaidAt,
		PaymentRef:      row.PaymentRef,
		PaymentMethod:   row.PaymentMethod,
		ExpenseID:       row.ExpenseID,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func EventToDataModel(e *Event) *dm.Event {
	return &dm.Event{
		ID:         e.ID,
		RequestID:  e.RequestID,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		ActorID:    e.ActorID,
		ActorName:  e.ActorName,
		Note:       e.Note,
		CreatedAt:  e.CreatedAt,
	}
}

func EventFromDataModel(row *dm.Event) *Event {
	return &Event{
		ID:         row.ID,
		RequestID:  row.RequestID,
		FromStatus: row.FromStatus,
		ToStatus:   row.ToStatus,
		ActorID:    row.ActorID,
		ActorName:  row.ActorName,
		Note:       row.Note,
		CreatedAt:  row.CreatedAt,
	}
}
