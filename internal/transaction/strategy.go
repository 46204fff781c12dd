package transaction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/tax"
)

const (
	StatusDraft              = "DRAFT"
	StatusReadyForAccounting = "READY_FOR_ACCOUNTING"
	StatusSentToAccountant   = "SENT_TO_ACCOUNTANT"
)

const maxDescriptionLength = 500

// Status is one entry of a type's workflow vocabulary.
type Status struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Color string `json:"color"`
}

type Labels struct {
	Singular string `json:"singular"`
	Plural   string `json:"plural"`
}

// FieldNames maps logical roles to the payload keys a type uses for them.
type FieldNames struct {
	Date         string `json:"date"`
	NetAmount    string `json:"net_amount"`
	WHTFlag      string `json:"wht_flag"`
	DocumentFlag string `json:"document_flag"`
}

type DocumentFlags struct {
	IsWHT        bool
	HasDocument  bool
	DocumentType string
}

// Strategy carries everything that differs between expenses and incomes.
type Strategy interface {
	Type() Type
	Module() permission.Module
	Labels() Labels
	Fields() FieldNames
	Direction() tax.Direction
	// AccountClass is the chart-of-accounts class a linked account must have.
	AccountClass() string

	WorkflowStatuses() []Status
	IsValidStatus(status string) bool
	CanTransition(from, to string) bool
	DetermineWorkflowStatus(flags DocumentFlags) string
	NextWorkflowStatus(current string, flags DocumentFlags) string

	ValidateCreate(d *Draft) error
	ValidateUpdate(existing *Transaction, d *Draft) error
	TransformCreateData(payload map[string]any) (*Draft, error)
	TransformUpdateData(payload map[string]any) (*Draft, error)
}

func StrategyFor(t Type) (Strategy, error) {
	switch t {
	case TypeExpense:
		return NewExpenseStrategy(), nil
	case TypeIncome:
		return NewIncomeStrategy(), nil
	}
	return nil, internal.NewValidationFieldError("type", fmt.Sprintf("unknown transaction type %q", t), internal.ErrCodeValidationFailed)
}

// baseStrategy holds the table-driven parts shared by both types.
type baseStrategy struct {
	txnType      Type
	module       permission.Module
	labels       Labels
	fields       FieldNames
	direction    tax.Direction
	accountClass string
	statuses     []Status
	transitions  map[string][]string

	waitingStatus    string
	whtPendingStatus string
	allowPayers      bool
}

func (s *baseStrategy) Type() Type                { return s.txnType }
func (s *baseStrategy) Module() permission.Module { return s.module }
func (s *baseStrategy) Labels() Labels            { return s.labels }
func (s *baseStrategy) Fields() FieldNames        { return s.fields }
func (s *baseStrategy) Direction() tax.Direction  { return s.direction }
func (s *baseStrategy) AccountClass() string      { return s.accountClass }

func (s *baseStrategy) WorkflowStatuses() []Status {
	out := make([]Status, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func (s *baseStrategy) IsValidStatus(status string) bool {
	for _, st := range s.statuses {
		if st.Code == status {
			return true
		}
	}
	return false
}

func (s *baseStrategy) CanTransition(from, to string) bool {
	if !s.IsValidStatus(from) || !s.IsValidStatus(to) {
		return false
	}
	for _, next := range s.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *baseStrategy) DetermineWorkflowStatus(flags DocumentFlags) string {
	if flags.DocumentType == DocumentNone {
		return StatusReadyForAccounting
	}
	if flags.HasDocument {
		if flags.IsWHT && flags.DocumentType == DocumentTaxInvoice {
			return s.whtPendingStatus
		}
		return StatusReadyForAccounting
	}
	return s.waitingStatus
}

// NextWorkflowStatus only moves a row that is still waiting for its document.
func (s *baseStrategy) NextWorkflowStatus(current string, flags DocumentFlags) string {
	if current != s.waitingStatus || !flags.HasDocument {
		return current
	}
	return s.DetermineWorkflowStatus(flags)
}

func (s *baseStrategy) ValidateCreate(d *Draft) error {
	if d == nil {
		return internal.NewValidationError("request body is required", internal.ErrCodeValidationFailed)
	}
	v := validation.NewValidator()
	v.Field("amount", d.Amount).Required().Positive()
	v.Field(s.fields.Date, d.TxnDate).Required()
	s.validateCommon(v, d, d.IsWHT != nil && *d.IsWHT)
	if err := v.Validate(); err != nil {
		return err
	}
	return s.validatePayers(d, nil)
}

func (s *baseStrategy) ValidateUpdate(existing *Transaction, d *Draft) error {
	if d == nil {
		return internal.NewValidationError("request body is required", internal.ErrCodeValidationFailed)
	}
	v := validation.NewValidator()
	if d.Amount != nil {
		v.Field("amount", d.Amount).Positive()
	}
	if d.TxnDate != nil {
		v.Field(s.fields.Date, d.TxnDate).Required()
	}
	isWHT := existing.IsWHT
	if d.IsWHT != nil {
		isWHT = *d.IsWHT
	}
	// a stored rate satisfies the WHT flag on update
	whtRate := d.WHTRate
	if whtRate == nil {
		whtRate = existing.WHTRate
	}
	s.validateCommon(v, &Draft{
		VATRate:      d.VATRate,
		VATAmount:    d.VATAmount,
		WHTRate:      whtRate,
		WHTType:      d.WHTType,
		Description:  d.Description,
		DocumentType: d.DocumentType,
	}, isWHT)
	if err := v.Validate(); err != nil {
		return err
	}
	return s.validatePayers(d, existing)
}

func (s *baseStrategy) validateCommon(v *validation.ValidationBuilder, d *Draft, isWHT bool) {
	if d.VATRate != nil {
		v.Field("vat_rate", d.VATRate).Percentage()
	}
	if d.VATAmount != nil {
		v.Field("vat_amount", d.VATAmount).Custom(func(any) *internal.AppError {
			if d.VATAmount.IsNegative() {
				return internal.NewValidationFieldError("vat_amount", "vat_amount must not be negative", internal.ErrCodeInvalidAmount)
			}
			return nil
		})
	}
	v.Field("wht_rate", d.WHTRate).When(isWHT, func(fv *validation.FieldValidator) {
		fv.Required()
	}).Percentage()
	if d.WHTType != nil {
		v.Field("wht_type", d.WHTType).Custom(func(any) *internal.AppError {
			if _, ok := tax.LookupWHTType(*d.WHTType); !ok {
				return internal.NewValidationFieldError("wht_type", fmt.Sprintf("unknown wht_type %q", *d.WHTType), internal.ErrCodeInvalidRate)
			}
			return nil
		})
	}
	if d.DocumentType != nil {
		v.Field("document_type", d.DocumentType).OneOf(documentTypes...)
	}
	if d.Description != nil {
		v.Field("description", *d.Description).MaxLength(maxDescriptionLength)
	}
	if d.WorkflowStatus != nil {
		v.Field("workflow_status", d.WorkflowStatus).Custom(func(any) *internal.AppError {
			if !s.IsValidStatus(*d.WorkflowStatus) {
				return internal.NewValidationFieldError("workflow_status", fmt.Sprintf("unknown %s status %q", s.labels.Singular, *d.WorkflowStatus), internal.ErrCodeInvalidStatus)
			}
			return nil
		})
	}
}

// validatePayers checks an explicit payer split against the net the draft will produce.
func (s *baseStrategy) validatePayers(d *Draft, existing *Transaction) error {
	if !d.PayersSet {
		return nil
	}
	if !s.allowPayers {
		return internal.NewValidationFieldError("payers", fmt.Sprintf("%s does not accept a payer split", s.labels.Singular), internal.ErrCodeInvalidPayer)
	}
	if len(d.Payers) == 0 {
		return nil
	}
	for i, p := range d.Payers {
		field := fmt.Sprintf("payers[%d]", i)
		switch p.PaidByType {
		case PayerCompany, PayerPettyCash:
		case PayerUser:
			if p.PaidByUserID == nil || *p.PaidByUserID <= 0 {
				return internal.NewValidationFieldError(field+".paid_by_user_id", "a USER payer must name a user", internal.ErrCodeInvalidPayer)
			}
		default:
			return internal.NewValidationFieldError(field+".paid_by_type", fmt.Sprintf("unknown payer type %q", p.PaidByType), internal.ErrCodeInvalidPayer)
		}
		if !p.Amount.IsPositive() {
			return internal.NewValidationFieldError(field+".amount", "payer amount must be greater than 0", internal.ErrCodeInvalidAmount)
		}
	}

	net := d.Totals(existing).NetAmount
	sum := SumPayers(d.Payers)
	if !WithinTolerance(sum, net) {
		return internal.NewValidationFieldError("payers",
			fmt.Sprintf("payer split sums to %s but %s is %s", sum.StringFixed(2), s.fields.NetAmount, net.StringFixed(2)),
			internal.ErrCodePayerSplitMismatch)
	}
	return nil
}

func (s *baseStrategy) TransformCreateData(payload map[string]any) (*Draft, error) {
	return s.transform(payload, true)
}

func (s *baseStrategy) TransformUpdateData(payload map[string]any) (*Draft, error) {
	return s.transform(payload, false)
}

// Totals computes the tax fields the draft produces, falling back to existing values for unset keys.
func (d *Draft) Totals(existing *Transaction) tax.Totals {
	amount, vatRate, whtRate := decimal.Zero, decimal.Zero, decimal.Zero
	isWHT := false
	var vatOverride *decimal.Decimal
	if existing != nil {
		amount, vatRate, isWHT = existing.Amount, existing.VATRate, existing.IsWHT
		if existing.WHTRate != nil {
			whtRate = *existing.WHTRate
		}
		// keep a stored manual VAT unless the rate or base changes
		if d.VATRate == nil && d.Amount == nil {
			v := existing.VATAmount
			vatOverride = &v
		}
	}
	if d.Amount != nil {
		amount = *d.Amount
	}
	if d.VATRate != nil {
		vatRate = *d.VATRate
	}
	if d.VATAmount != nil {
		vatOverride = d.VATAmount
	}
	if d.IsWHT != nil {
		isWHT = *d.IsWHT
	}
	if d.WHTRate != nil {
		whtRate = *d.WHTRate
	}
	if !isWHT {
		whtRate = decimal.Zero
	}
	return tax.CalculateWithVATOverride(amount, vatRate, whtRate, vatOverride)
}
