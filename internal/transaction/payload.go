package transaction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/tax"
)

const dateLayout = "2006-01-02"

// Draft is a decoded create or update payload. Nil fields were not supplied.
type Draft struct {
	Amount           *decimal.Decimal
	VATRate          *decimal.Decimal
	VATAmount        *decimal.Decimal
	IsWHT            *bool
	WHTRate          *decimal.Decimal
	WHTType          *string
	TxnDate          *time.Time
	ContactID        *int64
	AccountID        *int64
	Description      *string
	DocumentType     *string
	HasDocument      *bool
	WorkflowStatus   *string
	IsDraft          *bool
	RequiresApproval *bool

	Payers    []Payer
	PayersSet bool
}

// IsEmpty reports whether an update payload carried no updatable key.
func (d *Draft) IsEmpty() bool {
	return d.Amount == nil && d.VATRate == nil && d.VATAmount == nil && d.IsWHT == nil &&
		d.WHTRate == nil && d.WHTType == nil && d.TxnDate == nil && d.ContactID == nil &&
		d.AccountID == nil && d.Description == nil && d.DocumentType == nil && d.HasDocument == nil &&
		!d.PayersSet
}

func (d *Draft) Flags(existing *Transaction) DocumentFlags {
	flags := DocumentFlags{DocumentType: DocumentTaxInvoice}
	if existing != nil {
		flags = DocumentFlags{IsWHT: existing.IsWHT, HasDocument: existing.HasDocument, DocumentType: existing.DocumentType}
	}
	if d.IsWHT != nil {
		flags.IsWHT = *d.IsWHT
	}
	if d.HasDocument != nil {
		flags.HasDocument = *d.HasDocument
	}
	if d.DocumentType != nil {
		flags.DocumentType = *d.DocumentType
	}
	return flags
}

type fieldKind int

const (
	kindDecimal fieldKind = iota
	kindBool
	kindString
	kindDate
	kindID
)

type payloadField struct {
	kind   fieldKind
	create bool
	update bool
	assign func(d *Draft, v any)
}

func (s *baseStrategy) payloadFields() map[string]payloadField {
	fields := map[string]payloadField{
		"amount":            {kindDecimal, true, true, func(d *Draft, v any) { d.Amount = v.(*decimal.Decimal) }},
		"vat_rate":          {kindDecimal, true, true, func(d *Draft, v any) { d.VATRate = v.(*decimal.Decimal) }},
		"vat_amount":        {kindDecimal, true, true, func(d *Draft, v any) { d.VATAmount = v.(*decimal.Decimal) }},
		"wht_rate":          {kindDecimal, true, true, func(d *Draft, v any) { d.WHTRate = v.(*decimal.Decimal) }},
		"wht_type":          {kindString, true, true, func(d *Draft, v any) { d.WHTType = v.(*string) }},
		"contact_id":        {kindID, true, true, func(d *Draft, v any) { d.ContactID = v.(*int64) }},
		"account_id":        {kindID, true, true, func(d *Draft, v any) { d.AccountID = v.(*int64) }},
		"description":       {kindString, true, true, func(d *Draft, v any) { d.Description = v.(*string) }},
		"document_type":     {kindString, true, true, func(d *Draft, v any) { d.DocumentType = v.(*string) }},
		"workflow_status":   {kindString, true, false, func(d *Draft, v any) { d.WorkflowStatus = v.(*string) }},
		"is_draft":          {kindBool, true, false, func(d *Draft, v any) { d.IsDraft = v.(*bool) }},
		"requires_approval": {kindBool, true, false, func(d *Draft, v any) { d.RequiresApproval = v.(*bool) }},
	}
	fields[s.fields.Date] = payloadField{kindDate, true, true, func(d *Draft, v any) { d.TxnDate = v.(*time.Time) }}
	fields[s.fields.WHTFlag] = payloadField{kindBool, true, true, func(d *Draft, v any) { d.IsWHT = v.(*bool) }}
	fields[s.fields.DocumentFlag] = payloadField{kindBool, true, true, func(d *Draft, v any) { d.HasDocument = v.(*bool) }}
	return fields
}

func (s *baseStrategy) transform(payload map[string]any, create bool) (*Draft, error) {
	d := &Draft{}
	fields := s.payloadFields()
	for rawKey, raw := range payload {
		key := snakeCase(rawKey)
		if key == "payers" && s.allowPayers {
			payers, err := decodePayers(raw)
			if err != nil {
				return nil, err
			}
			d.Payers, d.PayersSet = payers, true
			continue
		}
		if key == "payers" {
			// income rejects it in validation rather than dropping it silently
			d.PayersSet = raw != nil
			continue
		}
		f, ok := fields[key]
		if !ok || (create && !f.create) || (!create && !f.update) || raw == nil {
			continue
		}
		v, err := decodeValue(key, f.kind, raw)
		if err != nil {
			return nil, err
		}
		f.assign(d, v)
	}

	if d.WHTType != nil {
		code := strings.ToUpper(strings.TrimSpace(*d.WHTType))
		d.WHTType = &code
		if wt, ok := tax.LookupWHTType(code); ok && d.WHTRate == nil {
			rate := wt.DefaultRate
			d.WHTRate = &rate
		}
	}
	if d.DocumentType != nil {
		dt := strings.ToUpper(strings.TrimSpace(*d.DocumentType))
		d.DocumentType = &dt
	}
	if d.WorkflowStatus != nil {
		ws := strings.ToUpper(strings.TrimSpace(*d.WorkflowStatus))
		d.WorkflowStatus = &ws
	}
	return d, nil
}

func decodeValue(key string, kind fieldKind, raw any) (any, error) {
	switch kind {
	case kindDecimal:
		dec, err := toDecimal(raw)
		if err != nil {
			return nil, invalidField(key, "must be a number", internal.ErrCodeInvalidAmount)
		}
		return &dec, nil
	case kindBool:
		b, err := toBool(raw)
		if err != nil {
			return nil, invalidField(key, "must be a boolean", internal.ErrCodeValidationFailed)
		}
		return &b, nil
	case kindString:
		s, ok := raw.(string)
		if !ok {
			return nil, invalidField(key, "must be a string", internal.ErrCodeValidationFailed)
		}
		return &s, nil
	case kindDate:
		t, err := toDate(raw)
		if err != nil {
			return nil, invalidField(key, "must be a date (YYYY-MM-DD)", internal.ErrCodeInvalidDate)
		}
		return &t, nil
	case kindID:
		id, err := toInt64(raw)
		if err != nil || id <= 0 {
			return nil, invalidField(key, "must be a positive id", internal.ErrCodeValidationFailed)
		}
		return &id, nil
	}
	return nil, fmt.Errorf("unknown field kind %d", kind)
}

func decodePayers(raw any) ([]Payer, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, invalidField("payers", "must be a list", internal.ErrCodeInvalidPayer)
	}
	payers := make([]Payer, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, invalidField(fmt.Sprintf("payers[%d]", i), "must be an object", internal.ErrCodeInvalidPayer)
		}
		var p Payer
		for k, v := range obj {
			switch snakeCase(k) {
			case "paid_by_type", "type":
				s, _ := v.(string)
				p.PaidByType = PayerType(strings.ToUpper(strings.TrimSpace(s)))
			case "paid_by_user_id", "user_id":
				if v == nil {
					continue
				}
				id, err := toInt64(v)
				if err != nil {
					return nil, invalidField(fmt.Sprintf("payers[%d].paid_by_user_id", i), "must be an id", internal.ErrCodeInvalidPayer)
				}
				p.PaidByUserID = &id
			case "amount":
				amt, err := toDecimal(v)
				if err != nil {
					return nil, invalidField(fmt.Sprintf("payers[%d].amount", i), "must be a number", internal.ErrCodeInvalidAmount)
				}
				p.Amount = amt
			}
		}
		payers = append(payers, p)
	}
	return payers, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case decimal.Decimal:
		return x, nil
	}
	return decimal.Zero, fmt.Errorf("unsupported number %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return false, fmt.Errorf("unsupported bool %T", v)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("not an integer: %v", x)
		}
		return int64(x), nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	}
	return 0, fmt.Errorf("unsupported id %T", v)
}

func toDate(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported date %T", v)
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// snakeCase turns "vatRate" into "vat_rate"; snake_case keys pass through.
func snakeCase(key string) string {
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func invalidField(field, msg string, code internal.ErrorCode) error {
	return internal.NewValidationFieldError(field, fmt.Sprintf("%s %s", field, msg), code)
}
