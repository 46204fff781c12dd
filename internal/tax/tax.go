package tax

import "github.com/shopspring/decimal"

// Direction tells whether money leaves (expense) or enters (income) the company.
type Direction string

const (
	Outflow Direction = "OUTFLOW"
	Inflow  Direction = "INFLOW"
)

const currencyPlaces = 2

var hundred = decimal.NewFromInt(100)

type Totals struct {
	BaseAmount   decimal.Decimal `json:"base_amount"`
	VATAmount    decimal.Decimal `json:"vat_amount"`
	WHTAmount    decimal.Decimal `json:"wht_amount"`
	TotalWithVAT decimal.Decimal `json:"total_with_vat"`
	NetAmount    decimal.Decimal `json:"net_amount"`
}

// CalculateTotals derives VAT, WHT and the net amount from a pre-VAT base.
// WHT is taken on the base, not on the VAT-inclusive total. Negative inputs count as zero.
func CalculateTotals(base, vatRate, whtRate decimal.Decimal) Totals {
	return CalculateWithVATOverride(base, vatRate, whtRate, nil)
}

// CalculateWithVATOverride behaves like CalculateTotals but uses providedVAT, when set and
// non-zero, instead of the computed VAT so recorded amounts match the source document.
// A supplied zero counts as absent.
func CalculateWithVATOverride(base, vatRate, whtRate decimal.Decimal, providedVAT *decimal.Decimal) Totals {
	base = clamp(base).Round(currencyPlaces)

	vat := VAT(base, vatRate)
	if providedVAT != nil && !providedVAT.IsZero() {
		vat = clamp(*providedVAT).Round(currencyPlaces)
	}
	wht := WHT(base, whtRate)
	total := base.Add(vat)

	return Totals{
		BaseAmount:   base,
		VATAmount:    vat,
		WHTAmount:    wht,
		TotalWithVAT: total,
		NetAmount:    total.Sub(wht),
	}
}

func VAT(base, rate decimal.Decimal) decimal.Decimal {
	return percentOf(base, rate)
}

func WHT(base, rate decimal.Decimal) decimal.Decimal {
	return percentOf(base, rate)
}

// NetAmount recomputes the net from stored components; the same formula holds for both directions.
func NetAmount(base, vat, wht decimal.Decimal, _ Direction) decimal.Decimal {
	return clamp(base).Add(clamp(vat)).Sub(clamp(wht))
}

func percentOf(base, rate decimal.Decimal) decimal.Decimal {
	base, rate = clamp(base), clamp(rate)
	if rate.IsZero() || base.IsZero() {
		return decimal.Zero
	}
	return base.Mul(rate).Div(hundred).Round(currencyPlaces)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
