package tax

import "github.com/shopspring/decimal"

// WHTType is a withholding category with its customary rate.
type WHTType struct {
	Code        string          `json:"code"`
	Label       string          `json:"label"`
	DefaultRate decimal.Decimal `json:"default_rate"`
}

var whtTypes = []WHTType{
	{Code: "SERVICE", Label: "Service fee", DefaultRate: decimal.NewFromInt(3)},
	{Code: "PROFESSIONAL", Label: "Professional fee", DefaultRate: decimal.NewFromInt(3)},
	{Code: "RENT", Label: "Rental", DefaultRate: decimal.NewFromInt(5)},
	{Code: "ADVERTISING", Label: "Advertising", DefaultRate: decimal.NewFromInt(2)},
	{Code: "TRANSPORT", Label: "Transportation", DefaultRate: decimal.NewFromInt(1)},
	{Code: "PRIZE", Label: "Prize / promotion", DefaultRate: decimal.NewFromInt(5)},
}

func WHTTypes() []WHTType {
	out := make([]WHTType, len(whtTypes))
	copy(out, whtTypes)
	return out
}

func LookupWHTType(code string) (WHTType, bool) {
	for _, t := range whtTypes {
		if t.Code == code {
			return t, true
		}
	}
	return WHTType{}, false
}

// ValidRate reports whether r lies within [0, 100].
func ValidRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(hundred)
}
