package fraud

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const MaxScore = 100

const (
	FlagDuplicate         = "DUPLICATE_SUBMISSION"
	FlagHighAmount        = "HIGH_AMOUNT"
	FlagFutureBillDate    = "FUTURE_BILL_DATE"
	FlagRoundAmount       = "ROUND_AMOUNT"
	FlagWeekendBillDate   = "WEEKEND_BILL_DATE"
	FlagScorerUnavailable = "SCORER_UNAVAILABLE"
)

// Input is the part of a reimbursement request the scorers look at.
type Input struct {
	CompanyID      int64           `json:"company_id"`
	RequestID      int64           `json:"request_id"`
	TrackingCode   string          `json:"tracking_code"`
	RequesterName  string          `json:"requester_name"`
	RequesterEmail string          `json:"requester_email,omitempty"`
	BankAccountNo  string          `json:"bank_account_no"`
	Amount         decimal.Decimal `json:"amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	BillDate       time.Time       `json:"bill_date"`
	Description    string          `json:"description"`
}

type Result struct {
	Score int      `json:"score"`
	Flags []string `json:"flags"`
}

type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

// Merge adds b into a, capping the score and keeping flags unique and sorted.
func Merge(a, b Result) Result {
	out := Result{Score: Clamp(a.Score + b.Score), Flags: MergeFlags(a.Flags, b.Flags)}
	return out
}

func MergeFlags(lists ...[]string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, list := range lists {
		for _, f := range list {
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
