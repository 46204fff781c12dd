package fraud

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/bookkeeping/internal"
)

// History answers the duplicate-submission rule.
type History interface {
	CountSimilar(ctx context.Context, companyID int64, bankAccountNo string, amount decimal.Decimal, since time.Time, excludeID int64) (int64, error)
}

var roundUnit = decimal.NewFromInt(1000)

// rule weights
const (
	weightDuplicate  = 40
	weightHighAmount = 30
	weightFuture     = 25
	weightRound      = 10
	weightWeekend    = 5
)

// RuleScorer scores a request from local data only.
type RuleScorer struct {
	history         History
	highAmountLimit decimal.Decimal
	duplicateWindow time.Duration
	now             func() time.Time
}

func NewRuleScorer(history History, cfg internal.ReimbursementConfig) *RuleScorer {
	days := cfg.DuplicateWindowDay
	if days <= 0 {
		days = 30
	}
	return &RuleScorer{
		history:         history,
		highAmountLimit: decimal.NewFromFloat(cfg.HighAmountLimit),
		duplicateWindow: time.Duration(days) * 24 * time.Hour,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *RuleScorer) Score(ctx context.Context, in Input) (Result, error) {
	var res Result
	add := func(weight int, flag string) {
		res.Score += weight
		res.Flags = append(res.Flags, flag)
	}

	if s.history != nil {
		n, err := s.history.CountSimilar(ctx, in.CompanyID, in.BankAccountNo, in.Amount, in.BillDate.Add(-s.duplicateWindow), in.RequestID)
		if err != nil {
			return Result{}, err
		}
		if n > 0 {
			add(weightDuplicate, FlagDuplicate)
		}
	}
	if s.highAmountLimit.IsPositive() && in.NetAmount.GreaterThan(s.highAmountLimit) {
		add(weightHighAmount, FlagHighAmount)
	}

	today := s.now().Truncate(24 * time.Hour)
	if in.BillDate.After(today) {
		add(weightFuture, FlagFutureBillDate)
	}
	if in.Amount.IsPositive() && in.Amount.Mod(roundUnit).IsZero() {
		add(weightRound, FlagRoundAmount)
	}
	if wd := in.BillDate.Weekday(); wd == time.Saturday || wd == time.Sunday {
		add(weightWeekend, FlagWeekendBillDate)
	}

	res.Score = Clamp(res.Score)
	res.Flags = MergeFlags(res.Flags)
	return res, nil
}
