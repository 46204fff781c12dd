package settlement

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/cache"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
)

func reportPrefix(companyID int64) string {
	return fmt.Sprintf("settlement:report:%d:", companyID)
}

func reportKey(companyID int64, q Query) string {
	return reportPrefix(companyID) + fmt.Sprintf("%s:%s:%t", q.Status, q.GroupBy, q.withDeleted())
}

// List reports employee-paid allocations. Rows of soft-deleted transactions never
// count toward totals; when listed they are flagged transaction_deleted.
func (l *Ledger) List(ctx context.Context, actorID, companyID int64, q Query) (*Report, error) {
	if err := l.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleSettlements, permission.ActionRead)); err != nil {
		return nil, err
	}
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	key := reportKey(companyID, q)
	if cached, ok, err := cache.GetJSON[Report](ctx, l.reports, key); err == nil && ok {
		l.metrics.ReportCache(true)
		return &cached, nil
	} else if err != nil {
		l.logger.Warn("settlement report cache read failed", "key", key, "error", err)
	}
	l.metrics.ReportCache(false)

	rows, err := l.repo.ListRows(ctx, companyID, q.Status, q.withDeleted())
	if err != nil {
		return nil, l.failure(err, "failed to list settlements", "company_id", companyID)
	}
	report := buildReport(q, rows)

	if err := cache.SetJSON(ctx, l.reports, key, report, l.reportTTL); err != nil {
		l.logger.Warn("settlement report cache write failed", "key", key, "error", err)
	}
	return report, nil
}

// Reconcile lists expenses whose active allocations no longer add up to the net amount.
func (l *Ledger) Reconcile(ctx context.Context, actorID, companyID int64) ([]*Imbalance, error) {
	if err := l.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleSettlements, permission.ActionRead)); err != nil {
		return nil, err
	}
	out, err := l.repo.Unbalanced(ctx, companyID, transaction.SplitTolerance)
	if err != nil {
		return nil, l.failure(err, "failed to reconcile settlements", "company_id", companyID)
	}
	if len(out) > 0 {
		l.logger.Warn("unbalanced allocations found", "company_id", companyID, "count", len(out))
	}
	return out, nil
}

func normalizeQuery(q Query) (Query, error) {
	q.Status = strings.ToUpper(strings.TrimSpace(q.Status))
	if q.Status == "" {
		q.Status = transaction.SettlementPending
		if q.GroupBy == GroupByRound {
			q.Status = transaction.SettlementSettled
		}
	}
	if q.Status != transaction.SettlementPending && q.Status != transaction.SettlementSettled {
		return q, internal.NewValidationFieldError("status", "status must be PENDING or SETTLED", internal.ErrCodeInvalidStatus)
	}
	switch q.GroupBy {
	case GroupByNone, GroupByPayer, GroupByMonthPayer:
	case GroupByRound:
		if q.Status != transaction.SettlementSettled {
			return q, internal.NewValidationFieldError("groupBy", "groupBy=round only applies to SETTLED payments", internal.ErrCodeValidationFailed)
		}
	default:
		return q, internal.NewValidationFieldError("groupBy", "groupBy must be payer, monthPayer or round", internal.ErrCodeValidationFailed)
	}
	return q, nil
}

func buildReport(q Query, rows []*Row) *Report {
	report := &Report{Status: q.Status, GroupBy: q.GroupBy, Total: decimal.Zero}
	groups := map[string]*Group{}
	var order []string

	for _, r := range rows {
		item := toItem(r)
		if !r.TransactionDeleted {
			report.Total = report.Total.Add(item.Amount)
			report.Count++
		}
		if q.GroupBy == GroupByNone {
			report.Items = append(report.Items, item)
			continue
		}

		key, g := groupFor(q.GroupBy, r)
		existing, ok := groups[key]
		if !ok {
			g.Key, g.Total, g.Items = key, decimal.Zero, []Item{}
			groups[key] = g
			order = append(order, key)
			existing = g
		}
		existing.Items = append(existing.Items, item)
		if !r.TransactionDeleted {
			existing.Total = existing.Total.Add(item.Amount)
			existing.Count++
		}
	}

	sort.Strings(order)
	if q.GroupBy == GroupByRound {
		// newest round first
		sort.Sort(sort.Reverse(sort.StringSlice(order)))
	}
	for _, key := range order {
		report.Groups = append(report.Groups, *groups[key])
	}
	return report
}

func groupFor(groupBy string, r *Row) (string, *Group) {
	p := r.Payment
	payer := "0"
	if p.PaidByUserID != nil {
		payer = strconv.FormatInt(*p.PaidByUserID, 10)
	}
	switch groupBy {
	case GroupByMonthPayer:
		month := r.TxnDate.Format("2006-01")
		return month + "/" + payer, &Group{Month: month, PaidByUserID: p.PaidByUserID}
	case GroupByRound:
		if p.SettledAt == nil {
			return "unsettled", &Group{}
		}
		at := *p.SettledAt
		return at.UTC().Format("2006-01-02T15:04:05Z"), &Group{SettledAt: &at}
	}
	return payer, &Group{PaidByUserID: p.PaidByUserID}
}

func toItem(r *Row) Item {
	p := r.Payment
	return Item{
		PaymentID:          p.ID,
		TransactionID:      p.TransactionID,
		TxnDate:            r.TxnDate.Format("2006-01-02"),
		Description:        r.Description,
		PaidByUserID:       p.PaidByUserID,
		Amount:             p.Amount,
		SettlementStatus:   p.SettlementStatus,
		SettledAt:          p.SettledAt,
		SettlementRef:      p.SettlementRef,
		TransactionDeleted: r.TransactionDeleted,
	}
}
