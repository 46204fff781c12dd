package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/cache"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
)

const defaultReportTTL = 5 * time.Second

type ServiceAPI interface {
	Settle(ctx context.Context, actorID, companyID int64, paymentIDs []int64, ref string) (*SettleResult, error)
	Reverse(ctx context.Context, actorID, companyID, paymentID int64, reason string) (*transaction.Payment, error)
	History(ctx context.Context, actorID, companyID, paymentID int64) ([]*Event, error)
	List(ctx context.Context, actorID, companyID int64, q Query) (*Report, error)
	Reconcile(ctx context.Context, actorID, companyID int64) ([]*Imbalance, error)
}

// Ledger records who paid for each expense and tracks paying employees back.
// It is also the transaction.Allocator used while expenses are written.
type Ledger struct {
	repo       Repository
	transactor store.Transactor
	perms      permission.Authorizer
	reports    cache.Cache
	reportTTL  time.Duration
	bus        events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewLedger(
	repo Repository,
	transactor store.Transactor,
	perms permission.Authorizer,
	reports cache.Cache,
	cfg internal.SettlementConfig,
	bus events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Ledger {
	ttl := cfg.ReportCacheTTL
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	if reports == nil {
		reports = cache.NewMemory()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Ledger{
		repo:       repo,
		transactor: transactor,
		perms:      perms,
		reports:    reports,
		reportTTL:  ttl,
		bus:        bus,
		metrics:    m,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateAllocations writes the payer rows for a new expense inside tx. COMPANY and
// PETTY_CASH money is already spent, so those rows start SETTLED; USER rows wait for payback.
func (l *Ledger) CreateAllocations(ctx context.Context, tx *gorm.DB, txn *transaction.Transaction, payers []transaction.Payer, actorID int64) ([]*transaction.Payment, error) {
	if len(payers) == 0 {
		payers = []transaction.Payer{{PaidByType: transaction.PayerCompany, Amount: txn.NetAmount}}
	}

	now := l.now()
	payments := make([]*transaction.Payment, 0, len(payers))
	for _, p := range payers {
		payment := &transaction.Payment{
			TransactionID:    txn.ID,
			CompanyID:        txn.CompanyID,
			PaidByType:       p.PaidByType,
			Amount:           p.Amount.Round(2),
			SettlementStatus: transaction.SettlementPending,
		}
		if p.PaidByType == transaction.PayerUser {
			payment.PaidByUserID = p.PaidByUserID
		} else {
			settledBy := actorID
			payment.SettlementStatus = transaction.SettlementSettled
			payment.SettledAt = &now
			payment.SettledBy = &settledBy
		}
		payments = append(payments, payment)
	}

	if err := l.repo.WithTx(tx).InsertPayments(ctx, payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// ReplaceAllocations voids the current split and writes a new one. A split that already
// paid an employee back cannot be replaced; that payment has to be reversed first.
func (l *Ledger) ReplaceAllocations(ctx context.Context, tx *gorm.DB, txn *transaction.Transaction, payers []transaction.Payer, actorID int64) ([]*transaction.Payment, error) {
	repo := l.repo.WithTx(tx)
	current, err := repo.ActivePayments(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range current {
		if p.PaidByType == transaction.PayerUser && p.SettlementStatus == transaction.SettlementSettled {
			return nil, internal.NewConflictError(
				fmt.Sprintf("payment %d was already settled; reverse it before changing the payer split", p.ID),
				internal.ErrCodeSettlementLocked,
			).WithDetails(map[string]interface{}{"payment_id": p.ID})
		}
	}
	if err := repo.VoidPayments(ctx, txn.ID, actorID, voidReason, l.now()); err != nil {
		return nil, err
	}
	return l.CreateAllocations(ctx, tx, txn, payers, actorID)
}

// InvalidateReports drops every cached settlement report of a company.
func (l *Ledger) InvalidateReports(ctx context.Context, companyID int64) {
	if err := l.reports.DeletePrefix(ctx, reportPrefix(companyID)); err != nil {
		l.logger.Warn("failed to invalidate settlement reports", "company_id", companyID, "error", err)
	}
}

// Settle pays back every listed PENDING employee payment in one round sharing one settled_at.
// Rows that are already SETTLED are reported as skipped.
func (l *Ledger) Settle(ctx context.Context, actorID, companyID int64, paymentIDs []int64, ref string) (*SettleResult, error) {
	if err := l.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleSettlements, permission.ActionPay)); err != nil {
		return nil, err
	}
	ids := dedupe(paymentIDs)
	if len(ids) == 0 {
		return nil, internal.NewValidationFieldError("paymentIds", "paymentIds must not be empty", internal.ErrCodeRequiredField)
	}
	var refPtr *string
	if ref = strings.TrimSpace(ref); ref != "" {
		refPtr = &ref
	}

	// one round, one timestamp; second precision so rounds group cleanly
	settledAt := l.now().Truncate(time.Second)
	result := &SettleResult{SettledAt: settledAt, Settled: []int64{}, Skipped: []int64{}, Total: decimal.Zero}
	var settled []*transaction.Payment

	err := l.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		rows, err := repo.LockPayments(ctx, companyID, ids)
		if err != nil {
			return err
		}
		if missing := missingPayments(ids, rows); len(missing) > 0 {
			return internal.NewNotFoundError(fmt.Sprintf("payments not found: %v", missing), internal.ErrCodePaymentNotFound).
				WithDetails(map[string]interface{}{"missing_ids": missing})
		}

		txnIDs := make([]int64, 0, len(rows))
		for _, p := range rows {
			txnIDs = append(txnIDs, p.TransactionID)
		}
		deleted, err := repo.DeletedTransactions(ctx, txnIDs)
		if err != nil {
			return err
		}
		if len(deleted) > 0 {
			return internal.NewConflictError(
				fmt.Sprintf("payments belong to deleted transactions %v", deleted), internal.ErrCodeSettlementLocked)
		}

		toSettle := make([]int64, 0, len(rows))
		for _, p := range rows {
			switch {
			case p.SettlementStatus == transaction.SettlementSettled:
				result.Skipped = append(result.Skipped, p.ID)
			case p.PaidByType != transaction.PayerUser:
				return internal.NewConflictError(
					fmt.Sprintf("payment %d was paid by %s and has nothing to settle", p.ID, p.PaidByType),
					internal.ErrCodeInvalidTransition)
			case p.SettlementStatus != transaction.SettlementPending:
				return internal.NewTransitionError(fmt.Sprintf("payment %d", p.ID), p.SettlementStatus, transaction.SettlementSettled)
			default:
				toSettle = append(toSettle, p.ID)
				settled = append(settled, p)
			}
		}
		if len(toSettle) == 0 {
			return nil
		}

		n, err := repo.MarkSettled(ctx, toSettle, settledAt, refPtr, actorID)
		if err != nil {
			return err
		}
		if n != int64(len(toSettle)) {
			return internal.NewConflictError(
				fmt.Sprintf("settled %d of %d payments; nothing was changed", n, len(toSettle)),
				internal.ErrCodeAlreadySettled)
		}

		history := make([]*Event, 0, len(toSettle))
		for _, p := range settled {
			at := settledAt
			history = append(history, &Event{
				PaymentID:     p.ID,
				CompanyID:     companyID,
				Action:        ActionSettled,
				SettledAt:     &at,
				SettlementRef: refPtr,
				ActorID:       actorID,
			})
			result.Settled = append(result.Settled, p.ID)
			result.Total = result.Total.Add(p.Amount)
		}
		return repo.AppendEvents(ctx, history)
	})
	if err != nil {
		l.metrics.Settlement("settle", "rejected", len(ids))
		return nil, l.failure(err, "failed to settle payments", "company_id", companyID)
	}

	l.logger.Info("payments settled",
		"company_id", companyID,
		"settled", len(result.Settled),
		"skipped", len(result.Skipped),
		"total", result.Total.StringFixed(2),
		"settled_at", settledAt)

	l.metrics.Settlement("settle", "settled", len(result.Settled))
	l.metrics.Settlement("settle", "skipped", len(result.Skipped))
	total, _ := result.Total.Float64()
	l.metrics.SettledAmount(total)

	if len(result.Settled) > 0 {
		l.InvalidateReports(ctx, companyID)
		for _, p := range settled {
			l.publish(ctx, events.EventTypeSettlementSettled, companyID, actorID, p.ID, map[string]interface{}{
				"transaction_id":  p.TransactionID,
				"paid_by_user_id": p.PaidByUserID,
				"amount":          p.Amount.StringFixed(2),
				"settled_at":      settledAt,
				"settlement_ref":  ref,
			})
		}
	}
	return result, nil
}

// Reverse undoes a settlement. The row goes back to PENDING; the history keeps both events.
func (l *Ledger) Reverse(ctx context.Context, actorID, companyID, paymentID int64, reason string) (*transaction.Payment, error) {
	if err := l.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleSettlements, permission.ActionUpdate)); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, internal.NewValidationFieldError("reason", "a reversal needs a reason", internal.ErrCodeReasonRequired)
	}

	var reversed *transaction.Payment
	var original Event
	err := l.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		rows, err := repo.LockPayments(ctx, companyID, []int64{paymentID})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return internal.NewNotFoundError(fmt.Sprintf("payment %d not found", paymentID), internal.ErrCodePaymentNotFound)
		}
		p := rows[0]
		if p.SettlementStatus != transaction.SettlementSettled || p.PaidByType != transaction.PayerUser {
			appErr := internal.NewTransitionError(fmt.Sprintf("payment %d", p.ID), p.SettlementStatus, transaction.SettlementPending)
			appErr.Code = internal.ErrCodeNotSettled
			return appErr
		}

		now := l.now()
		n, err := repo.MarkReversed(ctx, p.ID, actorID, reason, now)
		if err != nil {
			return err
		}
		if n != 1 {
			return internal.NewConflictError(fmt.Sprintf("payment %d changed concurrently", p.ID), internal.ErrCodeNotSettled)
		}

		original = Event{SettledAt: p.SettledAt, SettlementRef: p.SettlementRef}
		if err := repo.AppendEvents(ctx, []*Event{{
			PaymentID:     p.ID,
			CompanyID:     companyID,
			Action:        ActionReversed,
			SettledAt:     p.SettledAt,
			SettlementRef: p.SettlementRef,
			ActorID:       actorID,
			Reason:        &reason,
		}}); err != nil {
			return err
		}

		actor := actorID
		p.SettlementStatus = transaction.SettlementPending
		p.SettledAt, p.SettlementRef, p.SettledBy = nil, nil, nil
		p.ReversedAt, p.ReversedBy, p.ReversalReason = &now, &actor, &reason
		reversed = p
		return nil
	})
	if err != nil {
		l.metrics.Settlement("reverse", "rejected", 1)
		return nil, l.failure(err, "failed to reverse settlement", "payment_id", paymentID)
	}

	l.logger.Info("settlement reversed", "company_id", companyID, "payment_id", paymentID, "reason", reason)
	l.metrics.Settlement("reverse", "reversed", 1)
	l.InvalidateReports(ctx, companyID)
	l.publish(ctx, events.EventTypeSettlementReversed, companyID, actorID, paymentID, map[string]interface{}{
		"transaction_id":          reversed.TransactionID,
		"amount":                  reversed.Amount.StringFixed(2),
		"reason":                  reason,
		"original_settled_at":     original.SettledAt,
		"original_settlement_ref": original.SettlementRef,
	})
	return reversed, nil
}

func (l *Ledger) History(ctx context.Context, actorID, companyID, paymentID int64) ([]*Event, error) {
	if err := l.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleSettlements, permission.ActionRead)); err != nil {
		return nil, err
	}
	p, err := l.repo.GetPayment(ctx, companyID, paymentID)
	if err != nil {
		return nil, l.failure(err, "failed to load payment", "payment_id", paymentID)
	}
	if p == nil {
		return nil, internal.NewNotFoundError(fmt.Sprintf("payment %d not found", paymentID), internal.ErrCodePaymentNotFound)
	}
	history, err := l.repo.Events(ctx, companyID, paymentID)
	if err != nil {
		return nil, l.failure(err, "failed to load settlement history", "payment_id", paymentID)
	}
	return history, nil
}

func (l *Ledger) publish(ctx context.Context, eventType string, companyID, actorID, paymentID int64, data map[string]interface{}) {
	if l.bus == nil {
		return
	}
	_ = l.bus.Publish(ctx, events.NewDomainEvent(eventType, companyID, events.Actor(actorID), "payment", paymentID, data))
}

func (l *Ledger) failure(err error, msg string, args ...any) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	l.logger.Error(msg, append(args, "error", err)...)
	return internal.NewInternalError(msg, err)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingPayments(ids []int64, rows []*transaction.Payment) []int64 {
	found := make(map[int64]bool, len(rows))
	for _, p := range rows {
		found[p.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
