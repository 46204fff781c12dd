package reimbursement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/fraud"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/tax"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
)

const entityType = "reimbursement"

// ExpenseWriter turns a paid request into a bookkeeping expense.
type ExpenseWriter interface {
	MaterializeReimbursement(ctx context.Context, tx *gorm.DB, in transaction.ReimbursementExpense) (*transaction.Transaction, error)
	AfterMaterialize(ctx context.Context, txn *transaction.Transaction, actorID int64)
}

type ServiceAPI interface {
	Submit(ctx context.Context, actorID, companyID int64, req SubmitRequest) (*Request, error)
	Approve(ctx context.Context, actorID, companyID, id int64) (*Request, error)
	Reject(ctx context.Context, actorID, companyID, id int64, reason string) (*Request, error)
	Pay(ctx context.Context, actorID, companyID, id int64, req PayRequest) (*Request, error)
	Get(ctx context.Context, actorID, companyID, id int64) (*Request, error)
	List(ctx context.Context, actorID, companyID int64, f Filter) (*Page, error)
	Track(ctx context.Context, code string) (*TrackView, error)
	ApplyFraudSignal(ctx context.Context, sig Signal) (*Request, error)
}

type Service struct {
	repo       Repository
	transactor store.Transactor
	perms      permission.Authorizer
	scorer     fraud.Scorer
	expenses   ExpenseWriter
	accounts   transaction.AccountResolver
	cfg        internal.ReimbursementConfig
	bus        events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	newCode    func() (string, error)
}

func NewService(
	repo Repository,
	transactor store.Transactor,
	perms permission.Authorizer,
	scorer fraud.Scorer,
	expenses ExpenseWriter,
	accounts transaction.AccountResolver,
	cfg internal.ReimbursementConfig,
	bus events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if cfg.FraudThreshold <= 0 {
		cfg.FraudThreshold = 70
	}
	if cfg.TrackingCodeRetry <= 0 {
		cfg.TrackingCodeRetry = 5
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{
		repo:       repo,
		transactor: transactor,
		perms:      perms,
		scorer:     scorer,
		expenses:   expenses,
		accounts:   accounts,
		cfg:        cfg,
		bus:        bus,
		metrics:    m,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newCode:    NewTrackingCode,
	}
}

// Submit records a PENDING request under a fresh tracking code, then scores it.
// A score above the threshold moves it to FLAGGED.
func (s *Service) Submit(ctx context.Context, actorID, companyID int64, req SubmitRequest) (*Request, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleReimbursements, permission.ActionCreate)); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	billDate, err := time.Parse(dateLayout, req.BillDate)
	if err != nil {
		return nil, internal.NewValidationFieldError("billDate", "billDate must be YYYY-MM-DD", internal.ErrCodeInvalidDate)
	}
	v := validation.NewValidator()
	v.Field("vatAmount", req.VATAmount).Custom(func(interface{}) *internal.AppError {
		if req.VATAmount.GreaterThan(req.Amount) {
			return internal.NewValidationFieldError("vatAmount", "vatAmount cannot exceed amount", internal.ErrCodeInvalidAmount)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAccount(ctx, companyID, req.AccountID); err != nil {
		return nil, err
	}

	vat := req.VATAmount.Round(2)
	totals := tax.CalculateWithVATOverride(req.Amount, decimal.Zero, decimal.Zero, &vat)
	requester := actorID
	r := &Request{
		CompanyID:       companyID,
		RequesterUserID: &requester,
		RequesterName:   strings.TrimSpace(req.RequesterName),
		RequesterEmail:  strings.TrimSpace(req.RequesterEmail),
		BankName:        strings.TrimSpace(req.BankName),
		BankAccountNo:   req.BankAccountNo,
		BankAccountName: strings.TrimSpace(req.BankAccountName),
		Description:     strings.TrimSpace(req.Description),
		BillDate:        billDate,
		AccountID:       req.AccountID,
		Amount:          totals.BaseAmount,
		VATAmount:       totals.VATAmount,
		NetAmount:       totals.NetAmount,
		Status:          StatusPending,
		FraudFlags:      []string{},
	}

	err = s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		code, err := s.issueCode(ctx, repo)
		if err != nil {
			return err
		}
		r.TrackingCode = code
		if err := repo.Create(ctx, r); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, &Event{
			RequestID: r.ID,
			ToStatus:  StatusPending,
			ActorID:   &requester,
			ActorName: &r.RequesterName,
			Note:      strPtr("submitted"),
		})
	})
	if err != nil {
		return nil, s.failure(err, "failed to submit reimbursement", "company_id", companyID)
	}

	s.logger.Info("reimbursement submitted",
		"reimbursement_id", r.ID,
		"company_id", companyID,
		"tracking_code", r.TrackingCode,
		"net_amount", r.NetAmount.StringFixed(2))
	s.metrics.Reimbursement(StatusPending)
	s.publish(ctx, events.EventTypeReimbursementSubmitted, r, actorID, nil)

	return s.score(ctx, r), nil
}

// score runs the fraud engine once the request is committed. It never fails the submission.
func (s *Service) score(ctx context.Context, r *Request) *Request {
	if s.scorer == nil {
		return r
	}
	res, err := s.scorer.Score(ctx, fraud.Input{
		CompanyID:      r.CompanyID,
		RequestID:      r.ID,
		TrackingCode:   r.TrackingCode,
		RequesterName:  r.RequesterName,
		RequesterEmail: r.RequesterEmail,
		BankAccountNo:  r.BankAccountNo,
		Amount:         r.Amount,
		NetAmount:      r.NetAmount,
		BillDate:       r.BillDate,
		Description:    r.Description,
	})
	if err != nil {
		s.logger.Warn("fraud scoring failed", "reimbursement_id", r.ID, "error", err)
		res = fraud.Result{Flags: []string{fraud.FlagScorerUnavailable}}
	}

	updated, flagged, err := s.applyScore(ctx, r.ID, "", res)
	if err != nil {
		s.logger.Error("failed to store fraud score", "reimbursement_id", r.ID, "error", err)
		return r
	}
	if flagged {
		s.afterFlag(ctx, updated)
	}
	return updated
}

// ApplyFraudSignal handles a late scorer callback. Re-sending the same signal changes nothing.
func (s *Service) ApplyFraudSignal(ctx context.Context, sig Signal) (*Request, error) {
	sig.TrackingCode = strings.ToUpper(strings.TrimSpace(sig.TrackingCode))
	if sig.RequestID <= 0 && sig.TrackingCode == "" {
		return nil, internal.NewValidationFieldError("trackingCode", "requestId or trackingCode is required", internal.ErrCodeRequiredField)
	}
	if err := validation.Struct(sig); err != nil {
		return nil, err
	}

	updated, flagged, err := s.applyScore(ctx, sig.RequestID, sig.TrackingCode, fraud.Result{Score: sig.Score, Flags: sig.Flags})
	if err != nil {
		return nil, s.failure(err, "failed to apply fraud signal", "reimbursement_id", sig.RequestID, "tracking_code", sig.TrackingCode)
	}
	if flagged {
		s.afterFlag(ctx, updated)
	}
	return updated, nil
}

// applyScore keeps the highest score seen and the union of flags. Only PENDING and
// FLAGGED requests take scores; a PENDING request above the threshold becomes FLAGGED.
func (s *Service) applyScore(ctx context.Context, id int64, code string, res fraud.Result) (*Request, bool, error) {
	var out *Request
	var flagged bool
	err := s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		r, err := repo.FindForSignal(ctx, id, code)
		if err != nil {
			return err
		}
		if r == nil {
			return internal.NewNotFoundError("reimbursement request not found", internal.ErrCodeReimbursementNotFound)
		}
		out = r
		if r.Status != StatusPending && r.Status != StatusFlagged {
			s.logger.Info("fraud score ignored for settled request", "reimbursement_id", r.ID, "status", r.Status)
			return nil
		}

		score := fraud.Clamp(res.Score)
		if r.FraudScore > score {
			score = r.FraudScore
		}
		flags := fraud.MergeFlags(r.FraudFlags, res.Flags)
		changed := score != r.FraudScore || len(flags) != len(r.FraudFlags)
		r.FraudScore, r.FraudFlags = score, flags

		if r.Status == StatusPending && score > s.cfg.FraudThreshold {
			r.Status = StatusFlagged
			flagged, changed = true, true
		}
		if !changed {
			return nil
		}
		if err := repo.Update(ctx, r); err != nil {
			return err
		}
		if !flagged {
			return nil
		}
		note := fmt.Sprintf("fraud score %d exceeds %d: %s", score, s.cfg.FraudThreshold, strings.Join(flags, ", "))
		return repo.AppendEvent(ctx, &Event{
			RequestID:  r.ID,
			FromStatus: strPtr(StatusPending),
			ToStatus:   StatusFlagged,
			ActorName:  strPtr(systemActor),
			Note:       &note,
		})
	})
	return out, flagged, err
}

func (s *Service) afterFlag(ctx context.Context, r *Request) {
	s.logger.Warn("reimbursement flagged",
		"reimbursement_id", r.ID,
		"company_id", r.CompanyID,
		"fraud_score", r.FraudScore,
		"fraud_flags", r.FraudFlags)
	s.metrics.Reimbursement(StatusFlagged)
	s.publish(ctx, events.EventTypeReimbursementFlagged, r, 0, map[string]interface{}{
		"fraud_score": r.FraudScore,
		"fraud_flags": r.FraudFlags,
	})
}

func (s *Service) Approve(ctx context.Context, actorID, companyID, id int64) (*Request, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleReimbursements, permission.ActionApprove)); err != nil {
		return nil, err
	}
	return s.transition(ctx, actorID, companyID, id, StatusApproved,
		func(_ *gorm.DB, r *Request, now time.Time) (*string, error) {
			r.ApprovedBy, r.ApprovedAt = &actorID, &now
			return nil, nil
		})
}

func (s *Service) Reject(ctx context.Context, actorID, companyID, id int64, reason string) (*Request, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleReimbursements, permission.ActionApprove)); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, internal.NewValidationFieldError("reason", "a rejection needs a reason", internal.ErrCodeReasonRequired)
	}
	return s.transition(ctx, actorID, companyID, id, StatusRejected,
		func(_ *gorm.DB, r *Request, now time.Time) (*string, error) {
			r.RejectedBy, r.RejectedAt, r.RejectionReason = &actorID, &now, &reason
			return &reason, nil
		})
}

// Pay marks an APPROVED request PAID and books it as an expense in the same transaction.
func (s *Service) Pay(ctx context.Context, actorID, companyID, id int64, req PayRequest) (*Request, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleReimbursements, permission.ActionPay)); err != nil {
		return nil, err
	}
	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	req.PaymentRef = strings.TrimSpace(req.PaymentRef)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var expense *transaction.Transaction
	paid, err := s.transition(ctx, actorID, companyID, id, StatusPaid,
		func(tx *gorm.DB, r *Request, now time.Time) (*string, error) {
			txn, err := s.expenses.MaterializeReimbursement(ctx, tx, transaction.ReimbursementExpense{
				CompanyID:   r.CompanyID,
				RequestID:   r.ID,
				ActorID:     actorID,
				Amount:      r.Amount,
				VATAmount:   r.VATAmount,
				BillDate:    r.BillDate,
				AccountID:   r.AccountID,
				Description: fmt.Sprintf("Reimbursement %s: %s", r.TrackingCode, r.Description),
			})
			if err != nil {
				return nil, err
			}
			expense = txn
			r.PaidBy, r.PaidAt = &actorID, &now
			r.PaymentRef, r.PaymentMethod = &req.PaymentRef, &req.PaymentMethod
			r.ExpenseID = &txn.ID
			note := fmt.Sprintf("%s %s", req.PaymentMethod, req.PaymentRef)
			return &note, nil
		})
	if err != nil {
		return nil, err
	}
	s.expenses.AfterMaterialize(ctx, expense, actorID)
	return paid, nil
}

type mutation func(tx *gorm.DB, r *Request, now time.Time) (note *string, err error)

// transition locks the request, checks the move and applies mutate before writing the timeline row.
// Callers check permissions first.
func (s *Service) transition(ctx context.Context, actorID, companyID, id int64, to string, mutate mutation) (*Request, error) {
	var updated *Request
	var from string
	err := s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		r, err := repo.GetForUpdate(ctx, companyID, id)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(id)
		}
		if !CanTransition(r.Status, to) {
			return internal.NewTransitionError(entityType, r.Status, to)
		}

		from = r.Status
		now := s.now()
		note, err := mutate(tx, r, now)
		if err != nil {
			return err
		}
		r.Status = to
		if err := repo.Update(ctx, r); err != nil {
			return err
		}
		if err := repo.AppendEvent(ctx, &Event{
			RequestID:  r.ID,
			FromStatus: &from,
			ToStatus:   to,
			ActorID:    &actorID,
			Note:       note,
		}); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, s.failure(err, "failed to change reimbursement status", "reimbursement_id", id, "to", to)
	}

	s.logger.Info("reimbursement status changed",
		"reimbursement_id", id,
		"company_id", companyID,
		"from", from,
		"to", to,
		"actor_id", actorID)
	s.metrics.Reimbursement(to)
	s.publish(ctx, eventTypeFor(to), updated, actorID, map[string]interface{}{"from": from})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, actorID, companyID, id int64) (*Request, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleReimbursements, permission.ActionRead)); err != nil {
		return nil, err
	}
	r, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, s.failure(err, "failed to load reimbursement", "reimbursement_id", id)
	}
	if r == nil {
		return nil, notFound(id)
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, actorID, companyID int64, f Filter) (*Page, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleReimbursements, permission.ActionRead)); err != nil {
		return nil, err
	}
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Status != "" {
		v := validation.NewValidator()
		v.Field("status", f.Status).OneOf(StatusPending, StatusFlagged, StatusApproved, StatusRejected, StatusPaid)
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}

	items, total, err := s.repo.List(ctx, companyID, f)
	if err != nil {
		return nil, s.failure(err, "failed to list reimbursements", "company_id", companyID)
	}
	if items == nil {
		items = []*Request{}
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Track is the unauthenticated status lookup.
func (s *Service) Track(ctx context.Context, code string) (*TrackView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidTrackingCode(code) {
		return nil, internal.NewValidationFieldError("code", "tracking code must look like RB-XXXXXX", internal.ErrCodeInvalidTrackCode)
	}
	r, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, s.failure(err, "failed to track reimbursement", "tracking_code", code)
	}
	if r == nil {
		return nil, internal.NewNotFoundError("no reimbursement with this tracking code", internal.ErrCodeReimbursementNotFound)
	}
	history, err := s.repo.Timeline(ctx, r.ID)
	if err != nil {
		return nil, s.failure(err, "failed to load reimbursement timeline", "reimbursement_id", r.ID)
	}

	view := &TrackView{
		TrackingCode:  r.TrackingCode,
		Status:        r.Status,
		RequesterName: r.RequesterName,
		NetAmount:     r.NetAmount,
		SubmittedAt:   r.CreatedAt,
		Timeline:      make([]TimelineEntry, 0, len(history)),
	}
	for _, e := range history {
		name := systemActor
		if e.ActorName != nil && *e.ActorName != "" {
			name = *e.ActorName
		}
		view.Timeline = append(view.Timeline, TimelineEntry{
			FromStatus: e.FromStatus,
			Status:     e.ToStatus,
			ActorName:  name,
			Note:       e.Note,
			At:         e.CreatedAt,
		})
	}
	return view, nil
}

// issueCode draws codes until the registry accepts one.
func (s *Service) issueCode(ctx context.Context, repo Repository) (string, error) {
	for attempt := 1; attempt <= s.cfg.TrackingCodeRetry; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		ok, err := repo.IssueCode(ctx, code)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
		s.logger.Warn("tracking code collision", "attempt", attempt)
	}
	return "", internal.NewInternalError("could not issue a unique tracking code",
		fmt.Errorf("%d tracking code collisions", s.cfg.TrackingCodeRetry))
}

func (s *Service) checkAccount(ctx context.Context, companyID int64, accountID *int64) error {
	if accountID == nil || s.accounts == nil {
		return nil
	}
	class, ok, err := s.accounts.AccountClass(ctx, companyID, *accountID)
	if err != nil {
		return s.failure(err, "failed to check account", "account_id", *accountID)
	}
	want := transaction.NewExpenseStrategy().AccountClass()
	if !ok || class != want {
		return internal.NewValidationFieldError("accountId",
			fmt.Sprintf("account %d is not an active %s account", *accountID, want), internal.ErrCodeInvalidAccount)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, r *Request, actorID int64, extra map[string]interface{}) {
	if s.bus == nil || r == nil {
		return
	}
	data := map[string]interface{}{
		"tracking_code": r.TrackingCode,
		"status":        r.Status,
		"net_amount":    r.NetAmount.StringFixed(2),
	}
	for k, v := range extra {
		data[k] = v
	}
	var actor *int64
	if actorID > 0 {
		actor = events.Actor(actorID)
	}
	_ = s.bus.Publish(ctx, events.NewDomainEvent(eventType, r.CompanyID, actor, entityType, r.ID, data))
}

func (s *Service) failure(err error, msg string, args ...any) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	s.logger.Error(msg, append(args, "error", err)...)
	return internal.NewInternalError(msg, err)
}

func eventTypeFor(status string) string {
	switch status {
	case StatusApproved:
		return events.EventTypeReimbursementApproved
	case StatusRejected:
		return events.EventTypeReimbursementRejected
	case StatusPaid:
		return events.EventTypeReimbursementPaid
	case StatusFlagged:
		return events.EventTypeReimbursementFlagged
	}
	return events.EventTypeReimbursementSubmitted
}

func notFound(id int64) error {
	return internal.NewNotFoundError(fmt.Sprintf("reimbursement %d not found", id), internal.ErrCodeReimbursementNotFound)
}

func strPtr(s string) *string {
	return &s
}
