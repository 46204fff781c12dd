package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

// Repository returns nil, nil when a row does not exist or is soft-deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, companyID int64, txnType Type, id int64) (*Transaction, error)
	GetForUpdate(ctx context.Context, companyID int64, txnType Type, id int64) (*Transaction, error)
	LockMany(ctx context.Context, companyID int64, txnType Type, ids []int64) ([]*Transaction, error)
	List(ctx context.Context, f Filter) ([]*Transaction, int64, error)
	Update(ctx context.Context, t *Transaction) error
	UpdateWorkflowStatus(ctx context.Context, companyID int64, txnType Type, ids []int64, from, to string) (int64, error)
	SoftDelete(ctx context.Context, companyID int64, txnType Type, id int64) error
	PaymentsFor(ctx context.Context, txnIDs []int64) (map[int64][]*Payment, error)
}

// Allocator owns payer allocations. It runs inside the caller's database transaction.
type Allocator interface {
	CreateAllocations(ctx context.Context, tx *gorm.DB, txn *Transaction, payers []Payer, actorID int64) ([]*Payment, error)
	ReplaceAllocations(ctx context.Context, tx *gorm.DB, txn *Transaction, payers []Payer, actorID int64) ([]*Payment, error)
	InvalidateReports(ctx context.Context, companyID int64)
}

// AccountResolver reports the class of an active account, or ok=false when there is none.
type AccountResolver interface {
	AccountClass(ctx context.Context, companyID, accountID int64) (class string, ok bool, err error)
}

type Filter struct {
	CompanyID      int64
	Type           Type
	WorkflowStatus string
	ApprovalStatus string
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

type Page struct {
	Items  []*Transaction `json:"items"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ReimbursementExpense is what a paid reimbursement turns into.
type ReimbursementExpense struct {
	CompanyID   int64
	RequestID   int64
	ActorID     int64
	Amount      decimal.Decimal
	VATAmount   decimal.Decimal
	BillDate    time.Time
	AccountID   *int64
	Description string
}

type ServiceAPI interface {
	Create(ctx context.Context, actorID, companyID int64, txnType Type, payload map[string]any) (*Transaction, error)
	Get(ctx context.Context, actorID, companyID int64, txnType Type, id int64) (*Transaction, error)
	List(ctx context.Context, actorID int64, f Filter) (*Page, error)
	Update(ctx context.Context, actorID, companyID int64, txnType Type, id int64, payload map[string]any) (*Transaction, error)
	Delete(ctx context.Context, actorID, companyID int64, txnType Type, id int64) error
	Statuses(txnType Type) ([]Status, error)
}

type Service struct {
	repo       Repository
	transactor store.Transactor
	perms      permission.Authorizer
	allocator  Allocator
	accounts   AccountResolver
	bus        events.Publisher
	logger     *slog.Logger
}

func NewService(
	repo Repository,
	transactor store.Transactor,
	perms permission.Authorizer,
	allocator Allocator,
	accounts AccountResolver,
	bus events.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		transactor: transactor,
		perms:      perms,
		allocator:  allocator,
		accounts:   accounts,
		bus:        bus,
		logger:     logger,
	}
}

func (s *Service) Statuses(txnType Type) ([]Status, error) {
	strat, err := StrategyFor(txnType)
	if err != nil {
		return nil, err
	}
	return strat.WorkflowStatuses(), nil
}

func (s *Service) Create(ctx context.Context, actorID, companyID int64, txnType Type, payload map[string]any) (*Transaction, error) {
	strat, err := StrategyFor(txnType)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(strat.Module(), permission.ActionCreate)); err != nil {
		return nil, err
	}

	d, err := strat.TransformCreateData(payload)
	if err != nil {
		return nil, err
	}
	// writing an explicit status is an update-level privilege
	if d.WorkflowStatus != nil {
		if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(strat.Module(), permission.ActionUpdate)); err != nil {
			return nil, err
		}
	}
	if err := strat.ValidateCreate(d); err != nil {
		return nil, err
	}
	if err := s.checkAccount(ctx, strat, companyID, d.AccountID); err != nil {
		return nil, err
	}

	txn := newTransaction(strat, companyID, actorID, d)

	if s.bus != nil {
		if err := s.bus.PublishSync(ctx, events.NewBeforeCreateEvent(companyID, actorID, string(txnType), txn)); err != nil {
			return nil, internal.NewValidationError(err.Error(), internal.ErrCodeHookRejected)
		}
	}

	err = s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
			return err
		}
		if txnType != TypeExpense {
			return nil
		}
		payments, err := s.allocator.CreateAllocations(ctx, tx, txn, d.Payers, actorID)
		if err != nil {
			return err
		}
		txn.Payments = payments
		return nil
	})
	if err != nil {
		return nil, s.storageError(err, "failed to create transaction", "company_id", companyID, "type", txnType)
	}

	s.logger.Info("transaction created",
		"transaction_id", txn.ID,
		"company_id", companyID,
		"type", txnType,
		"net_amount", txn.NetAmount.StringFixed(2),
		"workflow_status", txn.WorkflowStatus)

	s.afterWrite(ctx, events.EventTypeTransactionCreated, strat, txn, actorID, snapshot(txn))
	return txn, nil
}

func newTransaction(strat Strategy, companyID, actorID int64, d *Draft) *Transaction {
	totals := d.Totals(nil)
	flags := d.Flags(nil)

	txn := &Transaction{
		CompanyID:      companyID,
		Type:           strat.Type(),
		Amount:         totals.BaseAmount,
		VATRate:        decimal.Zero,
		VATAmount:      totals.VATAmount,
		IsWHT:          flags.IsWHT,
		WHTType:        d.WHTType,
		WHTAmount:      totals.WHTAmount,
		NetAmount:      totals.NetAmount,
		TxnDate:        *d.TxnDate,
		ContactID:      d.ContactID,
		AccountID:      d.AccountID,
		DocumentType:   flags.DocumentType,
		HasDocument:    flags.HasDocument,
		ApprovalStatus: ApprovalNotRequired,
		CreatedBy:      actorID,
	}
	if d.VATRate != nil {
		txn.VATRate = *d.VATRate
	}
	if flags.IsWHT {
		txn.WHTRate = d.WHTRate
	}
	if d.Description != nil {
		txn.Description = *d.Description
	}

	switch {
	case d.IsDraft != nil && *d.IsDraft:
		txn.WorkflowStatus = StatusDraft
	case d.WorkflowStatus != nil:
		txn.WorkflowStatus = *d.WorkflowStatus
	default:
		txn.WorkflowStatus = strat.DetermineWorkflowStatus(flags)
	}
	if d.RequiresApproval != nil && *d.RequiresApproval {
		txn.ApprovalStatus = ApprovalPending
	}
	return txn
}

func (s *Service) Get(ctx context.Context, actorID, companyID int64, txnType Type, id int64) (*Transaction, error) {
	strat, err := StrategyFor(txnType)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(strat.Module(), permission.ActionRead)); err != nil {
		return nil, err
	}

	txn, err := s.repo.GetByID(ctx, companyID, txnType, id)
	if err != nil {
		return nil, s.storageError(err, "failed to get transaction", "transaction_id", id)
	}
	if txn == nil {
		return nil, notFound(strat, id)
	}
	payments, err := s.repo.PaymentsFor(ctx, []int64{txn.ID})
	if err != nil {
		return nil, s.storageError(err, "failed to load payments", "transaction_id", id)
	}
	txn.Payments = payments[txn.ID]
	return txn, nil
}

func (s *Service) List(ctx context.Context, actorID int64, f Filter) (*Page, error) {
	strat, err := StrategyFor(f.Type)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, actorID, f.CompanyID, permission.Cap(strat.Module(), permission.ActionRead)); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, s.storageError(err, "failed to list transactions", "company_id", f.CompanyID)
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *Service) Update(ctx context.Context, actorID, companyID int64, txnType Type, id int64, payload map[string]any) (*Transaction, error) {
	strat, err := StrategyFor(txnType)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(strat.Module(), permission.ActionUpdate)); err != nil {
		return nil, err
	}

	d, err := strat.TransformUpdateData(payload)
	if err != nil {
		return nil, err
	}
	if d.IsEmpty() {
		return nil, internal.NewValidationError("no updatable fields supplied", internal.ErrCodeValidationFailed)
	}
	if err := s.checkAccount(ctx, strat, companyID, d.AccountID); err != nil {
		return nil, err
	}

	var (
		updated *Transaction
		before  map[string]interface{}
	)
	err = s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetForUpdate(ctx, companyID, txnType, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return notFound(strat, id)
		}
		if err := strat.ValidateUpdate(existing, d); err != nil {
			return err
		}
		before = snapshot(existing)

		next := applyDraft(strat, existing, d)
		if txnType == TypeExpense {
			if err := s.reallocate(ctx, tx, repo, strat, existing, next, d, actorID); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, s.storageError(err, "failed to update transaction", "transaction_id", id)
	}

	s.logger.Info("transaction updated",
		"transaction_id", id,
		"company_id", companyID,
		"type", txnType,
		"workflow_status", updated.WorkflowStatus)

	s.afterWrite(ctx, events.EventTypeTransactionUpdated, strat, updated, actorID, map[string]interface{}{
		"before": before,
		"after":  snapshot(updated),
	})
	return updated, nil
}

// applyDraft returns a copy of existing with the draft merged and tax fields recomputed.
func applyDraft(strat Strategy, existing *Transaction, d *Draft) *Transaction {
	next := *existing
	totals := d.Totals(existing)
	flags := d.Flags(existing)

	next.Amount = totals.BaseAmount
	next.VATAmount = totals.VATAmount
	next.WHTAmount = totals.WHTAmount
	next.NetAmount = totals.NetAmount
	next.IsWHT = flags.IsWHT
	next.HasDocument = flags.HasDocument
	next.DocumentType = flags.DocumentType
	if d.VATRate != nil {
		next.VATRate = *d.VATRate
	}
	if d.WHTRate != nil {
		next.WHTRate = d.WHTRate
	}
	if d.WHTType != nil {
		next.WHTType = d.WHTType
	}
	if !next.IsWHT {
		next.WHTRate, next.WHTType = nil, nil
	}
	if d.TxnDate != nil {
		next.TxnDate = *d.TxnDate
	}
	if d.ContactID != nil {
		next.ContactID = d.ContactID
	}
	if d.AccountID != nil {
		next.AccountID = d.AccountID
	}
	if d.Description != nil {
		next.Description = *d.Description
	}
	next.WorkflowStatus = strat.NextWorkflowStatus(existing.WorkflowStatus, flags)
	return &next
}

// reallocate keeps the payer split equal to the net amount after an edit.
func (s *Service) reallocate(ctx context.Context, tx *gorm.DB, repo Repository, strat Strategy, existing, next *Transaction, d *Draft, actorID int64) error {
	netChanged := !existing.NetAmount.Equal(next.NetAmount)
	if !d.PayersSet && !netChanged {
		return nil
	}

	if !d.PayersSet {
		payments, err := repo.PaymentsFor(ctx, []int64{existing.ID})
		if err != nil {
			return err
		}
		existing.Payments = payments[existing.ID]
		for _, p := range existing.ActivePayments() {
			if p.PaidByType == PayerUser {
				return internal.NewValidationFieldError("payers",
					fmt.Sprintf("%s changed to %s; supply a new payer split", strat.Fields().NetAmount, next.NetAmount.StringFixed(2)),
					internal.ErrCodePayerSplitMismatch)
			}
		}
	}

	payments, err := s.allocator.ReplaceAllocations(ctx, tx, next, d.Payers, actorID)
	if err != nil {
		return err
	}
	next.Payments = payments
	return nil
}

func (s *Service) Delete(ctx context.Context, actorID, companyID int64, txnType Type, id int64) error {
	strat, err := StrategyFor(txnType)
	if err != nil {
		return err
	}
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(strat.Module(), permission.ActionDelete)); err != nil {
		return err
	}

	txn, err := s.repo.GetByID(ctx, companyID, txnType, id)
	if err != nil {
		return s.storageError(err, "failed to get transaction", "transaction_id", id)
	}
	if txn == nil {
		return notFound(strat, id)
	}
	if err := s.repo.SoftDelete(ctx, companyID, txnType, id); err != nil {
		return s.storageError(err, "failed to delete transaction", "transaction_id", id)
	}

	s.logger.Info("transaction deleted", "transaction_id", id, "company_id", companyID, "type", txnType)
	s.afterWrite(ctx, events.EventTypeTransactionDeleted, strat, txn, actorID, snapshot(txn))
	return nil
}

// MaterializeReimbursement records a paid reimbursement as an approved expense inside tx.
// The caller publishes with AfterMaterialize once tx commits.
func (s *Service) MaterializeReimbursement(ctx context.Context, tx *gorm.DB, in ReimbursementExpense) (*Transaction, error) {
	strat := NewExpenseStrategy()
	now := time.Now().UTC()

	totals := (&Draft{Amount: &in.Amount, VATAmount: &in.VATAmount}).Totals(nil)
	vatRate := decimal.Zero
	if totals.BaseAmount.IsPositive() && totals.VATAmount.IsPositive() {
		vatRate = totals.VATAmount.Mul(decimal.NewFromInt(100)).Div(totals.BaseAmount).Round(2)
	}
	flags := DocumentFlags{HasDocument: true, DocumentType: DocumentReceipt}
	requestID := in.RequestID
	actor := in.ActorID

	txn := &Transaction{
		CompanyID:              in.CompanyID,
		Type:                   TypeExpense,
		Amount:                 totals.BaseAmount,
		VATRate:                vatRate,
		VATAmount:              totals.VATAmount,
		WHTAmount:              decimal.Zero,
		NetAmount:              totals.NetAmount,
		TxnDate:                in.BillDate,
		AccountID:              in.AccountID,
		Description:            in.Description,
		DocumentType:           flags.DocumentType,
		HasDocument:            flags.HasDocument,
		WorkflowStatus:         strat.DetermineWorkflowStatus(flags),
		ApprovalStatus:         ApprovalApproved,
		IsReimbursement:        true,
		ReimbursementRequestID: &requestID,
		CreatedBy:              actor,
		ApprovedBy:             &actor,
		ApprovedAt:             &now,
	}
	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, err
	}
	payments, err := s.allocator.CreateAllocations(ctx, tx, txn, nil, actor)
	if err != nil {
		return nil, err
	}
	txn.Payments = payments
	return txn, nil
}

func (s *Service) AfterMaterialize(ctx context.Context, txn *Transaction, actorID int64) {
	s.afterWrite(ctx, events.EventTypeTransactionCreated, NewExpenseStrategy(), txn, actorID, snapshot(txn))
}

func (s *Service) checkAccount(ctx context.Context, strat Strategy, companyID int64, accountID *int64) error {
	if accountID == nil || s.accounts == nil {
		return nil
	}
	class, ok, err := s.accounts.AccountClass(ctx, companyID, *accountID)
	if err != nil {
		return s.storageError(err, "failed to resolve account", "account_id", *accountID)
	}
	if !ok {
		return internal.NewValidationFieldError("account_id", fmt.Sprintf("account %d does not exist", *accountID), internal.ErrCodeInvalidAccount)
	}
	if class != strat.AccountClass() {
		return internal.NewValidationFieldError("account_id",
			fmt.Sprintf("an %s must use a %s account, got %s", strat.Labels().Singular, strat.AccountClass(), class),
			internal.ErrCodeInvalidAccount)
	}
	return nil
}

func (s *Service) afterWrite(ctx context.Context, eventType string, strat Strategy, txn *Transaction, actorID int64, data map[string]interface{}) {
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewDomainEvent(eventType, txn.CompanyID, events.Actor(actorID), strat.Labels().Singular, txn.ID, data))
	}
	if txn.Type == TypeExpense && s.allocator != nil {
		s.allocator.InvalidateReports(ctx, txn.CompanyID)
	}
}

// storageError passes AppErrors through and hides everything else behind an internal error.
func (s *Service) storageError(err error, msg string, args ...any) error {
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	s.logger.Error(msg, append(args, "error", err)...)
	return internal.NewInternalError(msg, err)
}

func notFound(strat Strategy, id int64) error {
	return internal.NewNotFoundError(fmt.Sprintf("%s %d not found", strat.Labels().Singular, id), internal.ErrCodeTransactionNotFound)
}

func snapshot(t *Transaction) map[string]interface{} {
	out := map[string]interface{}{
		"type":            string(t.Type),
		"amount":          t.Amount.StringFixed(2),
		"vat_amount":      t.VATAmount.StringFixed(2),
		"wht_amount":      t.WHTAmount.StringFixed(2),
		"net_amount":      t.NetAmount.StringFixed(2),
		"date":            t.TxnDate.Format(dateLayout),
		"document_type":   t.DocumentType,
		"has_document":    t.HasDocument,
		"workflow_status": t.WorkflowStatus,
		"approval_status": t.ApprovalStatus,
	}
	if t.AccountID != nil {
		out["account_id"] = *t.AccountID
	}
	return out
}
