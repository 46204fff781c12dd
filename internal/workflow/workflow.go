package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
	"github.com/frahmantamala/bookkeeping/internal/permission"
	"github.com/frahmantamala/bookkeeping/internal/transaction"
)

const (
	axisWorkflow = "workflow"
	axisApproval = "approval"
)

// Approval actions accepted by ChangeApprovalStatus.
const (
	ActionSubmit   = "submit"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionResubmit = "resubmit"
)

type approvalMove struct {
	from, to string
	action   permission.Action
}

var approvalMoves = map[string]approvalMove{
	ActionSubmit:   {transaction.ApprovalNotRequired, transaction.ApprovalPending, permission.ActionUpdate},
	ActionApprove:  {transaction.ApprovalPending, transaction.ApprovalApproved, permission.ActionApprove},
	ActionReject:   {transaction.ApprovalPending, transaction.ApprovalRejected, permission.ActionApprove},
	ActionResubmit: {transaction.ApprovalRejected, transaction.ApprovalPending, permission.ActionUpdate},
}

// BulkResult is the single response for a whole batch.
type BulkResult struct {
	Type    transaction.Type `json:"type"`
	From    string           `json:"from_status"`
	To      string           `json:"to_status"`
	IDs     []int64          `json:"ids"`
	Updated int              `json:"updated"`
}

type ServiceAPI interface {
	BulkChangeStatus(ctx context.Context, actorID, companyID int64, txnType transaction.Type, ids []int64, target string) (*BulkResult, error)
	ChangeStatus(ctx context.Context, actorID, companyID int64, txnType transaction.Type, id int64, target string) (*BulkResult, error)
	ChangeApprovalStatus(ctx context.Context, actorID, companyID int64, txnType transaction.Type, id int64, action, reason string) (*transaction.Transaction, error)
}

type Service struct {
	repo       transaction.Repository
	transactor store.Transactor
	perms      permission.Authorizer
	bus        events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(repo transaction.Repository, transactor store.Transactor, perms permission.Authorizer, bus events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{
		repo:       repo,
		transactor: transactor,
		perms:      perms,
		bus:        bus,
		metrics:    m,
		logger:     logger,
	}
}

// BulkChangeStatus moves every id from one shared status to target, or none of them.
func (s *Service) BulkChangeStatus(ctx context.Context, actorID, companyID int64, txnType transaction.Type, ids []int64, target string) (*BulkResult, error) {
	strat, err := transaction.StrategyFor(txnType)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(strat.Module(), permission.ActionUpdate)); err != nil {
		return nil, err
	}

	target = strings.ToUpper(strings.TrimSpace(target))
	if !strat.IsValidStatus(target) {
		return nil, internal.NewValidationFieldError("targetStatus",
			fmt.Sprintf("%q is not a %s status", target, strat.Labels().Singular), internal.ErrCodeInvalidStatus)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, internal.NewValidationFieldError("ids", "ids must not be empty", internal.ErrCodeRequiredField)
	}

	result := &BulkResult{Type: txnType, To: target, IDs: ids}
	err = s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.LockMany(ctx, companyID, txnType, ids)
		if err != nil {
			return err
		}
		if missing := missingIDs(ids, rows); len(missing) > 0 {
			return internal.NewNotFoundError(
				fmt.Sprintf("%s not found: %v", strat.Labels().Plural, missing), internal.ErrCodeTransactionNotFound).
				WithDetails(map[string]interface{}{"missing_ids": missing})
		}

		current, err := commonStatus(rows)
		if err != nil {
			return err
		}
		if !strat.CanTransition(current, target) {
			return internal.NewTransitionError(strat.Labels().Singular, current, target)
		}

		n, err := repo.UpdateWorkflowStatus(ctx, companyID, txnType, ids, current, target)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return internal.NewConflictError(
				fmt.Sprintf("updated %d of %d %s; nothing was changed", n, len(ids), strat.Labels().Plural),
				internal.ErrCodeInvalidTransition)
		}
		result.From = current
		result.Updated = int(n)
		return nil
	})
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			s.logger.Warn("bulk status change rejected",
				"company_id", companyID, "type", txnType, "target", target, "count", len(ids), "error", err)
			return nil, err
		}
		s.logger.Error("bulk status change failed",
			"company_id", companyID, "type", txnType, "target", target, "error", err)
		return nil, internal.NewInternalError("failed to change status", err)
	}

	s.logger.Info("workflow status changed",
		"company_id", companyID,
		"type", txnType,
		"from", result.From,
		"to", target,
		"count", result.Updated)

	s.metrics.StatusTransition(string(txnType), axisWorkflow, result.From, target, result.Updated)
	s.metrics.BulkSize(result.Updated)
	for _, id := range ids {
		s.publish(ctx, events.EventTypeTransactionStatusChanged, companyID, actorID, strat, id, map[string]interface{}{
			"axis": axisWorkflow,
			"from": result.From,
			"to":   target,
		})
	}
	return result, nil
}

func (s *Service) ChangeStatus(ctx context.Context, actorID, companyID int64, txnType transaction.Type, id int64, target string) (*BulkResult, error) {
	return s.BulkChangeStatus(ctx, actorID, companyID, txnType, []int64{id}, target)
}

func (s *Service) ChangeApprovalStatus(ctx context.Context, actorID, companyID int64, txnType transaction.Type, id int64, action, reason string) (*transaction.Transaction, error) {
	strat, err := transaction.StrategyFor(txnType)
	if err != nil {
		return nil, err
	}
	action = strings.ToLower(strings.TrimSpace(action))
	move, ok := approvalMoves[action]
	if !ok {
		return nil, internal.NewValidationFieldError("action",
			fmt.Sprintf("action must be one of %s, %s, %s, %s", ActionSubmit, ActionApprove, ActionReject, ActionResubmit),
			internal.ErrCodeValidationFailed)
	}
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(strat.Module(), move.action)); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if action == ActionReject && reason == "" {
		return nil, internal.NewValidationFieldError("reason", "a rejection needs a reason", internal.ErrCodeReasonRequired)
	}

	var updated *transaction.Transaction
	err = s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txn, err := repo.GetForUpdate(ctx, companyID, txnType, id)
		if err != nil {
			return err
		}
		if txn == nil {
			return internal.NewNotFoundError(fmt.Sprintf("%s %d not found", strat.Labels().Singular, id), internal.ErrCodeTransactionNotFound)
		}
		if txn.ApprovalStatus != move.from {
			return internal.NewTransitionError(strat.Labels().Singular+" approval", txn.ApprovalStatus, move.to)
		}

		now := time.Now().UTC()
		txn.ApprovalStatus = move.to
		switch action {
		case ActionApprove:
			txn.ApprovedBy, txn.ApprovedAt = &actorID, &now
		case ActionReject:
			txn.RejectionReason = &reason
			txn.ApprovedBy, txn.ApprovedAt = nil, nil
		case ActionResubmit:
			txn.RejectionReason = nil
		}
		if err := repo.Update(ctx, txn); err != nil {
			return err
		}
		updated = txn
		return nil
	})
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("approval change failed", "transaction_id", id, "action", action, "error", err)
		return nil, internal.NewInternalError("failed to change approval status", err)
	}

	s.logger.Info("approval status changed",
		"transaction_id", id,
		"company_id", companyID,
		"from", move.from,
		"to", move.to)

	s.metrics.StatusTransition(string(txnType), axisApproval, move.from, move.to, 1)
	data := map[string]interface{}{"axis": axisApproval, "from": move.from, "to": move.to}
	if reason != "" {
		data["reason"] = reason
	}
	s.publish(ctx, events.EventTypeTransactionApprovalChange, companyID, actorID, strat, id, data)
	return updated, nil
}

func (s *Service) publish(ctx context.Context, eventType string, companyID, actorID int64, strat transaction.Strategy, id int64, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, events.NewDomainEvent(eventType, companyID, events.Actor(actorID), strat.Labels().Singular, id, data))
}

func commonStatus(rows []*transaction.Transaction) (string, error) {
	seen := map[string]bool{}
	for _, r := range rows {
		seen[r.WorkflowStatus] = true
	}
	if len(seen) == 1 {
		return rows[0].WorkflowStatus, nil
	}
	distinct := make([]string, 0, len(seen))
	for st := range seen {
		distinct = append(distinct, st)
	}
	sort.Strings(distinct)
	return "", internal.NewValidationError(
		fmt.Sprintf("ambiguous selection: rows are in %s", strings.Join(distinct, ", ")),
		internal.ErrCodeAmbiguousSelection,
	).WithDetails(map[string]interface{}{"statuses": distinct})
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

func missingIDs(ids []int64, rows []*transaction.Transaction) []int64 {
	found := make(map[int64]bool, len(rows))
	for _, r := range rows {
		found[r.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
