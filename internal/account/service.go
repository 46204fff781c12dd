package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
	"github.com/frahmantamala/bookkeeping/internal/core/events"
	"github.com/frahmantamala/bookkeeping/internal/core/store"
	"github.com/frahmantamala/bookkeeping/internal/observability/metrics"
	"github.com/frahmantamala/bookkeeping/internal/permission"
)

const defaultImportTimeout = 2 * time.Minute

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context, companyID int64, class string) ([]*Account, error)
	GetByID(ctx context.Context, companyID, id int64) (*Account, error)
	// Create reports false when the code is already taken in the company.
	Create(ctx context.Context, a *Account) (bool, error)
	ExistingCodes(ctx context.Context, companyID int64, codes []string) (map[string]bool, error)
	Upsert(ctx context.Context, rows []*Account) error
}

type ServiceAPI interface {
	List(ctx context.Context, actorID, companyID int64, class string) ([]*Account, error)
	Create(ctx context.Context, actorID, companyID int64, req CreateRequest) (*Account, error)
	Import(ctx context.Context, actorID, companyID int64, req ImportRequest) (*ImportResult, error)
}

type Service struct {
	repo          Repository
	transactor    store.Transactor
	perms         permission.Authorizer
	bus           events.Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	importTimeout time.Duration
}

func NewService(
	repo Repository,
	transactor store.Transactor,
	perms permission.Authorizer,
	cfg internal.AccountsConfig,
	bus events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	timeout := cfg.ImportTimeout
	if timeout <= 0 {
		timeout = defaultImportTimeout
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{
		repo:          repo,
		transactor:    transactor,
		perms:         perms,
		bus:           bus,
		metrics:       m,
		logger:        logger,
		importTimeout: timeout,
	}
}

func (s *Service) List(ctx context.Context, actorID, companyID int64, class string) ([]*Account, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleAccounts, permission.ActionRead)); err != nil {
		return nil, err
	}
	class = strings.ToUpper(strings.TrimSpace(class))
	if class != "" {
		v := validation.NewValidator()
		v.Field("class", class).OneOf(Classes...)
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	accounts, err := s.repo.List(ctx, companyID, class)
	if err != nil {
		s.logger.Error("failed to list accounts", "company_id", companyID, "error", err)
		return nil, internal.NewInternalError("failed to list accounts", err)
	}
	if accounts == nil {
		accounts = []*Account{}
	}
	return accounts, nil
}

func (s *Service) Create(ctx context.Context, actorID, companyID int64, req CreateRequest) (*Account, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleAccounts, permission.ActionCreate)); err != nil {
		return nil, err
	}
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	req.Class = strings.ToUpper(strings.TrimSpace(req.Class))
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	a := &Account{
		CompanyID: companyID,
		Code:      req.Code,
		Name:      req.Name,
		Class:     req.Class,
		Source:    SourceManual,
		IsActive:  true,
	}
	created, err := s.repo.Create(ctx, a)
	if err != nil {
		s.logger.Error("failed to create account", "company_id", companyID, "code", a.Code, "error", err)
		return nil, internal.NewInternalError("failed to create account", err)
	}
	if !created {
		return nil, internal.NewConflictError(fmt.Sprintf("account code %s already exists", a.Code), internal.ErrCodeDuplicateCode)
	}

	s.logger.Info("account created", "account_id", a.ID, "company_id", companyID, "code", a.Code, "class", a.Class)
	return a, nil
}

// Import upserts the chart of accounts in one transaction bounded by the import timeout.
// Any failure, the timeout included, leaves the chart untouched.
func (s *Service) Import(ctx context.Context, actorID, companyID int64, req ImportRequest) (*ImportResult, error) {
	if err := s.perms.Require(ctx, actorID, companyID, permission.Cap(permission.ModuleAccounts, permission.ActionImport)); err != nil {
		return nil, err
	}
	rows, err := normalizeRows(companyID, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	result := &ImportResult{}
	err = s.transactor.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		codes := make([]string, len(rows))
		for i, a := range rows {
			codes[i] = a.Code
		}
		existing, err := repo.ExistingCodes(ctx, companyID, codes)
		if err != nil {
			return err
		}
		for _, a := range rows {
			if existing[a.Code] {
				result.Updated++
			} else {
				result.Created++
			}
		}
		return repo.Upsert(ctx, rows)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Error("account import timed out", "company_id", companyID, "rows", len(rows), "timeout", s.importTimeout)
			return nil, internal.NewInternalError("account import timed out", err)
		}
		s.logger.Error("account import failed", "company_id", companyID, "rows", len(rows), "error", err)
		return nil, internal.NewInternalError("failed to import accounts", err)
	}

	s.logger.Info("accounts imported",
		"company_id", companyID,
		"created", result.Created,
		"updated", result.Updated)
	s.metrics.AccountsImported(len(rows))
	if s.bus != nil {
		_ = s.bus.Publish(ctx, events.NewDomainEvent(events.EventTypeAccountsImported, companyID,
			events.Actor(actorID), "account", 0, map[string]interface{}{
				"created": result.Created,
				"updated": result.Updated,
			}))
	}
	return result, nil
}

// AccountClass resolves an active account for transaction and reimbursement checks.
func (s *Service) AccountClass(ctx context.Context, companyID, accountID int64) (string, bool, error) {
	a, err := s.repo.GetByID(ctx, companyID, accountID)
	if err != nil {
		return "", false, err
	}
	if a == nil || !a.IsActive {
		return "", false, nil
	}
	return a.Class, true, nil
}

func normalizeRows(companyID int64, req ImportRequest) ([]*Account, error) {
	for i := range req.Rows {
		req.Rows[i].Code = strings.TrimSpace(req.Rows[i].Code)
		req.Rows[i].Name = strings.TrimSpace(req.Rows[i].Name)
		req.Rows[i].Class = strings.ToUpper(strings.TrimSpace(req.Rows[i].Class))
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(req.Rows))
	rows := make([]*Account, 0, len(req.Rows))
	for i, row := range req.Rows {
		if first, dup := seen[row.Code]; dup {
			return nil, internal.NewValidationFieldError(fmt.Sprintf("rows[%d].code", i),
				fmt.Sprintf("code %s repeats rows[%d]", row.Code, first), internal.ErrCodeDuplicateCode)
		}
		seen[row.Code] = i
		active := true
		if row.IsActive != nil {
			active = *row.IsActive
		}
		rows = append(rows, &Account{
			CompanyID: companyID,
			Code:      row.Code,
			Name:      row.Name,
			Class:     row.Class,
			Source:    SourceImported,
			IsActive:  active,
		})
	}
	return rows, nil
}
