package account

import (
	"time"

	dm "github.com/frahmantamala/bookkeeping/internal/core/datamodel/account"
)

const (
	ClassAsset     = "ASSET"
	ClassLiability = "LIABILITY"
	ClassEquity    = "EQUITY"
	ClassRevenue   = "REVENUE"
	ClassExpense   = "EXPENSE"
)

const (
	SourceManual   = "MANUAL"
	SourceImported = "IMPORTED"
)

var Classes = []string{ClassAsset, ClassLiability, ClassEquity, ClassRevenue, ClassExpense}

type Account struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Class     string    `json:"class"`
	Source    string    `json:"source"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImportResult counts rows by whether the code already existed for the company.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func ToDataModel(a *Account) *dm.Account {
	return &dm.Account{
		ID:        a.ID,
		CompanyID: a.CompanyID,
		Code:      a.Code,
		Name:      a.Name,
		Class:     a.Class,
		Source:    a.Source,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func FromDataModel(a *dm.Account) *Account {
	return &Account{
		ID:        a.ID,
		CompanyID: a.CompanyID,
		Code:      a.Code,
		Name:      a.Name,
		Class:     a.Class,
		Source:    a.Source,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
