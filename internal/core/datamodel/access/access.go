package access

import (
	"time"

	"gorm.io/datatypes"
)

type Company struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	TaxID     string    `gorm:"column:tax_id;size:13"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Company) TableName() string {
	return "companies"
}

type CompanyAccess struct {
	ID          int64                       `gorm:"primaryKey"`
	UserID      int64                       `gorm:"column:user_id;not null;uniqueIndex:idx_company_access_user_company"`
	CompanyID   int64                       `gorm:"column:company_id;not null;uniqueIndex:idx_company_access_user_company"`
	IsOwner     bool                        `gorm:"column:is_owner;not null;default:false"`
	Permissions datatypes.JSONSlice[string] `gorm:"column:permissions"`
	Role        *string                     `gorm:"column:role;size:16"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (CompanyAccess) TableName() string {
	return "company_accesses"
}
