package account

import "time"

type Account struct {
	ID        int64     `gorm:"primaryKey"`
	CompanyID int64     `gorm:"column:company_id;not null;uniqueIndex:idx_accounts_company_code"`
	Code      string    `gorm:"column:code;size:32;not null;uniqueIndex:idx_accounts_company_code"`
	Name      string    `gorm:"column:name;not null"`
	Class     string    `gorm:"column:class;size:16;not null"`
	Source    string    `gorm:"column:source;size:16;not null"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
