package audit

import (
	"time"

	"gorm.io/datatypes"
)

type Log struct {
	ID         int64          `gorm:"primaryKey"`
	CompanyID  int64          `gorm:"column:company_id;not null;index"`
	ActorID    *int64         `gorm:"column:actor_id"`
	Action     string         `gorm:"column:action;size:64;not null"`
	EntityType string         `gorm:"column:entity_type;size:32;not null"`
	EntityID   int64          `gorm:"column:entity_id;not null"`
	Changes    datatypes.JSON `gorm:"column:changes"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Log) TableName() string {
	return "audit_logs"
}
