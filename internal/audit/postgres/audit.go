package postgres

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/frahmantamala/bookkeeping/internal/audit"
	dmaudit "github.com/frahmantamala/bookkeeping/internal/core/datamodel/audit"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, e *audit.Entry) error {
	row := dmaudit.Log{
		CompanyID:  e.CompanyID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		CreatedAt:  e.CreatedAt,
	}
	if e.Changes != nil {
		raw, err := json.Marshal(e.Changes)
		if err != nil {
			return err
		}
		row.Changes = datatypes.JSON(raw)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	e.ID = row.ID
	e.CreatedAt = row.CreatedAt
	return nil
}

func (r *Repository) List(ctx context.Context, companyID int64, f audit.Filter) ([]*audit.Entry, error) {
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	var rows []dmaudit.Log
	if err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*audit.Entry, 0, len(rows))
	for _, row := range rows {
		e := &audit.Entry{
			ID:         row.ID,
			CompanyID:  row.CompanyID,
			ActorID:    row.ActorID,
			Action:     row.Action,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			CreatedAt:  row.CreatedAt,
		}
		if len(row.Changes) > 0 {
			_ = json.Unmarshal(row.Changes, &e.Changes)
		}
		out = append(out, e)
	}
	return out, nil
}
