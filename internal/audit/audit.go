// Package audit persists a change record for every domain mutation.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/frahmantamala/bookkeeping/internal/core/events"
)

type Entry struct {
	ID         int64                  `json:"id"`
	CompanyID  int64                  `json:"company_id"`
	ActorID    *int64                 `json:"actor_id,omitempty"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   int64                  `json:"entity_id"`
	Changes    map[string]interface{} `json:"changes,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, companyID int64, f Filter) ([]*Entry, error)
}

type Filter struct {
	EntityType string
	EntityID   int64
	Limit      int
	Offset     int
}

type Logger struct {
	repo   Repository
	logger *slog.Logger
}

func NewLogger(repo Repository, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, logger: logger}
}

// Record never fails the caller; a lost audit row is logged instead.
func (l *Logger) Record(ctx context.Context, e Entry) {
	if err := l.repo.Insert(ctx, &e); err != nil {
		l.logger.ErrorContext(ctx, "failed to write audit log",
			"error", err,
			"company_id", e.CompanyID,
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID)
	}
}

func (l *Logger) List(ctx context.Context, companyID int64, f Filter) ([]*Entry, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	return l.repo.List(ctx, companyID, f)
}

// Subscribe attaches the logger to every audited event type.
func (l *Logger) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(events.AuditedEventTypes, l.handle)
}

func (l *Logger) handle(ctx context.Context, ev events.Event) error {
	de, ok := ev.(*events.DomainEvent)
	if !ok {
		l.logger.WarnContext(ctx, "audit skipped non-domain event", "event_type", ev.EventType())
		return nil
	}
	l.Record(ctx, Entry{
		CompanyID:  de.CompanyID,
		ActorID:    de.ActorID,
		Action:     de.Type,
		EntityType: de.EntityType,
		EntityID:   de.EntityID,
		Changes:    normalize(de.Data),
		CreatedAt:  de.Timestamp,
	})
	return nil
}

// normalize turns typed payload values (decimals, times) into their JSON form.
func normalize(data map[string]interface{}) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]interface{}{"_error": err.Error()}
	}
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}
