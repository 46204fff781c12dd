package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	// blocking hook, a handler error vetoes the create
	EventTypeTransactionBeforeCreate = "transaction.before_create"

	EventTypeTransactionCreated        = "transaction.created"
	EventTypeTransactionUpdated        = "transaction.updated"
	EventTypeTransactionDeleted        = "transaction.deleted"
	EventTypeTransactionStatusChanged  = "transaction.status_changed"
	EventTypeTransactionApprovalChange = "transaction.approval_changed"

	EventTypeSettlementSettled  = "settlement.settled"
	EventTypeSettlementReversed = "settlement.reversed"

	EventTypeReimbursementSubmitted = "reimbursement.submitted"
	EventTypeReimbursementFlagged   = "reimbursement.flagged"
	EventTypeReimbursementApproved  = "reimbursement.approved"
	EventTypeReimbursementRejected  = "reimbursement.rejected"
	EventTypeReimbursementPaid      = "reimbursement.paid"

	EventTypeAccountsImported = "accounts.imported"
)

// AuditedEventTypes are the mutations persisted to the audit trail.
var AuditedEventTypes = []string{
	EventTypeTransactionCreated,
	EventTypeTransactionUpdated,
	EventTypeTransactionDeleted,
	EventTypeTransactionStatusChanged,
	EventTypeTransactionApprovalChange,
	EventTypeSettlementSettled,
	EventTypeSettlementReversed,
	EventTypeReimbursementSubmitted,
	EventTypeReimbursementFlagged,
	EventTypeReimbursementApproved,
	EventTypeReimbursementRejected,
	EventTypeReimbursementPaid,
	EventTypeAccountsImported,
}

// DomainEvent describes one mutation of one entity.
type DomainEvent struct {
	BaseEvent
	CompanyID  int64  `json:"company_id"`
	ActorID    *int64 `json:"actor_id,omitempty"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
}

func NewDomainEvent(eventType string, companyID int64, actorID *int64, entityType string, entityID int64, data map[string]interface{}) *DomainEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &DomainEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Data:      data,
		},
		CompanyID:  companyID,
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
	}
}

// Actor is a small helper for the common case of a known user id.
func Actor(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

// BeforeCreateEvent carries a draft that hooks may inspect and veto.
type BeforeCreateEvent struct {
	BaseEvent
	CompanyID int64       `json:"company_id"`
	ActorID   int64       `json:"actor_id"`
	Draft     interface{} `json:"draft"`
}

func NewBeforeCreateEvent(companyID, actorID int64, txnType string, draft interface{}) *BeforeCreateEvent {
	return &BeforeCreateEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypeTransactionBeforeCreate,
			Timestamp: time.Now().UTC(),
			Data:      map[string]interface{}{"type": txnType},
		},
		CompanyID: companyID,
		ActorID:   actorID,
		Draft:     draft,
	}
}
