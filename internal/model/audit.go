package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is the payload emitted to the external audit sink on
// every state-changing operation. The core does not own its storage.
type AuditEvent struct {
	ID         uuid.UUID       `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Action     string          `json:"action"`
	OldStatus  string          `json:"old_status,omitempty"`
	NewStatus  string          `json:"new_status,omitempty"`
	Actor      string          `json:"actor"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

const (
	// Action types
	AuditActionBook       = "book"
	AuditActionTransition = "transition"
	AuditActionReschedule = "reschedule"
	AuditActionBill       = "bill"
	AuditActionPayment    = "payment"

	// Entity types
	AuditEntityAppointment = "appointment"
	AuditEntityBill        = "bill"
)
