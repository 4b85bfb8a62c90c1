package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event (created, updated, deleted)
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
	EventTypeApplied EventType = "applied"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeBill       EntityType = "bill"
	EntityTypeOperation  EntityType = "operation"
	EntityTypeSettlement EntityType = "settlement"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "bill.updated"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "bill"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// BillUpdated creates a bill.updated event, published after any commit that
// advances the bill's version.
func BillUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeBill, payload)
}

// OperationApplied creates an operation.applied event, announcing one
// accepted operation log entry to every other connected client so they can
// append it locally instead of waiting for a full re-sync.
func OperationApplied(payload interface{}) Event {
	return NewEvent(EventTypeApplied, EntityTypeOperation, payload)
}

// SettlementUpdated creates a settlement.updated event, published whenever
// a settled-transfer flag changes.
func SettlementUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeSettlement, payload)
}
