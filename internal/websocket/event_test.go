package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_String(t *testing.T) {
	tests := []struct {
		name     string
		et       EventType
		expected string
	}{
		{"created", EventTypeCreated, "created"},
		{"updated", EventTypeUpdated, "updated"},
		{"deleted", EventTypeDeleted, "deleted"},
		{"applied", EventTypeApplied, "applied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.et))
		})
	}
}

func TestEntityType_String(t *testing.T) {
	tests := []struct {
		name     string
		et       EntityType
		expected string
	}{
		{"bill", EntityTypeBill, "bill"},
		{"operation", EntityTypeOperation, "operation"},
		{"settlement", EntityTypeSettlement, "settlement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.et))
		})
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"id":      1,
		"version": "4",
	}

	before := time.Now()
	evt := NewEvent(EventTypeUpdated, EntityTypeBill, payload)
	after := time.Now()

	assert.Equal(t, "bill.updated", evt.Type)
	assert.Equal(t, EntityTypeBill, evt.Entity)
	assert.Equal(t, payload, evt.Payload)
	assert.True(t, !evt.Timestamp.Before(before) && !evt.Timestamp.After(after))
}

func TestEvent_JSON_Serialization(t *testing.T) {
	fixedTime := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	payload := map[string]interface{}{
		"id":      float64(1),
		"version": float64(4),
	}

	evt := Event{
		Type:      "bill.updated",
		Entity:    EntityTypeBill,
		Payload:   payload,
		Timestamp: fixedTime,
	}

	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded Event
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, evt.Type, decoded.Type)
	assert.Equal(t, evt.Entity, decoded.Entity)
	assert.Equal(t, fixedTime.UTC(), decoded.Timestamp.UTC())

	decodedPayload, ok := decoded.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), decodedPayload["id"])
	assert.Equal(t, float64(4), decodedPayload["version"])
}

func TestEvent_ToJSON(t *testing.T) {
	payload := map[string]interface{}{
		"id": float64(42),
	}

	evt := NewEvent(EventTypeApplied, EntityTypeOperation, payload)

	data, err := evt.ToJSON()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	var decoded map[string]interface{}
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, "operation.applied", decoded["type"])
	assert.Equal(t, "operation", decoded["entity"])
	assert.NotNil(t, decoded["payload"])
	assert.NotNil(t, decoded["timestamp"])
}

func TestEventHelpers(t *testing.T) {
	payload := map[string]interface{}{"id": float64(1)}

	t.Run("BillUpdated", func(t *testing.T) {
		evt := BillUpdated(payload)
		assert.Equal(t, "bill.updated", evt.Type)
		assert.Equal(t, EntityTypeBill, evt.Entity)
		assert.Equal(t, payload, evt.Payload)
	})

	t.Run("OperationApplied", func(t *testing.T) {
		evt := OperationApplied(payload)
		assert.Equal(t, "operation.applied", evt.Type)
		assert.Equal(t, EntityTypeOperation, evt.Entity)
		assert.Equal(t, payload, evt.Payload)
	})

	t.Run("SettlementUpdated", func(t *testing.T) {
		evt := SettlementUpdated(payload)
		assert.Equal(t, "settlement.updated", evt.Type)
		assert.Equal(t, EntityTypeSettlement, evt.Entity)
		assert.Equal(t, payload, evt.Payload)
	})
}
