package websocket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestHub_Implements_EventPublisher(t *testing.T) {
	// Compile-time check that Hub implements EventPublisher
	var _ EventPublisher = (*Hub)(nil)
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub()
	billID := uuid.New()

	client := newMockClient("client-1", billID)
	hub.Register(client)

	var publisher EventPublisher = hub
	event := OperationApplied(map[string]interface{}{"id": float64(42)})
	publisher.Publish(billID, event)

	time.Sleep(10 * time.Millisecond)

	messages := client.GetMessages()
	assert.Len(t, messages, 1)
}

func TestNoOpPublisher_Publish(t *testing.T) {
	publisher := &NoOpPublisher{}

	assert.NotPanics(t, func() {
		event := OperationApplied(map[string]interface{}{"id": float64(1)})
		publisher.Publish(uuid.New(), event)
	})
}

func TestNoOpPublisher_Implements_EventPublisher(t *testing.T) {
	var _ EventPublisher = (*NoOpPublisher)(nil)
}
