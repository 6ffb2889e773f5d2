package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestMessage_SetContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		content         any
		wantContentType string
	}{
		{name: "string", content: "hello", wantContentType: ""},
		{name: "bytes", content: []byte("hello"), wantContentType: ""},
		{name: "map", content: map[string]any{"key": "value"}, wantContentType: contentTypeJSON},
		{name: "nil", content: nil, wantContentType: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := NewMessage(tt.content)
			require.NoError(t, err)

			if tt.wantContentType != "" {
				assert.Equal(t, tt.wantContentType, msg.Properties["contentType"])
			} else {
				assert.NotContains(t, msg.Properties, "contentType")
			}
		})
	}
}

func TestMessage_GetContent_RoundTrip(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage(map[string]any{"id": "42"})
	require.NoError(t, err)

	got, err := msg.GetContent()
	require.NoError(t, err)

	decoded, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "42", decoded["id"])
}

func TestMessage_GetContent_PlainString(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage("hello world")
	require.NoError(t, err)

	got, err := msg.GetContent()
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestMessage_ToPublishing(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage("payload")
	require.NoError(t, err)
	msg.Properties["correlationId"] = "abc-123"
	msg.Properties["replyTo"] = replyToQueue
	msg.Properties["persistent"] = true
	msg.Properties["x-custom"] = "value"

	publishing := msg.toPublishing()

	assert.Equal(t, []byte("payload"), publishing.Body)
	assert.Equal(t, "abc-123", publishing.CorrelationId)
	assert.Equal(t, replyToQueue, publishing.ReplyTo)
	assert.Equal(t, amqp.Persistent, publishing.DeliveryMode)
	assert.Equal(t, "value", publishing.Headers["x-custom"])
}

func TestMessageFromDelivery(t *testing.T) {
	t.Parallel()

	d := amqp.Delivery{
		Body:          []byte("payload"),
		ContentType:   "text/plain",
		CorrelationId: "abc-123",
		Exchange:      "orders",
		RoutingKey:    "order.created",
		DeliveryTag:   7,
	}

	msg := messageFromDelivery(d, nil)

	assert.Equal(t, []byte("payload"), msg.Content)
	assert.Equal(t, "text/plain", msg.Properties["contentType"])
	assert.Equal(t, "orders", msg.Fields["exchange"])
	assert.Equal(t, "order.created", msg.Fields["routingKey"])
	assert.Equal(t, uint64(7), msg.Fields["deliveryTag"])
}

func TestMessage_Unmarshal(t *testing.T) {
	t.Parallel()

	msg := &Message{Content: []byte(`{"name":"test","age":25}`)}

	var result map[string]any
	require.NoError(t, msg.Unmarshal(&result))
	assert.Equal(t, "test", result["name"])
	assert.Equal(t, float64(25), result["age"])
}

func TestMessage_AckNack_NilDeliveryIsNoop(t *testing.T) {
	t.Parallel()

	msg := &Message{}
	assert.NoError(t, msg.Ack(false))
	assert.NoError(t, msg.Nack(false, true))
}
