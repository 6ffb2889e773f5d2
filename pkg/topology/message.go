package topology

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentTypeJSON = "application/json"

// Message is the envelope carrying content, properties, and fields, per the
// data model. Content is always stored as bytes; string inputs are UTF-8
// encoded, anything else is JSON-encoded with properties["contentType"] set.
type Message struct {
	Content    []byte
	Properties Table
	Fields     Table

	// channel and rawMessage are populated by the consumer wrapper for
	// received messages, bridging Ack/Nack back to the delivery that
	// produced this Message. Both are nil for messages constructed by the
	// application to publish.
	channel    *ChannelWrapper
	rawMessage *amqp.Delivery
}

// NewMessage constructs a Message from an arbitrary payload using the same
// encoding rule as SetContent.
func NewMessage(content any) (*Message, error) {
	m := &Message{Properties: Table{}, Fields: Table{}}
	if err := m.SetContent(content); err != nil {
		return nil, err
	}

	return m, nil
}

// SetContent encodes content into m.Content. Strings are UTF-8 bytes, byte
// slices are stored as-is, and any other value is JSON-encoded with
// Properties["contentType"] set to application/json.
func (m *Message) SetContent(content any) error {
	switch v := content.(type) {
	case nil:
		m.Content = nil
	case string:
		m.Content = []byte(v)
	case []byte:
		m.Content = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("topology: failed to JSON-encode message content: %w", err)
		}

		m.Content = encoded
		if m.Properties == nil {
			m.Properties = Table{}
		}
		m.Properties["contentType"] = contentTypeJSON
	}

	return nil
}

// GetContent decodes m.Content the inverse of SetContent: UTF-8 text by
// default, or a parsed JSON value when Properties["contentType"] is
// application/json.
func (m *Message) GetContent() (any, error) {
	if ct, _ := m.Properties["contentType"].(string); ct == contentTypeJSON {
		var v any
		if err := json.Unmarshal(m.Content, &v); err != nil {
			return nil, fmt.Errorf("topology: failed to JSON-decode message content: %w", err)
		}

		return v, nil
	}

	return string(m.Content), nil
}

// Unmarshal decodes JSON content directly into target, convenient for
// callers that know the expected shape ahead of time.
func (m *Message) Unmarshal(target any) error {
	return json.Unmarshal(m.Content, target)
}

func (m *Message) toPublishing() amqp.Publishing {
	publishing := amqp.Publishing{
		Body:    m.Content,
		Headers: amqp.Table{},
	}

	for k, v := range m.Properties {
		switch k {
		case "contentType":
			publishing.ContentType = fmt.Sprint(v)
		case "contentEncoding":
			publishing.ContentEncoding = fmt.Sprint(v)
		case "correlationId":
			publishing.CorrelationId = fmt.Sprint(v)
		case "replyTo":
			publishing.ReplyTo = fmt.Sprint(v)
		case "messageId":
			publishing.MessageId = fmt.Sprint(v)
		case "persistent":
			if persistent, _ := v.(bool); persistent {
				publishing.DeliveryMode = amqp.Persistent
			}
		default:
			publishing.Headers[k] = v
		}
	}

	return publishing
}

func messageFromDelivery(d amqp.Delivery, ch *ChannelWrapper) *Message {
	props := Table{}
	if d.ContentType != "" {
		props["contentType"] = d.ContentType
	}
	if d.ContentEncoding != "" {
		props["contentEncoding"] = d.ContentEncoding
	}
	if d.CorrelationId != "" {
		props["correlationId"] = d.CorrelationId
	}
	if d.ReplyTo != "" {
		props["replyTo"] = d.ReplyTo
	}
	if d.MessageId != "" {
		props["messageId"] = d.MessageId
	}
	for k, v := range d.Headers {
		props[k] = v
	}

	fields := Table{
		"exchange":    d.Exchange,
		"routingKey":  d.RoutingKey,
		"deliveryTag": d.DeliveryTag,
		"redelivered": d.Redelivered,
		"consumerTag": d.ConsumerTag,
	}

	delivery := d

	return &Message{
		Content:    d.Body,
		Properties: props,
		Fields:     fields,
		channel:    ch,
		rawMessage: &delivery,
	}
}

// SendTo publishes m to destination, routing via the default exchange when
// destination is a Queue (exchange="", routingKey=queue.name) or via the
// exchange's own publish path otherwise.
func (m *Message) SendTo(ctx context.Context, destination Entity, routingKey string) error {
	switch dst := destination.(type) {
	case *Queue:
		return dst.publishViaDefaultExchange(ctx, m)
	case *Exchange:
		return dst.publish(ctx, m, routingKey, true)
	default:
		return fmt.Errorf("topology: unsupported publish destination type %T", destination)
	}
}

// Ack positively acknowledges a received message. No-op on messages that
// were never delivered by a consumer (channel/rawMessage unset).
func (m *Message) Ack(allUpTo bool) error {
	if m.channel == nil || m.rawMessage == nil {
		return nil
	}

	return m.rawMessage.Ack(allUpTo)
}

// Nack negatively acknowledges a received message. No-op on messages that
// were never delivered by a consumer.
func (m *Message) Nack(allUpTo, requeue bool) error {
	if m.channel == nil || m.rawMessage == nil {
		return nil
	}

	return m.rawMessage.Nack(allUpTo, requeue)
}
