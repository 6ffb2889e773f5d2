package topology

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the taxonomy from spec.md §7. Connection-level
// failures (ConnectionExhausted) escalate to the supervisor; per-entity
// failures (AssertionFailed) are isolated to that entity's readiness.
var (
	// ErrConnectionExhausted is surfaced through Connection.Initialized when
	// the retry budget configured via ReconnectStrategy.Retries is spent.
	ErrConnectionExhausted = errors.New("topology: reconnect attempts exhausted")

	// ErrInvalidBinding is returned when a declared binding names neither a
	// queue nor an exchange as its destination.
	ErrInvalidBinding = errors.New("topology: binding has neither queue nor exchange destination")

	// ErrInvalidBindingSource is returned when a Binding is constructed with
	// a non-Exchange source.
	ErrInvalidBindingSource = errors.New("topology: binding source must be an exchange")

	// ErrBindingNotFound is returned by Unbind when no matching binding is
	// registered.
	ErrBindingNotFound = errors.New("topology: no such binding registered")

	// ErrConnectionClosing is returned when a channel is requested (for a
	// declaration or a rebuild) after Close has been called.
	ErrConnectionClosing = errors.New("topology: connection is closing")

	// ErrEntityDeleted is returned to callers waiting on an entity whose
	// readiness latch has been cleared by its close.
	ErrEntityDeleted = errors.New("topology: entity has been deleted")
)

// AssertionFailedError wraps a broker-rejected declaration (exchange, queue,
// or binding). The entity is removed from the registry and its readiness
// rejects with this error; the connection itself remains up.
type AssertionFailedError struct {
	Kind  string // "exchange", "queue", or "binding"
	Name  string
	Cause error
}

func (e *AssertionFailedError) Error() string {
	return fmt.Sprintf("topology: %s %q assertion failed: %s", e.Kind, e.Name, e.Cause)
}

func (e *AssertionFailedError) Unwrap() error {
	return e.Cause
}

// PublishFailedError wraps a synchronous publish error that triggered a
// rebuild and a single retransmission attempt.
type PublishFailedError struct {
	Exchange   string
	RoutingKey string
	Cause      error
}

func (e *PublishFailedError) Error() string {
	return fmt.Sprintf("topology: publish to exchange %q (key %q) failed: %s", e.Exchange, e.RoutingKey, e.Cause)
}

func (e *PublishFailedError) Unwrap() error {
	return e.Cause
}

// ConsumerError wraps a user message-handler failure. It is logged by the
// consumer wrapper but never automatically nacks the delivery — ack/nack
// remains the caller's responsibility.
type ConsumerError struct {
	Queue string
	Cause error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("topology: consumer callback for queue %q failed: %s", e.Queue, e.Cause)
}

func (e *ConsumerError) Unwrap() error {
	return e.Cause
}
