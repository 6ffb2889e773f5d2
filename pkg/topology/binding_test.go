package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBinding_RejectsNilSource(t *testing.T) {
	t.Parallel()

	conn := NewConnection(Config{})
	q := newQueue("orders.created", QueueOptions{}, conn)

	_, err := newBinding(nil, q, "order.created.*", nil, conn)
	assert.ErrorIs(t, err, ErrInvalidBindingSource)
}

func TestNewBinding_RejectsInvalidDestination(t *testing.T) {
	t.Parallel()

	conn := NewConnection(Config{})
	ex := newExchange("orders", "topic", ExchangeOptions{}, conn)

	_, err := newBinding(ex, nil, "order.created.*", nil, conn)
	assert.ErrorIs(t, err, ErrInvalidBinding)
}

func TestBindingID_DiscriminatesQueueAndExchangeDestinations(t *testing.T) {
	t.Parallel()

	conn := NewConnection(Config{})
	ex := newExchange("audit", "fanout", ExchangeOptions{}, conn)
	q := newQueue("audit", QueueOptions{}, conn)

	queueID := bindingID(q, "orders", "#")
	exchangeID := bindingID(ex, "orders", "#")

	assert.NotEqual(t, queueID, exchangeID)
}

func TestNewBinding_ID(t *testing.T) {
	t.Parallel()

	conn := NewConnection(Config{})
	ex := newExchange("orders", "topic", ExchangeOptions{}, conn)
	q := newQueue("orders.created", QueueOptions{}, conn)

	b, err := newBinding(ex, q, "order.created.*", nil, conn)
	require.NoError(t, err)
	assert.Equal(t, "queue:orders.created<-orders:order.created.*", b.id())
}
