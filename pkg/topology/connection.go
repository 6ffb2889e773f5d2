package topology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpConnection is the slice of amqp091-go.Connection this package depends
// on, narrowed for the same reason amqpChannel is: it lets tests substitute
// a mock instead of dialing a real broker.
type amqpConnection interface {
	Channel() (*amqp.Channel, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

// dialFunc opens a new broker connection. Overridable in tests.
type dialFunc func(url string, cfg amqp.Config) (amqpConnection, error)

func defaultDial(url string, cfg amqp.Config) (amqpConnection, error) {
	return amqp.DialConfig(url, cfg)
}

// DialBreaker wraps a single dial attempt, letting callers plug in a
// circuit breaker (e.g. sony/gobreaker) around reconnect attempts without
// this package depending on one directly.
type DialBreaker interface {
	Execute(func() error) error
}

// Connection supervises a single broker connection: it dials, watches for
// closure, and on loss retries per ReconnectStrategy and rebuilds every
// exchange, queue, and binding it has been asked to declare, per
// spec.md §4.1 and §6.
type Connection struct {
	cfg  Config
	opts connectionOptions
	dial dialFunc

	// openChannel is indirected so tests can substitute a mock amqpChannel
	// without dialing a real broker; amqpConnection.Channel() returns the
	// concrete *amqp.Channel type amqp091-go hands back, which this seam
	// narrows to the amqpChannel interface the rest of the package uses.
	openChannel func(amqpConnection) (amqpChannel, error)

	mu      sync.Mutex
	conn    amqpConnection
	closing bool

	// rebuildCtx bounds connectWithRetry's background retry loop. Close
	// cancels it so a rebuild stuck retrying against an unreachable broker
	// doesn't keep Close waiting on a latch that would otherwise never
	// resolve.
	rebuildCtx    context.Context
	cancelRebuild context.CancelFunc

	// generation increments on every successful (re)connect. triggerRebuild
	// captures the generation in effect when it observed a failure; a
	// rebuild that starts only to find the generation has already moved on
	// (another caller beat it to the reconnect) exits without redialing,
	// resolving spec.md §9's first open question.
	generation uint64
	rebuilding atomic.Bool

	initialized *latch

	registryMu sync.Mutex
	exchanges  map[string]*Exchange
	queues     map[string]*Queue
	bindings   map[string]*Binding
}

// NewConnection constructs a Connection from cfg. Call Start to dial and
// begin supervision; entities may be declared before Start returns, but
// their readiness latches will not resolve until the first connect
// succeeds.
func NewConnection(cfg Config, opts ...ConnectionOption) *Connection {
	o := defaultConnectionOptions()
	for _, opt := range opts {
		opt(&o)
	}

	rebuildCtx, cancelRebuild := context.WithCancel(context.Background())

	return &Connection{
		cfg:           cfg,
		opts:          o,
		dial:          defaultDial,
		openChannel:   defaultOpenChannel,
		initialized:   newLatch(),
		rebuildCtx:    rebuildCtx,
		cancelRebuild: cancelRebuild,
		exchanges:     make(map[string]*Exchange),
		queues:        make(map[string]*Queue),
		bindings:      make(map[string]*Binding),
	}
}

func defaultOpenChannel(conn amqpConnection) (amqpChannel, error) {
	ch, err := conn.Channel()

	return ch, err
}

func (c *Connection) logger() Logger {
	return c.opts.logger
}

func (c *Connection) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation
}

// Initialized returns a channel closed once the connection's current
// incarnation is up and every previously-registered entity has finished its
// rebuild attempt.
func (c *Connection) Initialized() <-chan struct{} {
	c.mu.Lock()
	l := c.initialized
	c.mu.Unlock()

	return l.done
}

func (c *Connection) waitConnected(ctx context.Context) error {
	c.mu.Lock()
	l := c.initialized
	c.mu.Unlock()

	return l.wait(ctx)
}

// Start dials the broker (retrying per ReconnectStrategy), installs the
// close watchdog, and blocks until the initial connect succeeds or the
// retry budget is exhausted.
func (c *Connection) Start(ctx context.Context) error {
	conn, err := c.connectWithRetry(ctx)
	if err != nil {
		c.initialized.resolve(ErrConnectionExhausted)

		return ErrConnectionExhausted
	}

	c.mu.Lock()
	c.conn = conn
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.watch(conn, gen)
	c.initialized.resolve(nil)

	return nil
}

// connectWithRetry dials until it succeeds, the context is canceled, or the
// retry budget is spent. With Retries=N>0 it makes exactly N+1 attempts (the
// initial attempt plus N retries) before giving up, per spec.md §8's
// property 8 and scenario S4. Retries=0 retries indefinitely.
func (c *Connection) connectWithRetry(ctx context.Context) (amqpConnection, error) {
	strategy := c.cfg.ReconnectStrategy

	attempt := 0
	for {
		attempt++

		conn, err := c.dialOnce()
		if err == nil {
			return conn, nil
		}

		c.logger().Warn().Err(err).Msg("topology: dial attempt failed")

		if strategy.Retries > 0 && attempt > strategy.Retries {
			return nil, err
		}

		select {
		case <-time.After(strategy.interval()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Connection) dialOnce() (amqpConnection, error) {
	if c.opts.breaker == nil {
		return c.dial(c.cfg.url(), c.cfg.SocketOptions.toAMQPConfig())
	}

	var conn amqpConnection
	err := c.opts.breaker.Execute(func() error {
		var dialErr error
		conn, dialErr = c.dial(c.cfg.url(), c.cfg.SocketOptions.toAMQPConfig())

		return dialErr
	})

	return conn, err
}

// watch installs the broker-close notification and, on an unexpected
// closure, triggers a rebuild.
func (c *Connection) watch(conn amqpConnection, gen uint64) {
	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		amqpErr := <-closeCh

		c.mu.Lock()
		closingNow := c.closing
		c.mu.Unlock()

		if closingNow {
			return
		}

		var cause error
		if amqpErr != nil {
			cause = amqpErr
		} else {
			cause = errors.New("topology: connection closed")
		}

		c.triggerRebuild(gen, cause)
	}()
}

// triggerRebuild starts a reconnect-and-rebuild cycle if one is not already
// in flight and observedGen still matches the connection's current
// generation (an earlier failure on a connection that has since been
// replaced is a stale signal and is dropped).
func (c *Connection) triggerRebuild(observedGen uint64, cause error) {
	c.mu.Lock()
	if c.closing || c.generation != observedGen {
		c.mu.Unlock()

		return
	}
	c.mu.Unlock()

	if !c.rebuilding.CompareAndSwap(false, true) {
		return
	}

	go c.rebuildLoop(observedGen, cause)
}

func (c *Connection) rebuildLoop(observedGen uint64, cause error) {
	defer c.rebuilding.Store(false)

	c.logger().Error().Err(cause).Msg("topology: connection lost, rebuilding")

	c.mu.Lock()
	if c.generation != observedGen {
		c.mu.Unlock()

		return
	}

	newInit := newLatch()
	c.initialized = newInit
	c.mu.Unlock()

	conn, err := c.connectWithRetry(c.rebuildCtx)
	if err != nil {
		newInit.resolve(ErrConnectionExhausted)

		return
	}

	c.mu.Lock()
	c.conn = conn
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.watch(conn, gen)
	c.rebuildAll(c.rebuildCtx)
	newInit.resolve(nil)
}

// rebuildAll re-initializes every registered exchange, queue, and binding on
// the fresh connection, in dependency order: exchanges and queues first (so
// their channels and consumers exist), then bindings (which wait on both
// endpoints anyway, but declaring in this order avoids needless waiting).
func (c *Connection) rebuildAll(ctx context.Context) {
	c.registryMu.Lock()
	exchanges := make([]*Exchange, 0, len(c.exchanges))
	for _, ex := range c.exchanges {
		exchanges = append(exchanges, ex)
	}
	queues := make([]*Queue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	bindings := make([]*Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		bindings = append(bindings, b)
	}
	c.registryMu.Unlock()

	for _, ex := range exchanges {
		if err := ex.initialize(ctx); err != nil {
			c.logger().Error().Err(err).Str("exchange", ex.Name()).Msg("topology: exchange rebuild failed")
		}
	}

	for _, q := range queues {
		if err := q.initialize(ctx); err != nil {
			c.logger().Error().Err(err).Str("queue", q.Name()).Msg("topology: queue rebuild failed")
		}
	}

	for _, b := range bindings {
		if err := b.initialize(ctx); err != nil {
			c.logger().Error().Err(err).Str("binding", b.id()).Msg("topology: binding rebuild failed")
		}
	}
}

func (c *Connection) newChannel(logger Logger) (*ChannelWrapper, error) {
	c.mu.Lock()
	conn := c.conn
	closing := c.closing
	c.mu.Unlock()

	if closing {
		return nil, ErrConnectionClosing
	}

	if conn == nil {
		return nil, fmt.Errorf("topology: connection not established")
	}

	ch, err := c.openChannel(conn)
	if err != nil {
		return nil, fmt.Errorf("topology: failed to open channel: %w", err)
	}

	return newChannelWrapper(ch, logger), nil
}

// DeclareExchange registers and declares an exchange, waiting first for the
// connection to be established. If an exchange with this name is already
// registered, it is returned unchanged — kind and opts are ignored on the
// second call, per spec.md §4.1's "first declaration wins".
func (c *Connection) DeclareExchange(ctx context.Context, name, kind string, opts ExchangeOptions) (*Exchange, error) {
	if err := c.waitConnected(ctx); err != nil {
		return nil, err
	}

	c.registryMu.Lock()
	if existing, ok := c.exchanges[name]; ok {
		c.registryMu.Unlock()

		return existing, nil
	}

	ex := newExchange(name, kind, opts, c)
	c.exchanges[name] = ex
	c.registryMu.Unlock()

	if err := ex.initialize(ctx); err != nil {
		return ex, err
	}

	return ex, nil
}

// DeclareQueue registers and declares a queue, waiting first for the
// connection to be established. If a queue with this name is already
// registered, it is returned unchanged — opts are ignored on the second
// call, per spec.md §4.1's "first declaration wins".
func (c *Connection) DeclareQueue(ctx context.Context, name string, opts QueueOptions) (*Queue, error) {
	if err := c.waitConnected(ctx); err != nil {
		return nil, err
	}

	c.registryMu.Lock()
	if existing, ok := c.queues[name]; ok {
		c.registryMu.Unlock()

		return existing, nil
	}

	q := newQueue(name, opts, c)
	c.queues[name] = q
	c.registryMu.Unlock()

	if err := q.initialize(ctx); err != nil {
		return q, err
	}

	return q, nil
}

// TopologySpec declares a full topology in one call: every listed exchange
// and queue, then every binding (each naming its source exchange and either
// a destination queue or a destination exchange), per spec.md §4.1's
// declareTopology.
type TopologySpec struct {
	Exchanges []ExchangeSpec
	Queues    []QueueSpec
	Bindings  []BindingSpec
}

// ExchangeSpec names one exchange to declare as part of a TopologySpec.
type ExchangeSpec struct {
	Name    string
	Kind    string
	Options ExchangeOptions
}

// QueueSpec names one queue to declare as part of a TopologySpec.
type QueueSpec struct {
	Name    string
	Options QueueOptions
}

// BindingSpec names one binding to declare as part of a TopologySpec.
// Exactly one of Queue or Exchange must be set; a spec with neither fails
// the whole DeclareTopology call with ErrInvalidBinding.
type BindingSpec struct {
	Source   string
	Queue    string
	Exchange string
	Pattern  string
	Args     Table
}

// DeclareTopology declares every exchange and queue in spec, then every
// binding, resolving once all of them have finished declaring. Declaration
// order within the exchange/queue lists doesn't matter; each is idempotent.
func (c *Connection) DeclareTopology(ctx context.Context, spec TopologySpec) error {
	for _, es := range spec.Exchanges {
		if _, err := c.DeclareExchange(ctx, es.Name, es.Kind, es.Options); err != nil {
			return err
		}
	}

	for _, qs := range spec.Queues {
		if _, err := c.DeclareQueue(ctx, qs.Name, qs.Options); err != nil {
			return err
		}
	}

	for _, bs := range spec.Bindings {
		if bs.Queue == "" && bs.Exchange == "" {
			return ErrInvalidBinding
		}

		source, err := c.DeclareExchange(ctx, bs.Source, "", ExchangeOptions{NoCreate: true})
		if err != nil {
			return err
		}

		var destination Entity
		if bs.Queue != "" {
			destination, err = c.DeclareQueue(ctx, bs.Queue, QueueOptions{NoCreate: true})
		} else {
			destination, err = c.DeclareExchange(ctx, bs.Exchange, "", ExchangeOptions{NoCreate: true})
		}
		if err != nil {
			return err
		}

		if _, err := c.bind(ctx, source, destination, bs.Pattern, bs.Args); err != nil {
			return err
		}
	}

	return c.CompleteConfiguration(ctx)
}

func (c *Connection) bind(ctx context.Context, source *Exchange, destination Entity, pattern string, args Table) (*Binding, error) {
	b, err := newBinding(source, destination, pattern, args, c)
	if err != nil {
		return nil, err
	}

	c.registryMu.Lock()
	c.bindings[b.id()] = b
	c.registryMu.Unlock()

	if err := b.initialize(ctx); err != nil {
		return b, err
	}

	return b, nil
}

func (c *Connection) unbind(ctx context.Context, source *Exchange, destination Entity, pattern string) error {
	id := bindingID(destination, source.Name(), pattern)

	c.registryMu.Lock()
	b, ok := c.bindings[id]
	if ok {
		delete(c.bindings, id)
	}
	c.registryMu.Unlock()

	if !ok {
		return ErrBindingNotFound
	}

	return b.delete(ctx)
}

func (c *Connection) forgetExchange(name string) {
	c.registryMu.Lock()
	delete(c.exchanges, name)
	c.registryMu.Unlock()
}

func (c *Connection) forgetQueue(name string) {
	c.registryMu.Lock()
	delete(c.queues, name)
	c.registryMu.Unlock()
}

func (c *Connection) forgetBinding(id string) {
	c.registryMu.Lock()
	delete(c.bindings, id)
	c.registryMu.Unlock()
}

// removeBindingsContaining drops every registered binding naming entityName
// as source or destination, called when that entity is deleted. The broker
// already discards the binding itself when either endpoint disappears; this
// only keeps the in-process registry in sync.
func (c *Connection) removeBindingsContaining(entityName string) {
	c.registryMu.Lock()
	defer c.registryMu.Unlock()

	for id, b := range c.bindings {
		if b.source.Name() == entityName || b.destination.Name() == entityName {
			delete(c.bindings, id)
		}
	}
}

// CompleteConfiguration blocks until every currently registered exchange,
// queue, and binding has finished its (re)declaration, or ctx is canceled.
func (c *Connection) CompleteConfiguration(ctx context.Context) error {
	c.registryMu.Lock()
	exchanges := make([]*Exchange, 0, len(c.exchanges))
	for _, ex := range c.exchanges {
		exchanges = append(exchanges, ex)
	}
	queues := make([]*Queue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	bindings := make([]*Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		bindings = append(bindings, b)
	}
	c.registryMu.Unlock()

	for _, ex := range exchanges {
		if err := ex.waitReady(ctx); err != nil {
			return err
		}
	}

	for _, q := range queues {
		if err := q.waitReady(ctx); err != nil {
			return err
		}
	}

	for _, b := range bindings {
		select {
		case <-b.Initialized():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// DeleteConfiguration tears down every registered binding, then queue, then
// exchange, in that order, and clears the registries.
func (c *Connection) DeleteConfiguration(ctx context.Context) error {
	c.registryMu.Lock()
	bindings := make([]*Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		bindings = append(bindings, b)
	}
	queues := make([]*Queue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	exchanges := make([]*Exchange, 0, len(c.exchanges))
	for _, ex := range c.exchanges {
		exchanges = append(exchanges, ex)
	}
	c.registryMu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, b := range bindings {
		record(b.delete(ctx))
	}
	for _, q := range queues {
		record(q.delete(ctx))
	}
	for _, ex := range exchanges {
		record(ex.delete(ctx))
	}

	return firstErr
}

// Close marks the connection as shutting down, closes every entity's
// channel (without deleting broker-side state), and closes the broker
// connection itself. Close is idempotent.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()

		return nil
	}
	c.closing = true
	conn := c.conn
	initialized := c.initialized
	c.mu.Unlock()

	// Unblock a rebuild stuck retrying against an unreachable broker so its
	// latch resolves instead of leaving the wait below with nothing but
	// ctx to bound it.
	c.cancelRebuild()
	_ = initialized.wait(ctx)

	c.registryMu.Lock()
	exchanges := make([]*Exchange, 0, len(c.exchanges))
	for _, ex := range c.exchanges {
		exchanges = append(exchanges, ex)
	}
	queues := make([]*Queue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.registryMu.Unlock()

	for _, ex := range exchanges {
		_ = ex.close(ctx)
	}
	for _, q := range queues {
		_ = q.close(ctx)
	}

	if conn == nil {
		return nil
	}

	return conn.Close()
}
