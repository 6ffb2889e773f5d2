package topology

import (
	"context"
	"sync"
)

// Entity is the shared contract for anything the Connection owns and
// rebuilds: Exchange and Queue. It is the Go rendering of the spec's
// "dynamic polymorphism over Node" — a narrow interface plus a tagged
// switch in the two places that actually need to discriminate
// (Message.sendTo and Binding's destination handling), per DESIGN NOTES §9.
type Entity interface {
	Name() string
	Initialized() <-chan struct{}
	Deleting() <-chan struct{}
	Closing() <-chan struct{}

	initialize(ctx context.Context) error
	delete(ctx context.Context) error
	close(ctx context.Context) error
}

// node is the shared skeleton embedded by Exchange and Queue. It owns the
// readiness/terminal latches and the exclusive channel for the current
// incarnation. Connection owns the node; the node holds only a
// non-owning back-reference, per DESIGN NOTES §9's cyclic-reference fix.
type node struct {
	mu sync.Mutex

	name       string
	connection *Connection
	ch         *ChannelWrapper

	initialized *latch // replaced on every (re)initialize
	deleting    *latch // set once, by delete()
	closing     *latch // set once, by close()
}

func newNode(name string, conn *Connection) node {
	return node{
		name:        name,
		connection:  conn,
		initialized: newLatch(),
	}
}

func (n *node) Name() string { return n.name }

func (n *node) Initialized() <-chan struct{} {
	n.mu.Lock()
	l := n.initialized
	n.mu.Unlock()

	if l == nil {
		closed := make(chan struct{})
		close(closed)

		return closed
	}

	return l.done
}

func (n *node) Deleting() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.deleting == nil {
		return nil
	}

	return n.deleting.done
}

func (n *node) Closing() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closing == nil {
		return nil
	}

	return n.closing.done
}

// freshIncarnation installs a new readiness latch and a new channel,
// returning the latch so the caller can resolve it once assertion finishes.
// Called at the start of initialize() on first declaration and on every
// rebuild.
func (n *node) freshIncarnation(ch *ChannelWrapper) *latch {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.ch = ch
	n.initialized = newLatch()

	return n.initialized
}

func (n *node) channel() *ChannelWrapper {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.ch
}

// beginDeleting installs the deleting latch if one isn't already present,
// returning (latch, alreadyInFlight). Both delete() and close() must be
// idempotent: once the corresponding latch exists, repeat calls return it
// unchanged rather than racing a second teardown.
func (n *node) beginDeleting() (*latch, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.deleting != nil {
		return n.deleting, true
	}

	n.deleting = newLatch()

	return n.deleting, false
}

func (n *node) beginClosing() (*latch, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closing != nil {
		return n.closing, true
	}

	n.closing = newLatch()

	return n.closing, false
}

// waitReady blocks until the node's current incarnation becomes ready,
// returning ErrEntityDeleted if the node was torn down while waiting and
// ctx.Err() if ctx is canceled first.
func (n *node) waitReady(ctx context.Context) error {
	select {
	case <-n.Initialized():
	case <-ctx.Done():
		return ctx.Err()
	}

	n.mu.Lock()
	l := n.initialized
	n.mu.Unlock()

	if l == nil {
		return ErrEntityDeleted
	}

	return l.wait(ctx)
}

// clearInitialized drops the latch reference on teardown. Concurrent
// awaiters already holding the previous latch value see it through to
// completion (they captured the channel, not the node); new callers
// synchronously observe "not ready", per spec.md §9's second open question.
func (n *node) clearInitialized() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.initialized = nil
	n.ch = nil
}
