package pubsub

import (
	"context"
	"sync"
)

// inMemoryQueueSize is how many published messages wait for dispatch before
// Publish blocks.
const inMemoryQueueSize = 1024

// InMemoryBroker is a single-process Broker backed by a Go channel. It is
// used in tests and single-node deployments.
type InMemoryBroker struct {
	mu      sync.RWMutex
	closed  bool
	subs    *subscriptionTable
	eventCh chan Message
	done    chan struct{}
}

// NewInMemoryBroker creates and starts an InMemoryBroker. The broker starts a
// background goroutine to dispatch messages; call Close() to stop it.
func NewInMemoryBroker() *InMemoryBroker {
	b := &InMemoryBroker{
		subs:    newSubscriptionTable(),
		eventCh: make(chan Message, inMemoryQueueSize),
		done:    make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Publish enqueues data for asynchronous delivery. It only blocks when the
// dispatch queue is full.
func (b *InMemoryBroker) Publish(ctx context.Context, channel string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	select {
	case b.eventCh <- Message{Channel: channel, Data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryBroker) Subscribe(_ context.Context, channel string, handler Handler) (SubscriptionID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", ErrBrokerClosed
	}
	id, _ := b.subs.add(channel, handler)
	return id, nil
}

func (b *InMemoryBroker) Unsubscribe(id SubscriptionID) error {
	b.subs.remove(id)
	return nil
}

// Close stops accepting messages, drains what was already queued and waits
// for the dispatch goroutine to exit.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.eventCh)
	b.mu.Unlock()

	<-b.done
	return nil
}

func (b *InMemoryBroker) dispatch() {
	defer close(b.done)

	for msg := range b.eventCh {
		b.subs.dispatch(msg)
	}
}
