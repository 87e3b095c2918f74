package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// ErrIteratorClosed is returned by Next once the iterator is closed and its
// queue is drained.
var ErrIteratorClosed = errors.New("pubsub: iterator closed")

// Iterator merges several channels into one sequence of envelopes. The queue
// is unbounded, so a slow reader never stalls the broker.
type Iterator struct {
	bus *Bus

	mu     sync.Mutex
	queue  []Envelope
	ids    []SubscriptionID
	closed bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// AsyncIterator subscribes to every channel and returns the merged sequence.
// Duplicate channels are subscribed once. The iterator is closed by Close or
// when ctx is cancelled.
func (b *Bus) AsyncIterator(ctx context.Context, channels ...Channel) (*Iterator, error) {
	b.mustBeInitialised()

	it := &Iterator{
		bus:    b,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if _, dup := seen[ch.channel]; dup {
			continue
		}
		seen[ch.channel] = struct{}{}

		id, err := b.broker.Subscribe(ctx, ch.channel, it.push)
		if err != nil {
			_ = it.Close()
			return nil, fmt.Errorf("subscribe %s: %w", ch.Name, err)
		}
		b.metrics.Subscribed.WithLabelValues(string(ch.Name)).Inc()

		it.mu.Lock()
		it.ids = append(it.ids, id)
		it.mu.Unlock()
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = it.Close()
		case <-it.done:
		}
	}()
	return it, nil
}

func (it *Iterator) push(msg Message) {
	env, err := decodeEnvelope(msg.Data)
	if err != nil {
		log.Warn().Err(err).Str("component", "pubsub").Str("channel", msg.Channel).Msg("dropping undecodable message")
		return
	}

	it.mu.Lock()
	if it.closed {
		it.mu.Unlock()
		return
	}
	it.queue = append(it.queue, env)
	it.mu.Unlock()

	select {
	case it.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an envelope is available, ctx is done or the iterator is
// closed.
func (it *Iterator) Next(ctx context.Context) (Envelope, error) {
	for {
		it.mu.Lock()
		if len(it.queue) > 0 {
			env := it.queue[0]
			it.queue[0] = Envelope{}
			it.queue = it.queue[1:]
			it.mu.Unlock()
			return env, nil
		}
		closed := it.closed
		it.mu.Unlock()

		if closed {
			return Envelope{}, ErrIteratorClosed
		}

		select {
		case <-it.notify:
		case <-it.done:
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// Close releases every subscription of the iterator. Envelopes already queued
// can still be read with Next.
func (it *Iterator) Close() error {
	it.closeOnce.Do(func() {
		it.mu.Lock()
		it.closed = true
		ids := it.ids
		it.ids = nil
		it.mu.Unlock()
		close(it.done)

		var result *multierror.Error
		for _, id := range ids {
			if err := it.bus.broker.Unsubscribe(id); err != nil {
				result = multierror.Append(result, err)
			}
		}
		it.closeErr = result.ErrorOrNil()
	})
	return it.closeErr
}
