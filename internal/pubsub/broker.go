package pubsub

import (
	"context"
	"errors"
)

// ErrBrokerClosed is returned by every broker operation after Close.
var ErrBrokerClosed = errors.New("pubsub: broker is closed")

// SubscriptionID identifies one registered handler.
type SubscriptionID string

// Message is a raw payload received on a channel.
type Message struct {
	Channel string
	Data    []byte
}

// Handler receives messages. Handlers for one subscription are called
// sequentially; a handler must not block for long, since it runs on the
// broker's receive goroutine. A handler that publishes must pass a bounded
// context: on InMemoryBroker a full queue is only drained by the goroutine
// the handler is blocking, so an unbounded Publish from a handler never
// returns.
type Handler func(Message)

// Broker is the transport the bus publishes through. Implementations include
// InMemoryBroker (single process), RedisBroker and KafkaBroker (multi
// process).
type Broker interface {
	// Publish delivers data to every current subscriber of channel, in any
	// process connected to the same transport.
	Publish(ctx context.Context, channel string, data []byte) error

	// Subscribe registers handler for channel. The subscription is live when
	// Subscribe returns.
	Subscribe(ctx context.Context, channel string, handler Handler) (SubscriptionID, error)

	// Unsubscribe removes a handler. Unknown or already removed IDs are
	// ignored.
	Unsubscribe(id SubscriptionID) error

	// Close releases connections and goroutines. After Close every other
	// method returns ErrBrokerClosed.
	Close() error
}
