package pubsub

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Bus is the typed event bus. One Bus is built per process and handed to
// every component that publishes or subscribes.
type Bus struct {
	broker  Broker
	metrics *Metrics
}

// NewBus wraps broker. A nil metrics gets unregistered counters.
func NewBus(broker Broker, metrics *Metrics) *Bus {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Bus{broker: broker, metrics: metrics}
}

func (b *Bus) mustBeInitialised() {
	if b == nil || b.broker == nil {
		panic("pubsub: bus used before initialisation")
	}
}

// Close closes the underlying broker.
func (b *Bus) Close() error {
	b.mustBeInitialised()
	return b.broker.Close()
}

// Unsubscribe removes a subscription made with Subscribe. Unknown IDs are
// ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	b.mustBeInitialised()
	return b.broker.Unsubscribe(id)
}

// validator is implemented by payloads with constraints their type cannot
// express.
type validator interface {
	Validate() error
}

// Publish sends one event on the channel derived from topic and key. Broker
// errors are returned without retry.
func Publish[K RoutingKey, P any](ctx context.Context, bus *Bus, topic Topic[K, P], key K, payload P) error {
	bus.mustBeInitialised()

	if v, ok := any(payload).(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("publish %s: %w", topic.name, err)
		}
	}

	data, err := encodeEnvelope(topic.name, key, payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic.name, err)
	}
	bus.metrics.Published.WithLabelValues(string(topic.name)).Inc()

	if err := bus.broker.Publish(ctx, ChannelName(topic.name, key), data); err != nil {
		return fmt.Errorf("publish %s: %w", topic.name, err)
	}
	return nil
}

// Subscribe calls fn for every event published on topic with a key equal to
// key. Events that fail to decode are logged and skipped.
func Subscribe[K RoutingKey, P any](ctx context.Context, bus *Bus, topic Topic[K, P], key K, fn func(Event[K, P])) (SubscriptionID, error) {
	bus.mustBeInitialised()

	channel := ChannelName(topic.name, key)
	id, err := bus.broker.Subscribe(ctx, channel, func(msg Message) {
		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("component", "pubsub").Str("channel", msg.Channel).Msg("dropping undecodable message")
			return
		}
		ev, err := Decode(topic, env)
		if err != nil {
			log.Warn().Err(err).Str("component", "pubsub").Str("channel", msg.Channel).Msg("dropping undecodable event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", topic.name, err)
	}
	bus.metrics.Subscribed.WithLabelValues(string(topic.name)).Inc()
	return id, nil
}

// Channel is one (event name, routing key) pair to listen on.
type Channel struct {
	Name    Name
	channel string
}

// On names the channel of topic for key.
func On[K RoutingKey, P any](topic Topic[K, P], key K) Channel {
	return Channel{Name: topic.name, channel: ChannelName(topic.name, key)}
}

// String returns the broker channel name.
func (c Channel) String() string { return c.channel }
