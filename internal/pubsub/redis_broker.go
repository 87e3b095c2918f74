package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds connection settings for the Redis broker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBroker implements Broker with Redis pub/sub. All channels of the
// process share one PubSub connection; a channel is SUBSCRIBEd when its first
// local handler registers and UNSUBSCRIBEd when the last one leaves.
type RedisBroker struct {
	client     redis.UniversalClient
	ownsClient bool
	ps         *redis.PubSub
	subs       *subscriptionTable

	mu      sync.Mutex
	closed  bool
	pending map[string][]chan struct{}
	done    chan struct{}
}

// NewRedisBroker dials Redis and starts the receive goroutine.
func NewRedisBroker(ctx context.Context, cfg RedisConfig) (*RedisBroker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	b := NewRedisBrokerFromClient(ctx, client)
	b.ownsClient = true
	return b, nil
}

// NewRedisBrokerFromClient builds a broker on an existing client. The client
// is not closed by Close.
func NewRedisBrokerFromClient(ctx context.Context, client redis.UniversalClient) *RedisBroker {
	b := &RedisBroker{
		client:  client,
		ps:      client.Subscribe(ctx),
		subs:    newSubscriptionTable(),
		pending: make(map[string][]chan struct{}),
		done:    make(chan struct{}),
	}
	go b.receive()
	return b
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, data []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBrokerClosed
	}

	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the SUBSCRIBE, so a publish made
// after it returns is delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler Handler) (SubscriptionID, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrBrokerClosed
	}

	id, first := b.subs.add(channel, handler)
	var confirmed chan struct{}
	if first {
		if err := b.ps.Subscribe(ctx, channel); err != nil {
			b.subs.remove(id)
			b.mu.Unlock()
			return "", fmt.Errorf("redis subscribe: %w", err)
		}
	}
	if first || len(b.pending[channel]) > 0 {
		confirmed = make(chan struct{})
		b.pending[channel] = append(b.pending[channel], confirmed)
	}
	b.mu.Unlock()

	if confirmed == nil {
		return id, nil
	}
	select {
	case <-confirmed:
		return id, nil
	case <-ctx.Done():
		_ = b.Unsubscribe(id)
		return "", ctx.Err()
	case <-b.done:
		return "", ErrBrokerClosed
	}
}

func (b *RedisBroker) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	channel, last, ok := b.subs.remove(id)
	if !ok || !last || b.closed {
		return nil
	}
	if err := b.ps.Unsubscribe(context.Background(), channel); err != nil {
		return fmt.Errorf("redis unsubscribe %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var result *multierror.Error
	if err := b.ps.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close pubsub: %w", err))
	}
	<-b.done
	if b.ownsClient {
		if err := b.client.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close client: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func (b *RedisBroker) receive() {
	defer close(b.done)

	for m := range b.ps.ChannelWithSubscriptions() {
		switch v := m.(type) {
		case *redis.Subscription:
			if v.Kind == "subscribe" {
				b.confirm(v.Channel)
			}
		case *redis.Message:
			b.subs.dispatch(Message{Channel: v.Channel, Data: []byte(v.Payload)})
		default:
			log.Debug().Str("component", "pubsub").Msgf("redis: ignoring %T", m)
		}
	}
}

func (b *RedisBroker) confirm(channel string) {
	b.mu.Lock()
	waiters := b.pending[channel]
	delete(b.pending, channel)
	b.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}
