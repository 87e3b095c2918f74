package pubsub

import (
	"context"
	"fmt"
	"time"
)

// HealthCheck publishes a pub-sub-health-check event and waits until it comes
// back through the broker.
func HealthCheck(ctx context.Context, bus *Bus, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	received := make(chan struct{}, 1)
	id, err := Subscribe(ctx, bus, PubSubHealthCheck, NoKey{}, func(Event[NoKey, NoPayload]) {
		select {
		case received <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = bus.Unsubscribe(id) }()

	if err := Publish(ctx, bus, PubSubHealthCheck, NoKey{}, NoPayload{}); err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	select {
	case <-received:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("health check: no round trip within %s: %w", timeout, ctx.Err())
	}
}
