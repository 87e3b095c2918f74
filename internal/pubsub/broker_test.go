package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records messages delivered to a handler.
type collector struct {
	mu   sync.Mutex
	msgs []Message
	ch   chan Message
}

func newCollector() *collector {
	return &collector{ch: make(chan Message, 64)}
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
	c.ch <- m
}

func (c *collector) wait(t *testing.T) Message {
	t.Helper()
	select {
	case m := <-c.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func (c *collector) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case m := <-c.ch:
		t.Fatalf("unexpected message on %s: %s", m.Channel, m.Data)
	case <-time.After(d):
	}
}

// runBrokerContract exercises the behaviour every Broker must share.
func runBrokerContract(t *testing.T, newBroker func(t *testing.T) Broker) {
	ctx := context.Background()

	t.Run("fan-out to every subscriber", func(t *testing.T) {
		b := newBroker(t)
		c1, c2 := newCollector(), newCollector()
		_, err := b.Subscribe(ctx, "ch-a", c1.handle)
		require.NoError(t, err)
		_, err = b.Subscribe(ctx, "ch-a", c2.handle)
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, "ch-a", []byte("hello")))

		assert.Equal(t, "hello", string(c1.wait(t).Data))
		assert.Equal(t, "hello", string(c2.wait(t).Data))
	})

	t.Run("channel isolation", func(t *testing.T) {
		b := newBroker(t)
		ca, cb := newCollector(), newCollector()
		_, err := b.Subscribe(ctx, "ch-a", ca.handle)
		require.NoError(t, err)
		_, err = b.Subscribe(ctx, "ch-b", cb.handle)
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, "ch-b", []byte("for-b")))

		m := cb.wait(t)
		assert.Equal(t, "ch-b", m.Channel)
		ca.expectNone(t, 100*time.Millisecond)
	})

	t.Run("unsubscribe stops delivery and is idempotent", func(t *testing.T) {
		b := newBroker(t)
		gone, kept := newCollector(), newCollector()
		id, err := b.Subscribe(ctx, "ch-a", gone.handle)
		require.NoError(t, err)
		_, err = b.Subscribe(ctx, "ch-a", kept.handle)
		require.NoError(t, err)

		require.NoError(t, b.Unsubscribe(id))
		require.NoError(t, b.Unsubscribe(id))
		require.NoError(t, b.Unsubscribe("unknown"))

		require.NoError(t, b.Publish(ctx, "ch-a", []byte("x")))
		kept.wait(t)
		gone.expectNone(t, 100*time.Millisecond)
	})

	t.Run("resubscribe after last unsubscribe", func(t *testing.T) {
		b := newBroker(t)
		first := newCollector()
		id, err := b.Subscribe(ctx, "ch-a", first.handle)
		require.NoError(t, err)
		require.NoError(t, b.Unsubscribe(id))

		second := newCollector()
		_, err = b.Subscribe(ctx, "ch-a", second.handle)
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, "ch-a", []byte("again")))

		assert.Equal(t, "again", string(second.wait(t).Data))
		first.expectNone(t, 100*time.Millisecond)
	})

	t.Run("per-channel order", func(t *testing.T) {
		b := newBroker(t)
		c := newCollector()
		_, err := b.Subscribe(ctx, "ch-a", c.handle)
		require.NoError(t, err)

		for _, s := range []string{"1", "2", "3"} {
			require.NoError(t, b.Publish(ctx, "ch-a", []byte(s)))
		}
		assert.Equal(t, "1", string(c.wait(t).Data))
		assert.Equal(t, "2", string(c.wait(t).Data))
		assert.Equal(t, "3", string(c.wait(t).Data))
	})

	t.Run("closed broker rejects calls", func(t *testing.T) {
		b := newBroker(t)
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		assert.ErrorIs(t, b.Publish(ctx, "ch-a", []byte("x")), ErrBrokerClosed)
		_, err := b.Subscribe(ctx, "ch-a", func(Message) {})
		assert.ErrorIs(t, err, ErrBrokerClosed)
	})
}
