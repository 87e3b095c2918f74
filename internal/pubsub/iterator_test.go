package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextWithin(t *testing.T, it *Iterator) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := it.Next(ctx)
	require.NoError(t, err)
	return env
}

func TestAsyncIterator_MergesChannels(t *testing.T) {
	bus, m := newTestBus(t)
	ctx := context.Background()

	it, err := bus.AsyncIterator(ctx,
		On(NotificationAdded, UserKey{UserID: "u1"}),
		On(NotificationDeleted, UserKey{UserID: "u1"}),
	)
	require.NoError(t, err)
	defer it.Close()

	require.NoError(t, Publish(ctx, bus, NotificationAdded, UserKey{UserID: "u1"}, NotificationRef{NotificationID: "n1"}))
	require.NoError(t, Publish(ctx, bus, NotificationAdded, UserKey{UserID: "u2"}, NotificationRef{NotificationID: "other"}))
	require.NoError(t, Publish(ctx, bus, NotificationDeleted, UserKey{UserID: "u1"}, NotificationRef{NotificationID: "n1"}))

	first := nextWithin(t, it)
	second := nextWithin(t, it)
	assert.ElementsMatch(t,
		[]Name{NameNotificationAdded, NameNotificationDeleted},
		[]Name{first.Name, second.Name})

	added := first
	if first.Name != NameNotificationAdded {
		added = second
	}
	ev, err := Decode(NotificationAdded, added)
	require.NoError(t, err)
	assert.Equal(t, "u1", ev.Args.UserID)
	assert.Equal(t, "n1", ev.Payload.NotificationID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscribed.WithLabelValues(string(NameNotificationAdded))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscribed.WithLabelValues(string(NameNotificationDeleted))))
}

func TestAsyncIterator_DuplicateChannelDeliversOnce(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	ch := On(ThreadCreated, ThreadKey{ThreadID: "t1"})
	it, err := bus.AsyncIterator(ctx, ch, ch)
	require.NoError(t, err)
	defer it.Close()

	require.NoError(t, Publish(ctx, bus, ThreadCreated, ThreadKey{ThreadID: "t1"}, ThreadRef{ThreadID: "t1"}))
	nextWithin(t, it)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = it.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsyncIterator_SlowConsumerDoesNotBlockPublishers(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	it, err := bus.AsyncIterator(ctx, On(ThreadMessageAdded, ThreadKey{ThreadID: "t"}))
	require.NoError(t, err)
	defer it.Close()

	const n = 5000
	for i := 0; i < n; i++ {
		require.NoError(t, Publish(ctx, bus, ThreadMessageAdded, ThreadKey{ThreadID: "t"}, MessageRef{MessageID: "m"}))
	}
	for i := 0; i < n; i++ {
		nextWithin(t, it)
	}
}

func TestAsyncIterator_CloseReleasesSubscriptions(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()
	bus := NewBus(broker, NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	it, err := bus.AsyncIterator(ctx, On(UserIdentity, UserKey{UserID: "u1"}), On(RestartSubscription, UserKey{UserID: "u1"}))
	require.NoError(t, err)
	assert.Len(t, broker.subs.channels(), 2)

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Empty(t, broker.subs.channels())

	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, ErrIteratorClosed)
}

func TestAsyncIterator_ContextCancelCloses(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()
	bus := NewBus(broker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	it, err := bus.AsyncIterator(ctx, On(UserIdentity, UserKey{UserID: "u1"}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var nextErr error
	go func() {
		defer wg.Done()
		_, nextErr = it.Next(context.Background())
	}()

	cancel()
	wg.Wait()
	assert.ErrorIs(t, nextErr, ErrIteratorClosed)
	assert.Eventually(t, func() bool { return len(broker.subs.channels()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestAsyncIterator_QueuedEventsSurviveClose(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	it, err := bus.AsyncIterator(ctx, On(UserIdentity, UserKey{UserID: "u1"}))
	require.NoError(t, err)

	require.NoError(t, Publish(ctx, bus, UserIdentity, UserKey{UserID: "u1"}, NoPayload{}))
	require.Eventually(t, func() bool {
		it.mu.Lock()
		defer it.mu.Unlock()
		return len(it.queue) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, it.Close())
	env, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, NameUserIdentity, env.Name)
}

func TestDecode_WrongTopic(t *testing.T) {
	_, err := Decode(ThreadCreated, Envelope{Name: NameThreadDeleted})
	assert.Error(t, err)
}
