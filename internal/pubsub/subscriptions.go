package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

type localSubscription struct {
	id      SubscriptionID
	channel string
	handler Handler
}

// subscriptionTable is the local fan-out shared by every broker: the network
// side is subscribed once per channel and each message is handed to every
// local handler of that channel.
type subscriptionTable struct {
	mu     sync.RWMutex
	byChan map[string][]localSubscription
	byID   map[SubscriptionID]string
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		byChan: make(map[string][]localSubscription),
		byID:   make(map[SubscriptionID]string),
	}
}

// add registers handler and reports whether it is the first one on channel.
func (t *subscriptionTable) add(channel string, handler Handler) (SubscriptionID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := SubscriptionID(uuid.New().String())
	first := len(t.byChan[channel]) == 0
	t.byChan[channel] = append(t.byChan[channel], localSubscription{id: id, channel: channel, handler: handler})
	t.byID[id] = channel
	return id, first
}

// remove drops id and reports the channel it was on and whether it was the
// last handler there. ok is false for unknown IDs.
func (t *subscriptionTable) remove(id SubscriptionID) (channel string, last, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	channel, ok = t.byID[id]
	if !ok {
		return "", false, false
	}
	delete(t.byID, id)

	subs := t.byChan[channel]
	kept := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(t.byChan, channel)
		return channel, true, true
	}
	t.byChan[channel] = kept
	return channel, false, true
}

func (t *subscriptionTable) channels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byChan))
	for ch := range t.byChan {
		out = append(out, ch)
	}
	return out
}

// dispatch calls every handler of msg.Channel outside the lock.
func (t *subscriptionTable) dispatch(msg Message) {
	t.mu.RLock()
	subs := t.byChan[msg.Channel]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
