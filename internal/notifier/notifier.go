// Package notifier implements an atomic last-inserted-id cell with
// subscriber fan-out.
//
// Grounded on the Python original's loglite/utils.py AtomicMutableValue (a
// mutex-guarded value plus a list of one-shot asyncio.Event subscribers,
// with get/set/subscribe/unsubscribe) and a subscriber-map-plus-broadcast
// pattern common to long-running Go daemons (a mutex-guarded map, fan-out
// on every notify). Go has no asyncio.Event equivalent, so subscribers
// here are rearmable via a buffered channel rather than a one-shot flag.
package notifier

import "sync"

// Subscription is a handle returned by Notifier.Subscribe. C receives a
// wakeup after Set; the receiver should call Notifier.Get for the value,
// since multiple Set calls may coalesce into a single wakeup.
type Subscription struct {
	id int64
	C  <-chan struct{}
}

// Notifier holds the last inserted log id and fans out wakeups to
// subscribers whenever it changes.
type Notifier struct {
	mu          sync.Mutex
	value       int64
	hasValue    bool
	nextID      int64
	subscribers map[int64]chan struct{}
}

// New creates an empty Notifier.
func New() *Notifier {
	return &Notifier{subscribers: make(map[int64]chan struct{})}
}

// Get returns the current value and whether one has ever been set.
func (n *Notifier) Get() (int64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value, n.hasValue
}

// Set updates the value and wakes every subscriber. The update
// happens-before any subscriber's next wakeup observing the new value.
func (n *Notifier) Set(v int64) {
	n.mu.Lock()
	n.value = v
	n.hasValue = true
	for _, ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber already has a pending wakeup queued; the next Get
			// after it drains will observe the latest value regardless.
		}
	}
	n.mu.Unlock()
}

// Subscribe registers a fresh subscription. The caller must call
// Unsubscribe when done (typically via defer) to avoid leaking the
// subscriber's channel — the SSE handler's guaranteed-cleanup block
// depends on this.
func (n *Notifier) Subscribe() Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	ch := make(chan struct{}, 1)
	n.subscribers[id] = ch
	return Subscription{id: id, C: ch}
}

// Unsubscribe removes a subscription.
func (n *Notifier) Unsubscribe(sub Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscribers, sub.id)
}

// SubscriberCount reports the number of active subscriptions, for
// observability — bounded in practice by the open HTTP connection count.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}
