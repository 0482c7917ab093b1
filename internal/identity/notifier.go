package identity

import (
	"context"
	"sync"
)

// Listener receives auth state change events.
type Listener func(Event)

// Notifier fans events out to subscribers. Each subscription is served by
// its own goroutine, which exits when the subscription is cancelled.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
}

type subscription struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewNotifier constructs a notifier whose subscriptions buffer up to buffer
// pending events before Publish blocks.
func NewNotifier(buffer int) *Notifier {
	if buffer < 0 {
		buffer = 0
	}
	return &Notifier{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe registers listener and returns the handle that cancels it.
// Calling the handle more than once is a no-op.
func (n *Notifier) Subscribe(listener Listener) (unsubscribe func()) {
	sub := &subscription{
		events: make(chan Event, n.buffer),
		done:   make(chan struct{}),
	}

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = sub
	n.mu.Unlock()

	go sub.run(listener)

	return func() {
		sub.once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers ev to every current subscriber.
func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	n.mu.RLock()
	targets := make([]*subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		targets = append(targets, sub)
	}
	n.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.events <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close cancels every subscription.
func (n *Notifier) Close() {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[uint64]*subscription)
	n.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.done) })
	}
}

func (s *subscription) run(listener Listener) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			select {
			case <-s.done:
				return
			default:
			}
			listener(ev)
		}
	}
}
