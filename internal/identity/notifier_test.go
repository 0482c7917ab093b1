package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func subscribers(n *Notifier) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func TestNotifierDeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier(4)
	var (
		mu   sync.Mutex
		got  []EventKind
		done = make(chan struct{})
	)
	unsubscribe := n.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Kind)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, n.Publish(ctx, Event{Kind: EventSignedIn}))
	require.NoError(t, n.Publish(ctx, Event{Kind: EventTokenRefreshed}))
	require.NoError(t, n.Publish(ctx, Event{Kind: EventSignedOut}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventSignedIn, EventTokenRefreshed, EventSignedOut}, got)
}

func TestNotifierUnsubscribeStopsGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier(0)
	handles := make([]func(), 0, 5)
	for i := 0; i < 5; i++ {
		handles = append(handles, n.Subscribe(func(Event) {}))
	}
	assert.Equal(t, 5, subscribers(n))

	for _, unsubscribe := range handles {
		unsubscribe()
		unsubscribe()
	}
	assert.Zero(t, subscribers(n))
	require.NoError(t, n.Publish(context.Background(), Event{Kind: EventSignedOut}))
}

func TestNotifierPublishHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier(0)
	block := make(chan struct{})
	unsubscribe := n.Subscribe(func(Event) { <-block })
	defer unsubscribe()
	defer close(block)

	require.NoError(t, n.Publish(context.Background(), Event{Kind: EventSignedIn}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.Publish(ctx, Event{Kind: EventSignedOut}), context.DeadlineExceeded)
}

func TestNotifierClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier(1)
	unsubscribe := n.Subscribe(func(Event) {})
	n.Close()
	unsubscribe()
	assert.Zero(t, subscribers(n))
}
