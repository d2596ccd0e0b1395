package channels_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lavizord/coinflip-client/internal/channels"
)

type fakeTransport struct {
	mu             sync.Mutex
	subs           map[string]*fakeSubscription
	subscribeCount int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]*fakeSubscription)}
}

func (f *fakeTransport) Subscribe(ctx context.Context, topic string) (channels.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{out: make(chan channels.Message, 16)}
	f.subs[topic] = sub
	f.subscribeCount++
	return sub, nil
}

func (f *fakeTransport) Close() error { return nil }

// deliver simulates the broker pushing a payload, including one that is
// already in flight when the subscription gets torn down.
func (f *fakeTransport) deliver(topic string, payload []byte) {
	f.mu.Lock()
	sub := f.subs[topic]
	f.mu.Unlock()
	if sub != nil {
		sub.out <- channels.Message{Topic: topic, Payload: payload}
	}
}

type fakeSubscription struct {
	out    chan channels.Message
	closed atomic.Bool
}

func (s *fakeSubscription) Messages() <-chan channels.Message { return s.out }

func (s *fakeSubscription) Close() error {
	// Deliberately leaves the channel open: a real transport can still have
	// buffered messages after the unsubscribe round trip.
	s.closed.Store(true)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestOpenDeliversToHandler(t *testing.T) {
	transport := newFakeTransport()
	mgr := channels.NewManager(transport)

	var count atomic.Int64
	_, err := mgr.Open(context.Background(), "room:main", func(topic string, payload []byte) {
		count.Add(1)
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	transport.deliver("room:main", []byte(`{"event":"roundUpdate"}`))
	waitFor(t, func() bool { return count.Load() == 1 })
}

func TestOpenIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	mgr := channels.NewManager(transport)

	var count atomic.Int64
	handler := func(topic string, payload []byte) { count.Add(1) }

	h1, err := mgr.Open(context.Background(), "room:main", handler)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	h2, err := mgr.Open(context.Background(), "room:main", handler)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if h1 != h2 {
		t.Error("second open should reuse the existing handle")
	}
	if transport.subscribeCount != 1 {
		t.Errorf("expected a single transport subscription, got %d", transport.subscribeCount)
	}

	// One delivery path only: a single publish is handled exactly once.
	transport.deliver("room:main", []byte(`x`))
	waitFor(t, func() bool { return count.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("duplicate delivery path detected, handler ran %d times", count.Load())
	}
}

func TestNoDeliveryAfterClose(t *testing.T) {
	transport := newFakeTransport()
	mgr := channels.NewManager(transport)

	var count atomic.Int64
	handle, err := mgr.Open(context.Background(), "player:u1", func(topic string, payload []byte) {
		count.Add(1)
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	transport.deliver("player:u1", []byte(`a`))
	waitFor(t, func() bool { return count.Load() == 1 })

	mgr.Close(handle)

	// A message already buffered in the transport must be dropped, not
	// handled; unregistering alone is not enough.
	transport.deliver("player:u1", []byte(`b`))
	time.Sleep(50 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("handler ran after close, count=%d", count.Load())
	}
	if !transport.subs["player:u1"].closed.Load() {
		t.Error("transport subscription was not released")
	}
}

func TestCloseIsIdempotentAndReopenWorks(t *testing.T) {
	transport := newFakeTransport()
	mgr := channels.NewManager(transport)

	var first atomic.Int64
	handle, _ := mgr.Open(context.Background(), "player:u1", func(string, []byte) { first.Add(1) })
	mgr.Close(handle)
	mgr.Close(handle)
	mgr.Close(nil)

	var second atomic.Int64
	if _, err := mgr.Open(context.Background(), "player:u1", func(string, []byte) { second.Add(1) }); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	transport.deliver("player:u1", []byte(`x`))
	waitFor(t, func() bool { return second.Load() == 1 })
	if first.Load() != 0 {
		t.Errorf("stale handler received an event after reopen, count=%d", first.Load())
	}
}

func TestCloseAll(t *testing.T) {
	transport := newFakeTransport()
	mgr := channels.NewManager(transport)

	mgr.Open(context.Background(), "room:main", func(string, []byte) {})
	mgr.Open(context.Background(), "roomhistory:main", func(string, []byte) {})
	mgr.Open(context.Background(), "player:u1", func(string, []byte) {})

	mgr.CloseAll()
	if topics := mgr.Topics(); len(topics) != 0 {
		t.Errorf("expected no open topics, got %v", topics)
	}
}
