package channels

import (
	"context"
	"sync"

	"github.com/Lavizord/coinflip-client/logger"
)

// Message is one raw payload delivered on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Transport is the underlying pub/sub connection. Implementations must keep a
// subscription alive across silent reconnects without caller involvement;
// delivery ordering across a reconnect is not guaranteed.
type Transport interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription is one live topic feed. Messages may stop without the channel
// closing; Close releases the feed.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Handler receives every payload delivered on an open topic.
type Handler func(topic string, payload []byte)

// Manager owns the subscribe/unsubscribe lifecycle and guarantees at most one
// active subscription per topic.
type Manager struct {
	transport Transport
	mu        sync.Mutex
	subs      map[string]*Handle
}

// Handle is the caller's grip on one open topic. After Close returns, the
// handler is guaranteed not to run again, even for an event that was already
// read off the transport.
type Handle struct {
	topic string
	sub   Subscription

	mu     sync.Mutex
	closed bool
	quit   chan struct{}
}

func NewManager(t Transport) *Manager {
	return &Manager{
		transport: t,
		subs:      make(map[string]*Handle),
	}
}

// Open subscribes to a topic and starts delivering into handler. Calling Open
// for a topic that is already open reuses the existing subscription instead of
// creating a second delivery path.
func (m *Manager) Open(ctx context.Context, topic string, handler Handler) (*Handle, error) {
	m.mu.Lock()
	if existing, ok := m.subs[topic]; ok {
		m.mu.Unlock()
		logger.Default.Debugf("already subscribed to %s", topic)
		return existing, nil
	}
	m.mu.Unlock()

	sub, err := m.transport.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// A concurrent Open may have won the race while we were subscribing.
	if existing, ok := m.subs[topic]; ok {
		m.mu.Unlock()
		sub.Close()
		return existing, nil
	}
	handle := &Handle{
		topic: topic,
		sub:   sub,
		quit:  make(chan struct{}),
	}
	m.subs[topic] = handle
	m.mu.Unlock()

	go handle.deliver(handler)
	logger.Default.Infof("subscribed to %s", topic)
	return handle, nil
}

// deliver pumps transport messages into the handler. The handler runs while
// holding the handle mutex, so Close blocks until any in flight delivery has
// finished and no delivery can start afterwards.
func (h *Handle) deliver(handler Handler) {
	for {
		select {
		case msg, ok := <-h.sub.Messages():
			if !ok {
				return
			}
			h.mu.Lock()
			if h.closed {
				h.mu.Unlock()
				return
			}
			handler(msg.Topic, msg.Payload)
			h.mu.Unlock()
		case <-h.quit:
			return
		}
	}
}

// Close releases the subscription behind the handle. Safe to call more than
// once and with nil.
func (m *Manager) Close(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.quit)
	h.mu.Unlock()

	if err := h.sub.Close(); err != nil {
		logger.Default.Warnf("error unsubscribing from %s: %v", h.topic, err)
	}
	m.mu.Lock()
	if m.subs[h.topic] == h {
		delete(m.subs, h.topic)
	}
	m.mu.Unlock()
	logger.Default.Infof("unsubscribed from %s", h.topic)
}

// CloseAll tears down every open subscription.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.subs))
	for _, h := range m.subs {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.Close(h)
	}
}

// Open topics, mainly for tests and the status endpoint.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.subs))
	for topic := range m.subs {
		topics = append(topics, topic)
	}
	return topics
}
