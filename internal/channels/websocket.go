package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lavizord/coinflip-client/logger"
)

// WSTransport speaks to the broker through a websocket gateway instead of a
// direct Redis connection. Subscriptions are expressed as subscribe frames and
// inbound frames carry the topic plus the raw payload. On a dropped socket the
// transport redials with backoff and replays the subscribe frames, so callers
// never see the reconnect.
type WSTransport struct {
	url    string
	apiKey string

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]*wsSubscription
	closed bool
}

type wsFrame struct {
	Action  string          `json:"action,omitempty"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscription struct {
	topic string
	t     *WSTransport
	out   chan Message
	done  chan struct{}
	once  sync.Once
}

func NewWSTransport(url, apiKey string) (*WSTransport, error) {
	t := &WSTransport{
		url:    url,
		apiKey: apiKey,
		subs:   make(map[string]*wsSubscription),
	}
	conn, err := t.dial()
	if err != nil {
		return nil, fmt.Errorf("[WSTransport] - failed to connect to %s: %w", url, err)
	}
	t.conn = conn
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if t.apiKey != "" {
		header.Set("X-Api-Key", t.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.Dial(t.url, header)
	return conn, err
}

func (t *WSTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("[WSTransport] - transport is closed")
	}
	if _, ok := t.subs[topic]; ok {
		return nil, fmt.Errorf("[WSTransport] - already subscribed to %s", topic)
	}
	sub := &wsSubscription{
		topic: topic,
		t:     t,
		out:   make(chan Message),
		done:  make(chan struct{}),
	}
	t.subs[topic] = sub
	// A write failure here is not fatal: the redial loop replays subscribe
	// frames for every registered topic.
	if err := t.writeFrame(wsFrame{Action: "subscribe", Topic: topic}); err != nil {
		logger.Default.Warnf("subscribe frame for %s not sent, will retry on reconnect: %v", topic, err)
	}
	return sub, nil
}

// writeFrame must be called with t.mu held; gorilla connections do not allow
// concurrent writers.
func (t *WSTransport) writeFrame(f wsFrame) error {
	if t.conn == nil {
		return fmt.Errorf("no connection")
	}
	return t.conn.WriteJSON(f)
}

func (t *WSTransport) readLoop() {
	for {
		t.mu.Lock()
		conn := t.conn
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			if !t.reconnect() {
				return
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			t.conn = nil
			t.mu.Unlock()
			logger.Default.Warnf("websocket read failed, reconnecting: %v", err)
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Default.Warnf("dropping malformed frame: %v", err)
			continue
		}
		t.route(frame)
	}
}

func (t *WSTransport) route(frame wsFrame) {
	t.mu.Lock()
	sub := t.subs[frame.Topic]
	t.mu.Unlock()
	if sub == nil {
		return
	}
	select {
	case sub.out <- Message{Topic: frame.Topic, Payload: frame.Payload}:
	case <-sub.done:
	}
}

// reconnect redials with backoff and replays the subscribe frames. Returns
// false once the transport has been closed for good.
func (t *WSTransport) reconnect() bool {
	backoff := time.Second
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return false
		}
		t.mu.Unlock()

		conn, err := t.dial()
		if err != nil {
			logger.Default.Warnf("websocket redial failed, retrying in %s: %v", backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return false
		}
		t.conn = conn
		for topic := range t.subs {
			if err := t.writeFrame(wsFrame{Action: "subscribe", Topic: topic}); err != nil {
				logger.Default.Warnf("resubscribe frame for %s not sent: %v", topic, err)
			}
		}
		t.mu.Unlock()
		logger.Default.Info("websocket transport reconnected")
		return true
	}
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	for _, sub := range t.subs {
		sub.once.Do(func() { close(sub.done) })
	}
	t.subs = make(map[string]*wsSubscription)
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *wsSubscription) Messages() <-chan Message {
	return s.out
}

func (s *wsSubscription) Close() error {
	s.t.mu.Lock()
	if s.t.subs[s.topic] == s {
		delete(s.t.subs, s.topic)
		if err := s.t.writeFrame(wsFrame{Action: "unsubscribe", Topic: s.topic}); err != nil {
			logger.Default.Debugf("unsubscribe frame for %s not sent: %v", s.topic, err)
		}
	}
	s.t.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}
