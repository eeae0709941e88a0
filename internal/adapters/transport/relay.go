package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const (
	relaySendBuffer = 32
	relayWriteWait  = 5 * time.Second
)

// Envelope is the relay wire frame. Subscribe/unsubscribe carry only
// the topic; publish carries the payload too.
type Envelope struct {
	Op      string          `json:"op"` // subscribe | unsubscribe | publish
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
)

// Relay is a core.Transport speaking the relayd protocol over one
// websocket. The relay never echoes a publisher its own frames.
type Relay struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	subs   map[string]map[*relaySub]struct{}
	closed bool
}

// DialRelay connects to a relayd endpoint, e.g. ws://host:port/ws.
func DialRelay(ctx context.Context, url string) (*Relay, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	r := &Relay{
		conn: conn,
		send: make(chan []byte, relaySendBuffer),
		subs: make(map[string]map[*relaySub]struct{}),
	}
	go r.writePump(ctx)
	go r.readPump()
	log.Info().Str("module", "transport.relay").Str("url", url).Msg("connected")
	return r, nil
}

func (r *Relay) Publish(_ context.Context, topic string, data core.Frame) error {
	return r.enqueue(Envelope{Op: OpPublish, Topic: topic, Payload: json.RawMessage(data)})
}

func (r *Relay) Subscribe(_ context.Context, topic string, fn func(core.Frame)) (core.Subscription, error) {
	sub := &relaySub{relay: r, topic: topic, fn: fn}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("relay transport closed")
	}
	first := len(r.subs[topic]) == 0
	if r.subs[topic] == nil {
		r.subs[topic] = make(map[*relaySub]struct{})
	}
	r.subs[topic][sub] = struct{}{}
	r.mu.Unlock()

	if first {
		if err := r.enqueue(Envelope{Op: OpSubscribe, Topic: topic}); err != nil {
			sub.drop()
			return nil, err
		}
	}
	return sub, nil
}

// Close tears down the websocket; pending sends are dropped.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.send)
	r.mu.Unlock()
	_ = r.conn.Close()
}

func (r *Relay) enqueue(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errors.New("relay transport closed")
	}
	select {
	case r.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (r *Relay) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "transport.relay").Msg("writePump ctx done")
			return
		case data, ok := <-r.send:
			if !ok {
				return
			}
			if err := r.conn.SetWriteDeadline(time.Now().Add(relayWriteWait)); err != nil {
				log.Error().Err(err).Str("module", "transport.relay").Msg("writePump set deadline")
				return
			}
			if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "transport.relay").Msg("writePump write error")
				return
			}
		}
	}
}

func (r *Relay) readPump() {
	defer r.Close()
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("module", "transport.relay").Msg("readPump read error")
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "transport.relay").Msg("bad relay frame")
			continue
		}
		if env.Op != OpPublish {
			continue
		}
		r.mu.RLock()
		targets := make([]*relaySub, 0, len(r.subs[env.Topic]))
		for sub := range r.subs[env.Topic] {
			targets = append(targets, sub)
		}
		r.mu.RUnlock()
		for _, sub := range targets {
			sub.fn(core.Frame(env.Payload))
		}
	}
}

type relaySub struct {
	relay *Relay
	topic string
	fn    func(core.Frame)
	once  sync.Once
}

func (s *relaySub) Close() error {
	var err error
	s.once.Do(func() {
		if s.drop() {
			err = s.relay.enqueue(Envelope{Op: OpUnsubscribe, Topic: s.topic})
		}
	})
	return err
}

// drop deregisters the subscription and reports whether it was the
// topic's last one.
func (s *relaySub) drop() bool {
	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	if set, ok := s.relay.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.relay.subs, s.topic)
			return true
		}
	}
	return false
}
