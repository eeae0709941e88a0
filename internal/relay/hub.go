// Package relay implements the development broadcast bus: a websocket
// hub that fans published frames out to every other subscriber of a
// topic. Publishers never receive their own frames back.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/adapters/transport"
)

var ErrBackpressure = errors.New("backpressure")

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*client]struct{})}
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *client) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleWS upgrades the request and serves one relay connection.
func (h *Hub) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("ws upgrade")
		return
	}
	cl := &client{
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	log.Info().Str("module", "relay").Str("remote", ws.RemoteAddr().String()).Msg("new connection")

	ctx, cancel := context.WithCancel(ctx)
	go h.writePump(ctx, cl)
	go h.readPump(ctx, cancel, cl)
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer func() {
		h.detachAll(c)
		c.close()
		cancel()
		log.Info().Str("module", "relay").Msg("connection closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			h.handleFrame(c, data)
		}
	}
}

func (h *Hub) handleFrame(c *client, data []byte) {
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("bad frame")
		return
	}
	if env.Topic == "" {
		return
	}
	switch env.Op {
	case transport.OpSubscribe:
		h.join(env.Topic, c)
	case transport.OpUnsubscribe:
		h.leave(env.Topic, c)
	case transport.OpPublish:
		h.fanout(env.Topic, data, c)
	default:
		log.Warn().Str("module", "relay").Str("op", env.Op).Msg("unknown op")
	}
}

func (h *Hub) join(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	log.Debug().Str("module", "relay").Str("topic", topic).Int("subscribers", len(h.topics[topic])).Msg("subscribe")
}

func (h *Hub) leave(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) detachAll(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.topics {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// fanout forwards the publish frame to every topic subscriber except
// the sender. Slow consumers drop the frame rather than stall the hub.
func (h *Hub) fanout(topic string, data []byte, from *client) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.topics[topic]))
	for cl := range h.topics[topic] {
		if cl != from {
			targets = append(targets, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if err := cl.trySend(data); err != nil {
			log.Warn().Err(err).Str("module", "relay").Str("topic", topic).Msg("fanout drop")
		}
	}
}
