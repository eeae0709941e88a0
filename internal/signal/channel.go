// Package signal adapts the broadcast-channel transport into typed
// signaling message delivery for one room.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
)

var ErrChannelClosed = errors.New("signal channel closed")

// Handler receives decoded inbound signals. Recipient filtering for
// offer/answer/candidate is the manager's responsibility; the channel
// only suppresses the session's own echoes.
type Handler func(domain.Signal)

// Channel is one subscription on the session topic. Register the
// handler before Open; Close announces departure before unsubscribing.
type Channel struct {
	sess    domain.Session
	tr      core.Transport
	handler Handler

	mu     sync.Mutex
	sub    core.Subscription
	closed bool
}

func NewChannel(sess domain.Session, tr core.Transport) *Channel {
	return &Channel{sess: sess, tr: tr}
}

func (c *Channel) OnSignal(fn Handler) { c.handler = fn }

// Open subscribes to the session topic and starts delivering signals.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.sub != nil {
		return nil
	}
	sub, err := c.tr.Subscribe(ctx, c.sess.Topic(), c.dispatch)
	if err != nil {
		return err
	}
	c.sub = sub
	log.Info().Str("module", "signal").Str("topic", c.sess.Topic()).Msg("channel open")
	return nil
}

func (c *Channel) dispatch(data core.Frame) {
	var sig domain.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		log.Warn().Str("module", "signal").Err(err).Msg("bad signal payload")
		return
	}
	switch sig.Type {
	case domain.SignalOffer, domain.SignalAnswer, domain.SignalCandidate:
		if sig.From == c.sess.Self {
			return
		}
	case domain.SignalPeerGone:
		if sig.PeerID == c.sess.Self {
			return
		}
	default:
		log.Warn().Str("module", "signal").Str("type", string(sig.Type)).Msg("unknown signal")
		return
	}
	if c.handler != nil {
		c.handler(sig)
	}
}

// Send publishes sig on the session topic, stamping From with the
// local identifier.
func (c *Channel) Send(ctx context.Context, sig domain.Signal) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	if sig.From == "" && sig.Type != domain.SignalPeerGone {
		sig.From = c.sess.Self
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return c.tr.Publish(ctx, c.sess.Topic(), data)
}

// Close announces a clean departure to the room, then unsubscribes.
// The announcement is best-effort. Idempotent.
func (c *Channel) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub == nil {
		return
	}
	gone := domain.Signal{Type: domain.SignalPeerGone, PeerID: c.sess.Self}
	if data, err := json.Marshal(gone); err == nil {
		if err := c.tr.Publish(ctx, c.sess.Topic(), data); err != nil {
			log.Warn().Str("module", "signal").Err(err).Msg("departure announce")
		}
	}
	if err := sub.Close(); err != nil {
		log.Warn().Str("module", "signal").Err(err).Msg("unsubscribe")
	}
	log.Info().Str("module", "signal").Str("topic", c.sess.Topic()).Msg("channel closed")
}
