package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/media"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/signal"
)

var (
	ErrNotStarted  = errors.New("session not started")
	ErrUnknownPeer = errors.New("answer from unknown peer")
)

// DefaultNegotiationTimeout bounds how long an entry may sit without a
// completed negotiation before it is treated as failed.
const DefaultNegotiationTimeout = 30 * time.Second

// Phase is the session lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiring
	PhaseSignaling
	PhaseActive
	PhaseDisconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseSignaling:
		return "signaling"
	case PhaseActive:
		return "active"
	case PhaseDisconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// Callbacks surface manager events to the owner. Per-peer failures
// arrive only through OnPeerDisconnected, never as returned errors.
type Callbacks struct {
	OnRemoteStream     func(domain.PeerID, core.RemoteStream)
	OnPeerDisconnected func(domain.PeerID)
	OnProtocolError    func(domain.PeerID, error)
}

type Options struct {
	Session   domain.Session
	Transport core.Transport
	Links     core.LinkFactory
	// Backend may be nil for sessions that only ever view.
	Backend            media.Backend
	NegotiationTimeout time.Duration
	Callbacks          Callbacks
}

// Manager owns the peer connection set for one session: it drives the
// offer/answer/ICE exchange per remote peer, attaches local media,
// surfaces remote streams and tears down connections one peer at a
// time. All state is private to the instance; no two sessions share.
type Manager struct {
	sess    domain.Session
	tr      core.Transport
	links   core.LinkFactory
	backend media.Backend
	timeout time.Duration
	cb      Callbacks

	mu      sync.Mutex
	phase   Phase
	ctx     context.Context
	cancel  context.CancelFunc
	local   *media.LocalMedia
	channel *signal.Channel
	peers   map[domain.PeerID]*peerEntry
}

// peerEntry is one remote peer's connection. At most one entry exists
// per peer id at any time.
type peerEntry struct {
	link    core.PeerLink
	offerer bool
	stream  core.RemoteStream
	settled bool
	timer   *time.Timer
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Session.Room == "" || opts.Session.Self == "" {
		return nil, errors.New("rtc: incomplete session")
	}
	if opts.Transport == nil {
		return nil, errors.New("rtc: transport required")
	}
	if opts.Links == nil {
		return nil, errors.New("rtc: link factory required")
	}
	timeout := opts.NegotiationTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}
	return &Manager{
		sess:    opts.Session,
		tr:      opts.Transport,
		links:   opts.Links,
		backend: opts.Backend,
		timeout: timeout,
		cb:      opts.Callbacks,
		peers:   make(map[domain.PeerID]*peerEntry),
	}, nil
}

func (m *Manager) Session() domain.Session { return m.sess }

func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) Local() *media.LocalMedia {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// Peers snapshots the ids with a live entry.
func (m *Manager) Peers() []domain.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PeerID, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// RemoteStreamOf returns the stream received from peer, if any.
func (m *Manager) RemoteStreamOf(peer domain.PeerID) (core.RemoteStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.peers[peer]
	if !ok || e.stream == nil {
		return nil, false
	}
	return e.stream, true
}

// Start acquires local media (unless viewOnly) and opens the signal
// channel. It runs at most once per session; further calls while
// started or starting are no-ops. On failure nothing is left open.
func (m *Manager) Start(ctx context.Context, viewOnly bool) error {
	m.mu.Lock()
	if m.phase != PhaseIdle {
		m.mu.Unlock()
		log.Debug().Str("module", "rtc").Str("phase", m.phase.String()).Msg("start ignored")
		return nil
	}
	if !viewOnly && m.backend == nil {
		m.mu.Unlock()
		return media.NewError(media.KindUnsupportedPlatform, errors.New("no capture backend"))
	}
	m.phase = PhaseAcquiring
	m.mu.Unlock()

	var local *media.LocalMedia
	if !viewOnly {
		lm, err := media.Acquire(ctx, m.backend, true, true)
		if err != nil {
			m.setPhase(PhaseIdle)
			return fmt.Errorf("acquire local media: %w", err)
		}
		local = lm
	}

	m.setPhase(PhaseSignaling)

	ch := signal.NewChannel(m.sess, m.tr)
	ch.OnSignal(m.dispatch)
	if err := ch.Open(ctx); err != nil {
		if local != nil {
			local.StopAll()
		}
		m.setPhase(PhaseIdle)
		return fmt.Errorf("open signal channel: %w", err)
	}

	// Session lifetime is bounded by Disconnect, not the start ctx.
	sctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.local = local
	m.channel = ch
	m.ctx = sctx
	m.cancel = cancel
	m.phase = PhaseActive
	m.mu.Unlock()

	log.Info().Str("module", "rtc").
		Str("topic", m.sess.Topic()).
		Str("self", string(m.sess.Self)).
		Bool("view_only", viewOnly).
		Msg("session started")
	return nil
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// ConnectToPeer is the offerer path: create the connection, attach
// local tracks, send the offer. A call for a peer that already has an
// entry is a duplicate and is ignored.
func (m *Manager) ConnectToPeer(peer domain.PeerID) error {
	m.mu.Lock()
	if m.phase != PhaseActive {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if _, ok := m.peers[peer]; ok {
		m.mu.Unlock()
		log.Warn().Str("module", "rtc").Str("peer", string(peer)).Msg("duplicate connect ignored")
		return nil
	}
	entry, err := m.newEntryLocked(peer, true)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	ch, ctx := m.channel, m.ctx
	m.mu.Unlock()

	offer, err := entry.link.CreateOffer()
	if err != nil {
		m.removeEntry(peer, entry, false)
		return fmt.Errorf("create offer for %s: %w", peer, err)
	}
	if err := ch.Send(ctx, domain.Signal{Type: domain.SignalOffer, To: peer, SDP: offer}); err != nil {
		m.removeEntry(peer, entry, false)
		return fmt.Errorf("send offer to %s: %w", peer, err)
	}
	log.Info().Str("module", "rtc").Str("peer", string(peer)).Msg("offer sent")
	return nil
}

// newEntryLocked builds, wires and registers a connection entry.
// Caller holds m.mu.
func (m *Manager) newEntryLocked(peer domain.PeerID, offerer bool) (*peerEntry, error) {
	link, err := m.links()
	if err != nil {
		return nil, fmt.Errorf("new link for %s: %w", peer, err)
	}
	e := &peerEntry{link: link, offerer: offerer}
	m.wire(peer, e)
	if m.local != nil {
		for _, t := range m.local.Tracks() {
			if err := link.AttachTrack(t); err != nil {
				link.Close()
				return nil, err
			}
		}
	}
	if err := link.Start(); err != nil {
		link.Close()
		return nil, fmt.Errorf("start link for %s: %w", peer, err)
	}
	e.timer = time.AfterFunc(m.timeout, func() { m.expire(peer, e) })
	m.peers[peer] = e
	return e, nil
}

// wire registers the event handlers for one entry. The same block
// serves the offerer and answerer paths.
func (m *Manager) wire(peer domain.PeerID, e *peerEntry) {
	e.link.OnICECandidate(func(c domain.Candidate) {
		m.mu.Lock()
		ch, ctx := m.channel, m.ctx
		m.mu.Unlock()
		if ch == nil {
			return
		}
		// Candidates go out the moment they are discovered.
		sig := domain.Signal{Type: domain.SignalCandidate, To: peer, Candidate: &c}
		if err := ch.Send(ctx, sig); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("peer", string(peer)).Msg("send candidate")
		}
	})

	e.link.OnRemoteStream(func(s core.RemoteStream) {
		m.mu.Lock()
		cur, ok := m.peers[peer]
		if !ok || cur != e || (e.stream != nil && e.stream.ID() == s.ID()) {
			m.mu.Unlock()
			return
		}
		e.stream = s
		m.settleLocked(e)
		m.mu.Unlock()
		log.Info().Str("module", "rtc").Str("peer", string(peer)).Str("stream", s.ID()).Msg("remote stream")
		if m.cb.OnRemoteStream != nil {
			m.cb.OnRemoteStream(peer, s)
		}
	})

	e.link.OnStateChange(func(st core.LinkState) {
		if st == core.LinkConnected {
			m.mu.Lock()
			if cur, ok := m.peers[peer]; ok && cur == e {
				m.settleLocked(e)
			}
			m.mu.Unlock()
			return
		}
		if st.Terminal() {
			log.Info().Str("module", "rtc").Str("peer", string(peer)).Str("state", st.String()).Msg("link terminal")
			m.removeEntry(peer, e, true)
		}
	})
}

// settleLocked marks negotiation complete and disarms the timeout.
func (m *Manager) settleLocked(e *peerEntry) {
	e.settled = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// expire fires when negotiation never completed; treated exactly like
// a connection failure.
func (m *Manager) expire(peer domain.PeerID, e *peerEntry) {
	m.mu.Lock()
	cur, ok := m.peers[peer]
	settled := ok && cur.settled
	m.mu.Unlock()
	if !ok || cur != e || settled {
		return
	}
	log.Warn().Str("module", "rtc").Str("peer", string(peer)).Dur("timeout", m.timeout).Msg("negotiation timed out")
	m.removeEntry(peer, e, true)
}

func (m *Manager) dispatch(sig domain.Signal) {
	switch sig.Type {
	case domain.SignalOffer:
		if sig.To != m.sess.Self {
			return
		}
		m.handleOffer(sig)
	case domain.SignalAnswer:
		if sig.To != m.sess.Self {
			return
		}
		m.handleAnswer(sig)
	case domain.SignalCandidate:
		if sig.To != m.sess.Self {
			return
		}
		m.handleCandidate(sig)
	case domain.SignalPeerGone:
		m.removeEntry(sig.PeerID, nil, true)
	}
}

// handleOffer is the answerer path, mirroring ConnectToPeer's wiring.
func (m *Manager) handleOffer(sig domain.Signal) {
	m.mu.Lock()
	if m.phase != PhaseActive {
		m.mu.Unlock()
		return
	}
	var stale core.PeerLink
	if existing, ok := m.peers[sig.From]; ok {
		// Glare: both sides offered at once. The lexicographically
		// smaller id keeps the offerer role; the other yields.
		if m.sess.Self < sig.From {
			m.mu.Unlock()
			log.Warn().Str("module", "rtc").Str("peer", string(sig.From)).Msg("glare: keeping offerer role, inbound offer ignored")
			return
		}
		log.Warn().Str("module", "rtc").Str("peer", string(sig.From)).Msg("glare: yielding offerer role")
		delete(m.peers, sig.From)
		if existing.timer != nil {
			existing.timer.Stop()
			existing.timer = nil
		}
		stale = existing.link
	}
	entry, err := m.newEntryLocked(sig.From, false)
	if err != nil {
		m.mu.Unlock()
		if stale != nil {
			stale.Close()
		}
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(sig.From)).Msg("answerer entry")
		return
	}
	ch, ctx := m.channel, m.ctx
	m.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	answer, err := entry.link.HandleOffer(sig.SDP)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(sig.From)).Msg("apply offer")
		m.removeEntry(sig.From, entry, false)
		return
	}
	if err := ch.Send(ctx, domain.Signal{Type: domain.SignalAnswer, To: sig.From, SDP: answer}); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(sig.From)).Msg("send answer")
		m.removeEntry(sig.From, entry, false)
		return
	}
	log.Info().Str("module", "rtc").Str("peer", string(sig.From)).Msg("answer sent")
}

// handleAnswer applies a remote answer. An answer for an unknown peer
// is a protocol violation: the remote will never complete negotiation,
// so it is reported rather than silently ignored.
func (m *Manager) handleAnswer(sig domain.Signal) {
	m.mu.Lock()
	e, ok := m.peers[sig.From]
	if !ok {
		m.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrUnknownPeer, sig.From)
		log.Error().Str("module", "rtc").Str("peer", string(sig.From)).Msg("answer for unknown peer")
		if m.cb.OnProtocolError != nil {
			m.cb.OnProtocolError(sig.From, err)
		}
		return
	}
	m.settleLocked(e)
	m.mu.Unlock()

	if err := e.link.HandleAnswer(sig.SDP); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(sig.From)).Msg("apply answer")
		m.removeEntry(sig.From, e, true)
	}
}

// handleCandidate adds a remote candidate. Candidates can race ahead
// of answer delivery; one for an unknown peer is dropped, not fatal.
func (m *Manager) handleCandidate(sig domain.Signal) {
	if sig.Candidate == nil {
		return
	}
	m.mu.Lock()
	e, ok := m.peers[sig.From]
	m.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "rtc").Str("peer", string(sig.From)).Msg("orphaned candidate dropped")
		return
	}
	if err := e.link.AddICECandidate(*sig.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("peer", string(sig.From)).Msg("add candidate")
	}
}

// removeEntry tears down one peer without touching the others. When e
// is non-nil the removal only applies if the map still holds that
// exact entry, so a stale link's events cannot evict a replacement.
func (m *Manager) removeEntry(peer domain.PeerID, e *peerEntry, notify bool) {
	m.mu.Lock()
	cur, ok := m.peers[peer]
	if !ok || (e != nil && cur != e) {
		m.mu.Unlock()
		return
	}
	delete(m.peers, peer)
	if cur.timer != nil {
		cur.timer.Stop()
		cur.timer = nil
	}
	m.mu.Unlock()

	cur.link.Close()
	log.Info().Str("module", "rtc").Str("peer", string(peer)).Msg("peer removed")
	if notify && m.cb.OnPeerDisconnected != nil {
		m.cb.OnPeerDisconnected(peer)
	}
}

// ToggleVideo flips the mute flag on every local video track. No
// renegotiation happens. No-op without local media.
func (m *Manager) ToggleVideo(enabled bool) {
	m.mu.Lock()
	local := m.local
	m.mu.Unlock()
	if local == nil {
		return
	}
	local.SetVideoEnabled(enabled)
}

// ToggleAudio flips the mute flag on every local audio track.
func (m *Manager) ToggleAudio(enabled bool) {
	m.mu.Lock()
	local := m.local
	m.mu.Unlock()
	if local == nil {
		return
	}
	local.SetAudioEnabled(enabled)
}

// Disconnect announces departure, closes every connection, stops all
// local tracks and returns the session to idle. Idempotent; cleanup
// failures are logged, never returned.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.phase == PhaseIdle || m.phase == PhaseDisconnecting {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseDisconnecting
	ch := m.channel
	local := m.local
	peers := m.peers
	ctx, cancel := m.ctx, m.cancel
	m.channel = nil
	m.local = nil
	m.peers = make(map[domain.PeerID]*peerEntry)
	m.ctx, m.cancel = nil, nil
	m.mu.Unlock()

	if ch != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		ch.Close(ctx)
	}
	for peer, e := range peers {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.link.Close()
		log.Debug().Str("module", "rtc").Str("peer", string(peer)).Msg("link closed")
	}
	if local != nil {
		local.StopAll()
	}
	if cancel != nil {
		cancel()
	}

	m.setPhase(PhaseIdle)
	log.Info().Str("module", "rtc").Str("topic", m.sess.Topic()).Msg("session disconnected")
}
