package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
)

// Link implements core.PeerLink over a pion PeerConnection.
type Link struct {
	pc *webrtc.PeerConnection

	onICE    func(domain.Candidate)
	onStream func(core.RemoteStream)
	onState  func(core.LinkState)
}

// NewLinkFactory returns a core.LinkFactory producing pion-backed links.
func NewLinkFactory(api *webrtc.API, cfg webrtc.Configuration) core.LinkFactory {
	return func() (core.PeerLink, error) {
		return NewLink(api, cfg)
	}
}

func NewLink(api *webrtc.API, cfg webrtc.Configuration) (*Link, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Link{pc: pc}, nil
}

func (l *Link) OnICECandidate(fn func(domain.Candidate))  { l.onICE = fn }
func (l *Link) OnRemoteStream(fn func(core.RemoteStream)) { l.onStream = fn }
func (l *Link) OnStateChange(fn func(core.LinkState))     { l.onState = fn }

// Start binds the registered callbacks to the underlying connection.
// One wiring block serves both the offerer and answerer paths.
func (l *Link) Start() error {
	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return // gathering complete
		}
		ci := cand.ToJSON()
		out := domain.Candidate{Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			out.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			out.SDPMLineIndex = *ci.SDPMLineIndex
		}
		if l.onICE != nil {
			l.onICE(out)
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc.link").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if l.onStream != nil {
			l.onStream(&remoteTrack{track: track})
		}
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc.link").Str("peer_connection_state", s.String()).Msg("peer state")
		if l.onState != nil {
			l.onState(mapState(s))
		}
	})

	return nil
}

func (l *Link) CreateOffer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return offer.SDP, nil
}

func (l *Link) HandleOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return answer.SDP, nil
}

func (l *Link) HandleAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	return l.pc.SetRemoteDescription(answer)
}

func (l *Link) AddICECandidate(c domain.Candidate) error {
	ci := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		ci.SDPMid = &c.SDPMid
	}
	ci.SDPMLineIndex = &c.SDPMLineIndex
	return l.pc.AddICECandidate(ci)
}

func (l *Link) AttachTrack(t core.LocalTrack) error {
	wrapped, ok := t.(interface{ Unwrap() webrtc.TrackLocal })
	if !ok {
		return fmt.Errorf("track %T has no underlying pion track", t)
	}
	if _, err := l.pc.AddTrack(wrapped.Unwrap()); err != nil {
		return fmt.Errorf("add %s track: %w", t.Kind(), err)
	}
	return nil
}

func (l *Link) Close() {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc.link").Msg("close error")
	}
}

func mapState(s webrtc.PeerConnectionState) core.LinkState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return core.LinkNew
	case webrtc.PeerConnectionStateConnecting:
		return core.LinkConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		return core.LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		return core.LinkFailed
	case webrtc.PeerConnectionStateClosed:
		return core.LinkClosed
	}
	return core.LinkNew
}

// remoteTrack surfaces a received pion track as a core.RemoteStream,
// identified by its stream id so that the audio and video tracks of
// one peer stream collapse into a single arrival.
type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (r *remoteTrack) ID() string { return r.track.StreamID() }

func (r *remoteTrack) Kind() core.TrackKind {
	if r.track.Kind() == webrtc.RTPCodecTypeAudio {
		return core.TrackAudio
	}
	return core.TrackVideo
}

// Track exposes the underlying pion track for consumers that read RTP.
func (r *remoteTrack) Track() *webrtc.TrackRemote { return r.track }
