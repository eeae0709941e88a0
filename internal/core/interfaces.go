package core

import (
	"context"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
)

// Frame is a raw wire payload (JSON-encoded signal envelope).
type Frame []byte

// Transport is the broadcast bus the app signals over: a pub/sub
// channel keyed by topic. Implementations: Redis pub/sub, the relay
// websocket, and in-memory fakes in tests.
// Owned by the caller; the caller must close any Subscription it opens.
type Transport interface {
	Publish(ctx context.Context, topic string, data Frame) error
	Subscribe(ctx context.Context, topic string, fn func(Frame)) (Subscription, error)
}

type Subscription interface {
	Close() error
}

// TrackKind tells video from audio local tracks.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// LocalTrack is one captured device track. The enabled flag mutes the
// track for consumers without stopping capture or renegotiating.
type LocalTrack interface {
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	Stop()
}

// RemoteStream is an opaque handle for media received from a peer.
type RemoteStream interface {
	ID() string
	Kind() TrackKind
}

// LinkState mirrors the underlying connection lifecycle.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the link is past recovery and its entry
// should be torn down.
func (s LinkState) Terminal() bool {
	return s == LinkDisconnected || s == LinkFailed || s == LinkClosed
}

// PeerLink is the underlying per-peer connection object.
// Register callbacks first, then Start; Start performs the event
// wiring identically for the offerer and answerer paths.
type PeerLink interface {
	// Start binds the registered callbacks to the underlying connection.
	Start() error
	// Close should stop all underlying media resources.
	Close()

	// CreateOffer creates an SDP offer and applies it as the local description.
	CreateOffer() (string, error)
	// HandleOffer applies a remote offer, creates an answer and applies
	// it as the local description.
	HandleOffer(sdp string) (string, error)
	// HandleAnswer applies a remote answer as the remote description.
	HandleAnswer(sdp string) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(domain.Candidate) error
	// AttachTrack adds a local capture track to the connection.
	AttachTrack(LocalTrack) error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(domain.Candidate))
	// OnRemoteStream sets a callback invoked when remote media arrives.
	OnRemoteStream(func(RemoteStream))
	// OnStateChange sets a callback for connection state transitions.
	OnStateChange(func(LinkState))
}

// LinkFactory builds one fresh PeerLink per remote peer.
type LinkFactory func() (PeerLink, error)
