package domain

// SignalType discriminates the signaling message union.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalPeerGone  SignalType = "peer-disconnected"
)

// Candidate is a discovered ICE candidate as it travels over the wire.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

// Signal is one signaling message. Offer/answer carry SDP and are
// addressed peer-to-peer via From/To; candidate carries Candidate the
// same way; peer-disconnected is a broadcast carrying only PeerID.
// Signals are transient and never persisted.
type Signal struct {
	Type      SignalType `json:"type"`
	From      PeerID     `json:"from,omitempty"`
	To        PeerID     `json:"to,omitempty"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
	PeerID    PeerID     `json:"peerId,omitempty"`
}
