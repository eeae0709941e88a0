package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewSession(t *testing.T) {
	cases := []struct {
		name string
		kind RoomKind
		room RoomID
		self PeerID
		err  error
	}{
		{"circle", KindCircle, "r1", "u1", nil},
		{"stream", KindStream, "r1", "u1", nil},
		{"empty kind defaults", "", "r1", "u1", nil},
		{"empty room", KindCircle, "", "u1", ErrRoomEmpty},
		{"empty peer", KindCircle, "r1", "", ErrPeerIDEmpty},
		{"peer too long", KindCircle, "r1", PeerID(strings.Repeat("x", MaxPeerIDLen+1)), ErrPeerIDTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSession(tc.kind, tc.room, tc.self)
			if !errors.Is(err, tc.err) {
				t.Errorf("NewSession = %v, want %v", err, tc.err)
			}
		})
	}
}

func TestSessionTopic(t *testing.T) {
	sess, err := NewSession(KindCircle, "r1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got := sess.Topic(); got != "circle:r1:webrtc" {
		t.Errorf("Topic() = %q, want %q", got, "circle:r1:webrtc")
	}

	sess, _ = NewSession("", "r2", "u1")
	if got := sess.Topic(); got != "stream:r2:webrtc" {
		t.Errorf("Topic() = %q, want %q", got, "stream:r2:webrtc")
	}
}

func TestSignalJSONShape(t *testing.T) {
	idx := uint16(0)
	sig := Signal{
		Type: SignalCandidate,
		From: "u1",
		To:   "u2",
		Candidate: &Candidate{
			Candidate:     "candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host",
			SDPMid:        "0",
			SDPMLineIndex: idx,
		},
	}
	data, err := json.Marshal(sig)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Signal
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != SignalCandidate || decoded.From != "u1" || decoded.To != "u2" {
		t.Errorf("roundtrip lost addressing: %+v", decoded)
	}
	if decoded.Candidate == nil || decoded.Candidate.SDPMid != "0" {
		t.Errorf("roundtrip lost candidate: %+v", decoded.Candidate)
	}

	// Departure announcements carry peerId, not from/to.
	gone, _ := json.Marshal(Signal{Type: SignalPeerGone, PeerID: "u1"})
	if !strings.Contains(string(gone), `"peerId":"u1"`) {
		t.Errorf("unexpected departure encoding: %s", gone)
	}
}
