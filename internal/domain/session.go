// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
)

const MaxPeerIDLen = 36

var (
	ErrPeerIDEmpty   = errors.New("peer id empty")
	ErrPeerIDTooLong = errors.New("peer id too long")
	ErrRoomEmpty     = errors.New("room id empty")
)

type (
	PeerID string
	RoomID string
)

// RoomKind distinguishes the two signaling scopes the app has:
// one-to-many live streams and small group "circles".
type RoomKind string

const (
	KindStream RoomKind = "stream"
	KindCircle RoomKind = "circle"
)

// Session identifies one signaling scope: the room plus the local
// participant. Exactly one Session is active per manager instance.
type Session struct {
	Kind RoomKind
	Room RoomID
	Self PeerID
}

func NewSession(kind RoomKind, room RoomID, self PeerID) (Session, error) {
	if room == "" {
		return Session{}, ErrRoomEmpty
	}
	if self == "" {
		return Session{}, ErrPeerIDEmpty
	}
	if len(self) > MaxPeerIDLen {
		return Session{}, ErrPeerIDTooLong
	}
	if kind == "" {
		kind = KindStream
	}
	return Session{Kind: kind, Room: room, Self: self}, nil
}

// Topic is the broadcast-channel name the session signals on.
func (s Session) Topic() string {
	return fmt.Sprintf("%s:%s:webrtc", s.Kind, s.Room)
}
