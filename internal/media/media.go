// Package media wraps local camera/microphone capture with typed
// failure classification and the audio-only degradation policy.
package media

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
)

// Backend performs one raw capture attempt against the platform.
type Backend interface {
	Capture(ctx context.Context, video, audio bool) (*LocalMedia, error)
}

// LocalMedia owns the acquired local tracks for one session. Owned
// exclusively by the manager; observers only read it.
type LocalMedia struct {
	tracks []core.LocalTrack
}

func NewLocalMedia(tracks ...core.LocalTrack) *LocalMedia {
	return &LocalMedia{tracks: tracks}
}

func (m *LocalMedia) Tracks() []core.LocalTrack { return m.tracks }

func (m *LocalMedia) VideoTracks() []core.LocalTrack { return m.byKind(core.TrackVideo) }

func (m *LocalMedia) AudioTracks() []core.LocalTrack { return m.byKind(core.TrackAudio) }

func (m *LocalMedia) byKind(kind core.TrackKind) []core.LocalTrack {
	var out []core.LocalTrack
	for _, t := range m.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// SetVideoEnabled flips the mute flag on every video track.
func (m *LocalMedia) SetVideoEnabled(enabled bool) {
	for _, t := range m.byKind(core.TrackVideo) {
		t.SetEnabled(enabled)
	}
}

// SetAudioEnabled flips the mute flag on every audio track.
func (m *LocalMedia) SetAudioEnabled(enabled bool) {
	for _, t := range m.byKind(core.TrackAudio) {
		t.SetEnabled(enabled)
	}
}

// StopAll stops every track and drops them.
func (m *LocalMedia) StopAll() {
	for _, t := range m.tracks {
		t.Stop()
	}
	m.tracks = nil
}

// Acquire requests local media from the backend. When a video request
// fails because the device is claimed elsewhere, it retries exactly
// once with audio only; any other failure, or a failed retry, is
// surfaced classified.
func Acquire(ctx context.Context, b Backend, video, audio bool) (*LocalMedia, error) {
	lm, err := b.Capture(ctx, video, audio)
	if err == nil {
		return lm, nil
	}
	if video && KindOf(err) == KindDeviceBusy {
		log.Warn().Str("module", "media").Err(err).Msg("camera busy, retrying audio-only")
		return b.Capture(ctx, false, true)
	}
	return nil, err
}
