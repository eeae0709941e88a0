package media

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	// Register camera and microphone adapters with the driver manager.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
)

// Preferred capture resolution hint; the driver may negotiate down.
const (
	hintWidth  = 1280
	hintHeight = 720
)

var errNoDrivers = errors.New("no capture drivers registered")

// Devices is the platform-backed capture Backend.
type Devices struct {
	selector *mediadevices.CodecSelector
}

func NewDevices(selector *mediadevices.CodecSelector) *Devices {
	return &Devices{selector: selector}
}

// Supported reports whether any capture driver exists for the
// requested kinds. On platforms without camera/microphone adapters
// acquisition is unavailable outright.
func Supported(video, audio bool) bool {
	if video && len(driver.GetManager().Query(driver.FilterVideoRecorder())) == 0 {
		return false
	}
	if audio && len(driver.GetManager().Query(driver.FilterAudioRecorder())) == 0 {
		return false
	}
	return true
}

func (d *Devices) Capture(ctx context.Context, video, audio bool) (*LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !Supported(video, audio) {
		return nil, NewError(KindUnsupportedPlatform, errNoDrivers)
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(hintWidth)
			c.Height = prop.Int(hintHeight)
		}
	}
	if audio {
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, Classify(err)
	}

	tracks := make([]core.LocalTrack, 0, 2)
	for _, t := range stream.GetTracks() {
		tracks = append(tracks, newDeviceTrack(t))
	}
	log.Info().Str("module", "media").
		Bool("video", video).Bool("audio", audio).
		Int("tracks", len(tracks)).
		Msg("local media acquired")
	return NewLocalMedia(tracks...), nil
}

// deviceTrack adapts a mediadevices track to core.LocalTrack. The
// enabled flag is advisory mute state; capture keeps running so that
// re-enabling needs no renegotiation.
type deviceTrack struct {
	t       mediadevices.Track
	enabled atomic.Bool
}

func newDeviceTrack(t mediadevices.Track) *deviceTrack {
	dt := &deviceTrack{t: t}
	dt.enabled.Store(true)
	return dt
}

func (dt *deviceTrack) Kind() core.TrackKind {
	if dt.t.Kind() == webrtc.RTPCodecTypeAudio {
		return core.TrackAudio
	}
	return core.TrackVideo
}

func (dt *deviceTrack) Enabled() bool     { return dt.enabled.Load() }
func (dt *deviceTrack) SetEnabled(v bool) { dt.enabled.Store(v) }

func (dt *deviceTrack) Stop() {
	if err := dt.t.Close(); err != nil {
		log.Warn().Str("module", "media").Err(err).Str("track", dt.t.ID()).Msg("track close")
	}
}

// Unwrap exposes the underlying pion track for AddTrack.
func (dt *deviceTrack) Unwrap() webrtc.TrackLocal { return dt.t }
