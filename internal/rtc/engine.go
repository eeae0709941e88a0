// Package rtc owns the per-room peer connection mesh: one manager per
// session drives offer/answer/ICE exchange for every remote peer.
package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"
)

const defaultVideoBitRate = 500_000

// DefaultSelector builds the VP8+Opus codec selector shared by device
// capture and the media engine.
func DefaultSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = defaultVideoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

// NewAPI builds the pion API with the selector's codecs and the
// default interceptor set registered.
func NewAPI(selector *mediadevices.CodecSelector) (*webrtc.API, error) {
	me := &webrtc.MediaEngine{}
	selector.Populate(me)

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
	), nil
}

// Configuration returns the connection config for the given STUN
// urls, defaulting to Google's public server.
func Configuration(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}
