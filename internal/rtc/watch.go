package rtc

import (
	"context"
	"sync"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/media"
)

// RemoteEntry pairs a peer with the stream received from it.
type RemoteEntry struct {
	Peer   domain.PeerID
	Stream core.RemoteStream
}

// Snapshot is a queryable view of the session for UI layers.
type Snapshot struct {
	Local      *media.LocalMedia
	Remotes    []RemoteEntry
	Connecting bool
	Err        error
}

// Watch wraps a Manager, folding its imperative callbacks into a
// snapshot. Close always disconnects, so an owner that forgets
// explicit teardown still releases the devices.
type Watch struct {
	mgr *Manager

	mu         sync.Mutex
	remotes    map[domain.PeerID]core.RemoteStream
	order      []domain.PeerID
	connecting bool
	err        error
}

// NewWatch builds the manager from opts with the watch's observers
// chained in front of any caller-supplied callbacks.
func NewWatch(opts Options) (*Watch, error) {
	w := &Watch{remotes: make(map[domain.PeerID]core.RemoteStream)}

	user := opts.Callbacks
	opts.Callbacks = Callbacks{
		OnRemoteStream: func(peer domain.PeerID, s core.RemoteStream) {
			w.mu.Lock()
			if _, ok := w.remotes[peer]; !ok {
				w.order = append(w.order, peer)
			}
			w.remotes[peer] = s
			w.mu.Unlock()
			if user.OnRemoteStream != nil {
				user.OnRemoteStream(peer, s)
			}
		},
		OnPeerDisconnected: func(peer domain.PeerID) {
			w.mu.Lock()
			delete(w.remotes, peer)
			for i, id := range w.order {
				if id == peer {
					w.order = append(w.order[:i], w.order[i+1:]...)
					break
				}
			}
			w.mu.Unlock()
			if user.OnPeerDisconnected != nil {
				user.OnPeerDisconnected(peer)
			}
		},
		OnProtocolError: func(peer domain.PeerID, err error) {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			if user.OnProtocolError != nil {
				user.OnProtocolError(peer, err)
			}
		},
	}

	mgr, err := NewManager(opts)
	if err != nil {
		return nil, err
	}
	w.mgr = mgr
	return w, nil
}

func (w *Watch) Manager() *Manager { return w.mgr }

func (w *Watch) Start(ctx context.Context, viewOnly bool) error {
	w.mu.Lock()
	w.connecting = true
	w.err = nil
	w.mu.Unlock()

	err := w.mgr.Start(ctx, viewOnly)

	w.mu.Lock()
	w.connecting = false
	w.err = err
	w.mu.Unlock()
	return err
}

func (w *Watch) ConnectToPeer(peer domain.PeerID) error { return w.mgr.ConnectToPeer(peer) }
func (w *Watch) ToggleVideo(enabled bool)               { w.mgr.ToggleVideo(enabled) }
func (w *Watch) ToggleAudio(enabled bool)               { w.mgr.ToggleAudio(enabled) }

func (w *Watch) Disconnect() {
	w.mgr.Disconnect()
	w.mu.Lock()
	w.remotes = make(map[domain.PeerID]core.RemoteStream)
	w.order = nil
	w.mu.Unlock()
}

// Close guarantees teardown on owner shutdown.
func (w *Watch) Close() { w.Disconnect() }

func (w *Watch) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	remotes := make([]RemoteEntry, 0, len(w.order))
	for _, peer := range w.order {
		remotes = append(remotes, RemoteEntry{Peer: peer, Stream: w.remotes[peer]})
	}
	return Snapshot{
		Local:      w.mgr.Local(),
		Remotes:    remotes,
		Connecting: w.connecting,
		Err:        w.err,
	}
}
