package rtc

import (
	"context"
	"testing"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
)

func newWatchHarness(t *testing.T) (*Watch, *harness) {
	t.Helper()
	sess, err := domain.NewSession(domain.KindStream, "r1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		tr:      newFakeTransport(),
		links:   &fakeLinks{},
		backend: &fakeBackend{},
		rec:     &recorder{},
		topic:   sess.Topic(),
	}
	w, err := NewWatch(Options{
		Session:   sess,
		Transport: h.tr,
		Links:     h.links.factory(),
		Backend:   h.backend,
		Callbacks: h.rec.callbacks(),
	})
	if err != nil {
		t.Fatal(err)
	}
	h.mgr = w.Manager()
	t.Cleanup(w.Close)
	return w, h
}

func TestWatch_SnapshotTracksRemotes(t *testing.T) {
	w, h := newWatchHarness(t)
	if err := w.Start(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := w.ConnectToPeer("u2"); err != nil {
		t.Fatal(err)
	}
	linkB := h.links.last()
	if err := w.ConnectToPeer("u3"); err != nil {
		t.Fatal(err)
	}
	linkC := h.links.last()

	linkB.onStream(fakeStream{id: "S2", kind: core.TrackVideo})
	linkC.onStream(fakeStream{id: "S3", kind: core.TrackVideo})

	snap := w.Snapshot()
	if snap.Local == nil {
		t.Error("expected local media in snapshot")
	}
	if snap.Connecting || snap.Err != nil {
		t.Errorf("unexpected snapshot status: connecting=%v err=%v", snap.Connecting, snap.Err)
	}
	if len(snap.Remotes) != 2 {
		t.Fatalf("expected 2 remotes, got %d", len(snap.Remotes))
	}
	// Arrival order is preserved.
	if snap.Remotes[0].Peer != "u2" || snap.Remotes[1].Peer != "u3" {
		t.Errorf("unexpected order: %v %v", snap.Remotes[0].Peer, snap.Remotes[1].Peer)
	}

	linkB.onState(core.LinkFailed)
	snap = w.Snapshot()
	if len(snap.Remotes) != 1 || snap.Remotes[0].Peer != "u3" {
		t.Errorf("expected only u3 after u2's failure, got %+v", snap.Remotes)
	}
}

func TestWatch_UserCallbacksStillFire(t *testing.T) {
	w, h := newWatchHarness(t)
	if err := w.Start(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := w.ConnectToPeer("u2"); err != nil {
		t.Fatal(err)
	}
	link := h.links.last()

	link.onStream(fakeStream{id: "S", kind: core.TrackVideo})
	if h.rec.streamCount() != 1 {
		t.Error("user stream callback not chained")
	}
	link.onState(core.LinkClosed)
	if gone := h.rec.goneList(); len(gone) != 1 || gone[0] != "u2" {
		t.Errorf("user disconnect callback not chained: %v", gone)
	}
}

func TestWatch_SnapshotSurfacesProtocolError(t *testing.T) {
	w, h := newWatchHarness(t)
	if err := w.Start(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	h.tr.deliver(t, h.topic, domain.Signal{Type: domain.SignalAnswer, From: "u9", To: "u1", SDP: "x"})

	snap := w.Snapshot()
	if snap.Err == nil {
		t.Error("expected protocol error in snapshot")
	}
	if h.rec.protoErrCount() != 1 {
		t.Error("user protocol-error callback not chained")
	}
}

func TestWatch_CloseDisconnectsAndClears(t *testing.T) {
	w, h := newWatchHarness(t)
	if err := w.Start(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := w.ConnectToPeer("u2"); err != nil {
		t.Fatal(err)
	}
	h.links.last().onStream(fakeStream{id: "S", kind: core.TrackVideo})

	w.Close()

	if w.Manager().Phase() != PhaseIdle {
		t.Error("expected session idle after close")
	}
	snap := w.Snapshot()
	if len(snap.Remotes) != 0 || snap.Local != nil {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
	w.Close()
}

func TestWatch_StartFailureInSnapshot(t *testing.T) {
	w, h := newWatchHarness(t)
	h.tr.subErr = context.DeadlineExceeded

	if err := w.Start(context.Background(), false); err == nil {
		t.Fatal("expected start failure")
	}
	snap := w.Snapshot()
	if snap.Err == nil {
		t.Error("expected error surfaced in snapshot")
	}
	if snap.Connecting {
		t.Error("expected connecting cleared")
	}
}
