package signal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dasavage21/BlazeMates-test-sub000/internal/core"
	"github.com/dasavage21/BlazeMates-test-sub000/internal/domain"
)

// echoTransport behaves like Redis pub/sub: publishers receive their
// own frames back.
type echoTransport struct {
	mu        sync.Mutex
	subs      map[string][]*echoSub
	published []core.Frame
}

func newEchoTransport() *echoTransport {
	return &echoTransport{subs: make(map[string][]*echoSub)}
}

func (t *echoTransport) Publish(_ context.Context, topic string, data core.Frame) error {
	t.mu.Lock()
	t.published = append(t.published, data)
	targets := append([]*echoSub(nil), t.subs[topic]...)
	t.mu.Unlock()
	for _, s := range targets {
		if !s.closed {
			s.fn(data)
		}
	}
	return nil
}

func (t *echoTransport) Subscribe(_ context.Context, topic string, fn func(core.Frame)) (core.Subscription, error) {
	s := &echoSub{fn: fn}
	t.mu.Lock()
	t.subs[topic] = append(t.subs[topic], s)
	t.mu.Unlock()
	return s, nil
}

func (t *echoTransport) subCount(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.subs[topic] {
		if !s.closed {
			n++
		}
	}
	return n
}

type echoSub struct {
	fn     func(core.Frame)
	closed bool
}

func (s *echoSub) Close() error {
	s.closed = true
	return nil
}

func testSession(t *testing.T) domain.Session {
	t.Helper()
	sess, err := domain.NewSession(domain.KindCircle, "r1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func openChannel(t *testing.T, tr core.Transport) (*Channel, *[]domain.Signal) {
	t.Helper()
	ch := NewChannel(testSession(t), tr)
	var got []domain.Signal
	ch.OnSignal(func(sig domain.Signal) { got = append(got, sig) })
	if err := ch.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return ch, &got
}

func TestChannel_SuppressesOwnEcho(t *testing.T) {
	tr := newEchoTransport()
	ch, got := openChannel(t, tr)

	err := ch.Send(context.Background(), domain.Signal{Type: domain.SignalOffer, To: "u2", SDP: "sdp"})
	if err != nil {
		t.Fatal(err)
	}
	if len(*got) != 0 {
		t.Fatalf("own offer echoed back to handler: %v", *got)
	}

	// Own departure announcements are filtered the same way.
	gone, _ := json.Marshal(domain.Signal{Type: domain.SignalPeerGone, PeerID: "u1"})
	_ = tr.Publish(context.Background(), testSession(t).Topic(), gone)
	if len(*got) != 0 {
		t.Fatalf("own peer-disconnected echoed back: %v", *got)
	}
}

func TestChannel_DeliversRemoteSignals(t *testing.T) {
	tr := newEchoTransport()
	ch, got := openChannel(t, tr)
	defer ch.Close(context.Background())

	topic := testSession(t).Topic()
	for _, sig := range []domain.Signal{
		{Type: domain.SignalOffer, From: "u2", To: "u1", SDP: "o"},
		{Type: domain.SignalAnswer, From: "u2", To: "u1", SDP: "a"},
		{Type: domain.SignalCandidate, From: "u2", To: "u1", Candidate: &domain.Candidate{Candidate: "c"}},
		{Type: domain.SignalPeerGone, PeerID: "u2"},
	} {
		data, _ := json.Marshal(sig)
		_ = tr.Publish(context.Background(), topic, data)
	}

	if len(*got) != 4 {
		t.Fatalf("expected 4 delivered signals, got %d", len(*got))
	}
	if (*got)[0].Type != domain.SignalOffer || (*got)[3].PeerID != "u2" {
		t.Errorf("signals delivered out of shape: %+v", *got)
	}
}

func TestChannel_IgnoresGarbageAndUnknownTypes(t *testing.T) {
	tr := newEchoTransport()
	ch, got := openChannel(t, tr)
	defer ch.Close(context.Background())

	topic := testSession(t).Topic()
	_ = tr.Publish(context.Background(), topic, core.Frame(`{not json`))
	_ = tr.Publish(context.Background(), topic, core.Frame(`{"type":"mystery","from":"u2"}`))

	if len(*got) != 0 {
		t.Fatalf("expected nothing delivered, got %v", *got)
	}
}

func TestChannel_SendStampsFrom(t *testing.T) {
	tr := newEchoTransport()
	ch, _ := openChannel(t, tr)
	defer ch.Close(context.Background())

	_ = ch.Send(context.Background(), domain.Signal{Type: domain.SignalOffer, To: "u2", SDP: "sdp"})

	var sent domain.Signal
	if err := json.Unmarshal(tr.published[0], &sent); err != nil {
		t.Fatal(err)
	}
	if sent.From != "u1" {
		t.Errorf("expected From stamped with local id, got %q", sent.From)
	}
}

func TestChannel_CloseAnnouncesDepartureThenUnsubscribes(t *testing.T) {
	tr := newEchoTransport()
	ch, _ := openChannel(t, tr)
	topic := testSession(t).Topic()

	ch.Close(context.Background())

	if len(tr.published) != 1 {
		t.Fatalf("expected one departure announcement, got %d frames", len(tr.published))
	}
	var gone domain.Signal
	if err := json.Unmarshal(tr.published[0], &gone); err != nil {
		t.Fatal(err)
	}
	if gone.Type != domain.SignalPeerGone || gone.PeerID != "u1" {
		t.Errorf("unexpected departure frame: %+v", gone)
	}
	if tr.subCount(topic) != 0 {
		t.Error("expected subscription closed")
	}

	// Idempotent: no second announcement, no error paths.
	ch.Close(context.Background())
	if len(tr.published) != 1 {
		t.Errorf("second close announced again: %d frames", len(tr.published))
	}

	if err := ch.Send(context.Background(), domain.Signal{Type: domain.SignalOffer, To: "u2"}); err != ErrChannelClosed {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}
}

func TestChannel_OpenIsIdempotent(t *testing.T) {
	tr := newEchoTransport()
	ch, _ := openChannel(t, tr)
	defer ch.Close(context.Background())

	if err := ch.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := tr.subCount(testSession(t).Topic()); n != 1 {
		t.Errorf("expected a single subscription, got %d", n)
	}
}
