package negotiation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	name       string
	seq        int
	local      string
	remote     string
	remotes    []string
	candidates []Candidate
	rollbacks  int
	offerErr   error
}

func (d *fakeDriver) CreateOffer(context.Context) (string, error) {
	if d.offerErr != nil {
		return "", d.offerErr
	}
	d.seq++
	return fmt.Sprintf("offer-%s-%d", d.name, d.seq), nil
}

func (d *fakeDriver) CreateAnswer(context.Context) (string, error) {
	d.seq++
	return fmt.Sprintf("answer-%s-%d", d.name, d.seq), nil
}

func (d *fakeDriver) SetLocalDescription(_ context.Context, _ SdpKind, sdp string) error {
	d.local = sdp
	return nil
}

func (d *fakeDriver) SetRemoteDescription(_ context.Context, _ SdpKind, sdp string) error {
	d.remote = sdp
	d.remotes = append(d.remotes, sdp)
	return nil
}

func (d *fakeDriver) AddICECandidate(_ context.Context, c Candidate) error {
	d.candidates = append(d.candidates, c)
	return nil
}

func (d *fakeDriver) Rollback(context.Context) error {
	d.rollbacks++
	d.local = ""
	return nil
}

type wire struct {
	kind SdpKind
	from domain.PeerID
	sdp  string
}

type fakeSignaler struct {
	out []wire
}

func (s *fakeSignaler) SendOffer(peer domain.PeerID, sdp string) {
	s.out = append(s.out, wire{kind: SdpOffer, from: peer, sdp: sdp})
}

func (s *fakeSignaler) SendAnswer(peer domain.PeerID, sdp string) {
	s.out = append(s.out, wire{kind: SdpAnswer, from: peer, sdp: sdp})
}

func (s *fakeSignaler) take() []wire {
	out := s.out
	s.out = nil
	return out
}

type side struct {
	n   *Negotiator
	d   *fakeDriver
	sig *fakeSignaler
}

func newSide(name string, peer domain.PeerID, role Role) side {
	d := &fakeDriver{name: name}
	sig := &fakeSignaler{}
	return side{n: NewNegotiator(peer, role, d, sig, nil), d: d, sig: sig}
}

func deliver(ctx context.Context, to side, msgs []wire) {
	for _, w := range msgs {
		if w.kind == SdpOffer {
			to.n.process(ctx, remoteOffer{sdp: w.sdp})
		} else {
			to.n.process(ctx, remoteAnswer{sdp: w.sdp})
		}
	}
}

func TestOfferAnswerRound(t *testing.T) {
	ctx := context.Background()
	a := newSide("a", 1, Offerer)
	b := newSide("b", 2, Answerer)

	a.n.process(ctx, needNegotiation{})
	assert.Equal(t, HaveLocalOffer, a.n.State())
	deliver(ctx, b, a.sig.take())
	assert.Equal(t, Stable, b.n.State())
	assert.Equal(t, "offer-a-1", b.d.remote)
	deliver(ctx, a, b.sig.take())
	assert.Equal(t, Stable, a.n.State())
	assert.Equal(t, "answer-b-1", a.d.remote)
}

func TestGlareConvergesOnOffererOffer(t *testing.T) {
	ctx := context.Background()
	a := newSide("a", 1, Offerer)
	b := newSide("b", 2, Answerer)

	a.n.process(ctx, needNegotiation{})
	b.n.process(ctx, needNegotiation{})
	require.Equal(t, HaveLocalOffer, a.n.State())
	require.Equal(t, HaveLocalOffer, b.n.State())

	for round := 0; round < 4; round++ {
		fromA, fromB := a.sig.take(), b.sig.take()
		if len(fromA) == 0 && len(fromB) == 0 {
			break
		}
		deliver(ctx, b, fromA)
		deliver(ctx, a, fromB)
	}

	assert.Equal(t, Stable, a.n.State())
	assert.Equal(t, Stable, b.n.State())
	assert.Equal(t, 0, a.d.rollbacks)
	assert.Equal(t, 1, b.d.rollbacks)
	require.NotEmpty(t, b.d.remotes)
	assert.Equal(t, "offer-a-1", b.d.remotes[0])
	// deferred renegotiation of the answerer ran after the offerer's round
	assert.Contains(t, a.d.remotes, "offer-b-3")
}

func TestNeedNegotiationDeferredUntilStable(t *testing.T) {
	ctx := context.Background()
	a := newSide("a", 1, Offerer)
	b := newSide("b", 2, Answerer)

	a.n.process(ctx, needNegotiation{})
	a.n.process(ctx, needNegotiation{})
	offers := a.sig.take()
	require.Len(t, offers, 1)

	deliver(ctx, b, offers)
	deliver(ctx, a, b.sig.take())
	second := a.sig.take()
	require.Len(t, second, 1)
	assert.Equal(t, SdpOffer, second[0].kind)
	assert.Equal(t, HaveLocalOffer, a.n.State())
}

func TestRemoteCandidatesWaitForDescription(t *testing.T) {
	ctx := context.Background()
	b := newSide("b", 2, Answerer)

	b.n.process(ctx, remoteCandidate{c: Candidate{Candidate: "c1"}})
	assert.Empty(t, b.d.candidates)
	b.n.process(ctx, remoteOffer{sdp: "offer"})
	assert.Len(t, b.d.candidates, 1)
	b.n.process(ctx, remoteCandidate{c: Candidate{Candidate: "c2"}})
	assert.Len(t, b.d.candidates, 2)
}

func TestDriverFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	d := &fakeDriver{name: "a", offerErr: errors.New("boom")}
	var failed error
	n := NewNegotiator(1, Offerer, d, &fakeSignaler{}, func(err error) { failed = err })

	n.process(ctx, needNegotiation{})
	assert.Equal(t, Failed, n.State())
	assert.EqualError(t, failed, "boom")

	n.process(ctx, remoteOffer{sdp: "x"})
	assert.Empty(t, d.remotes)
}

func TestClosedNegotiatorDropsInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := newSide("a", 1, Offerer)
	a.n.Start(ctx)
	a.n.Close()
	a.n.NeedNegotiation()

	select {
	case <-a.n.Done():
	case <-time.After(time.Second):
		t.Fatal("negotiator did not stop")
	}
	assert.Equal(t, Closed, a.n.State())
	assert.Empty(t, a.d.local)
}

func TestMailboxRunsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := newSide("b", 2, Answerer)
	b.n.Start(ctx)

	b.n.RemoteCandidate(Candidate{Candidate: "c1"})
	b.n.RemoteOffer("offer")
	b.n.Close()

	select {
	case <-b.n.Done():
	case <-time.After(time.Second):
		t.Fatal("negotiator did not stop")
	}
	assert.Equal(t, "offer", b.d.remote)
	assert.Len(t, b.d.candidates, 1)
}

func TestReofferReplacesLostOffer(t *testing.T) {
	ctx := context.Background()
	a := newSide("a", 1, Offerer)
	b := newSide("b", 2, Answerer)

	a.n.process(ctx, needNegotiation{})
	require.Len(t, a.sig.take(), 1)

	a.n.process(ctx, reoffer{})
	assert.Equal(t, 1, a.d.rollbacks)
	assert.Equal(t, HaveLocalOffer, a.n.State())
	out := a.sig.take()
	require.Len(t, out, 1)
	assert.Equal(t, "offer-a-2", out[0].sdp)

	deliver(ctx, b, out)
	deliver(ctx, a, b.sig.take())
	assert.Equal(t, Stable, a.n.State())
	assert.Equal(t, Stable, b.n.State())
}

func TestReofferFromStableOffersOnce(t *testing.T) {
	ctx := context.Background()
	a := newSide("a", 1, Offerer)

	a.n.process(ctx, reoffer{})
	assert.Zero(t, a.d.rollbacks)
	assert.Len(t, a.sig.take(), 1)
	assert.Equal(t, HaveLocalOffer, a.n.State())
}
