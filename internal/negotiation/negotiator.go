package negotiation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type SdpKind int

const (
	SdpOffer SdpKind = iota
	SdpAnswer
)

// Driver is the local media connection a Negotiator steers.
type Driver interface {
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	SetLocalDescription(ctx context.Context, kind SdpKind, sdp string) error
	SetRemoteDescription(ctx context.Context, kind SdpKind, sdp string) error
	AddICECandidate(ctx context.Context, c Candidate) error
	Rollback(ctx context.Context) error
}

// Signaler delivers local descriptions to the remote side.
type Signaler interface {
	SendOffer(peer domain.PeerID, sdp string)
	SendAnswer(peer domain.PeerID, sdp string)
}

type message interface{ isMessage() }

type (
	needNegotiation struct{}
	remoteOffer     struct{ sdp string }
	remoteAnswer    struct{ sdp string }
	remoteCandidate struct{ c Candidate }
	reoffer         struct{}
	closeMsg        struct{}
)

func (needNegotiation) isMessage() {}
func (remoteOffer) isMessage()     {}
func (remoteAnswer) isMessage()    {}
func (remoteCandidate) isMessage() {}
func (reoffer) isMessage()         {}
func (closeMsg) isMessage()        {}

// Negotiator runs the offer/answer rounds of one peer. Every input goes
// through an unbounded mailbox so callers never block on SDP work.
type Negotiator struct {
	peer     domain.PeerID
	role     Role
	driver   Driver
	signaler Signaler
	onFail   func(error)
	log      zerolog.Logger

	mu     sync.Mutex
	queue  []message
	notify chan struct{}
	done   chan struct{}

	state   atomic.Int32
	pending bool
	buf     CandidateBuffer
}

func NewNegotiator(peer domain.PeerID, role Role, d Driver, s Signaler, onFail func(error)) *Negotiator {
	if onFail == nil {
		onFail = func(error) {}
	}
	return &Negotiator{
		peer:     peer,
		role:     role,
		driver:   d,
		signaler: s,
		onFail:   onFail,
		log:      log.With().Str("module", "negotiation").Stringer("peer", peer).Logger(),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (n *Negotiator) Role() Role   { return n.role }
func (n *Negotiator) State() State { return State(n.state.Load()) }

// Start runs the mailbox until ctx ends or Close is processed.
func (n *Negotiator) Start(ctx context.Context) {
	go n.run(ctx)
}

func (n *Negotiator) NeedNegotiation()            { n.post(needNegotiation{}) }
func (n *Negotiator) RemoteOffer(sdp string)      { n.post(remoteOffer{sdp: sdp}) }
func (n *Negotiator) RemoteAnswer(sdp string)     { n.post(remoteAnswer{sdp: sdp}) }
func (n *Negotiator) RemoteCandidate(c Candidate) { n.post(remoteCandidate{c: c}) }

// Reoffer replaces an unanswered local offer with a fresh one. It recovers
// a round whose offer never reached the other side.
func (n *Negotiator) Reoffer() { n.post(reoffer{}) }

// Close drops the negotiator. Queued and later inputs are discarded.
func (n *Negotiator) Close() { n.post(closeMsg{}) }

// Done is closed once the negotiator stopped.
func (n *Negotiator) Done() <-chan struct{} { return n.done }

func (n *Negotiator) post(m message) {
	n.mu.Lock()
	n.queue = append(n.queue, m)
	n.mu.Unlock()
	select {
	case n.notify <- struct{}{}:
	default:
	}
}

func (n *Negotiator) run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			n.setState(Closed)
			return
		case <-n.notify:
		}
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				n.mu.Unlock()
				break
			}
			m := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()

			n.process(ctx, m)
			if n.State() == Closed {
				return
			}
		}
	}
}

func (n *Negotiator) setState(s State) { n.state.Store(int32(s)) }

func (n *Negotiator) process(ctx context.Context, m message) {
	state := n.State()
	if state == Closed {
		return
	}
	if _, ok := m.(closeMsg); ok {
		n.setState(Closed)
		n.buf.Reset()
		n.log.Debug().Msg("negotiator closed")
		return
	}
	if state == Failed {
		n.log.Warn().Msg("input ignored, negotiation failed")
		return
	}

	switch m := m.(type) {
	case needNegotiation:
		if state != Stable {
			n.pending = true
			n.log.Debug().Stringer("state", state).Msg("negotiation deferred")
			return
		}
		n.offer(ctx)
	case remoteOffer:
		n.handleRemoteOffer(ctx, state, m.sdp)
	case remoteAnswer:
		if state != HaveLocalOffer {
			n.log.Warn().Stringer("state", state).Msg("unexpected answer ignored")
			return
		}
		if err := n.driver.SetRemoteDescription(ctx, SdpAnswer, m.sdp); err != nil {
			n.fail(err)
			return
		}
		n.applyCandidates(ctx, n.buf.RemoteApplied(m.sdp))
		n.stable(ctx)
	case remoteCandidate:
		n.applyCandidates(ctx, n.buf.Push(m.c))
	case reoffer:
		switch state {
		case HaveRemoteOffer:
			n.pending = true
			return
		case HaveLocalOffer:
			if err := n.driver.Rollback(ctx); err != nil {
				n.fail(err)
				return
			}
			n.setState(Stable)
		}
		n.pending = false
		n.offer(ctx)
	}
}

func (n *Negotiator) offer(ctx context.Context) {
	sdp, err := n.driver.CreateOffer(ctx)
	if err != nil {
		n.fail(err)
		return
	}
	if err := n.driver.SetLocalDescription(ctx, SdpOffer, sdp); err != nil {
		n.fail(err)
		return
	}
	n.setState(HaveLocalOffer)
	n.signaler.SendOffer(n.peer, sdp)
}

func (n *Negotiator) handleRemoteOffer(ctx context.Context, state State, sdp string) {
	switch state {
	case HaveLocalOffer:
		if n.role == Offerer {
			n.log.Debug().Msg("glare: keeping local offer")
			return
		}
		n.log.Debug().Msg("glare: rolling back local offer")
		if err := n.driver.Rollback(ctx); err != nil {
			n.fail(err)
			return
		}
		n.pending = true
		n.setState(Stable)
	case HaveRemoteOffer:
		n.log.Warn().Msg("second remote offer ignored")
		return
	}

	n.buf.Hold()
	if err := n.driver.SetRemoteDescription(ctx, SdpOffer, sdp); err != nil {
		n.fail(err)
		return
	}
	n.setState(HaveRemoteOffer)
	n.applyCandidates(ctx, n.buf.RemoteApplied(sdp))

	answer, err := n.driver.CreateAnswer(ctx)
	if err != nil {
		n.fail(err)
		return
	}
	if err := n.driver.SetLocalDescription(ctx, SdpAnswer, answer); err != nil {
		n.fail(err)
		return
	}
	n.signaler.SendAnswer(n.peer, answer)
	n.stable(ctx)
}

func (n *Negotiator) stable(ctx context.Context) {
	n.setState(Stable)
	if n.pending {
		n.pending = false
		n.offer(ctx)
	}
}

func (n *Negotiator) applyCandidates(ctx context.Context, cs []Candidate) {
	for _, c := range cs {
		if err := n.driver.AddICECandidate(ctx, c); err != nil {
			n.log.Warn().Err(err).Msg("add ice candidate")
		}
	}
}

func (n *Negotiator) fail(err error) {
	n.setState(Failed)
	n.pending = false
	n.log.Error().Err(err).Msg("negotiation failed")
	n.onFail(err)
}
