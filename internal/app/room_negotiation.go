package app

import (
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
)

// renegotiate asks the pair's offerer for a new round once both sides are
// stable.
func (r *Room) renegotiate(a, b *peer) {
	o := a
	if o.role != negotiation.Offerer {
		o = b
	}
	o.renegotiate = true
	r.maybeRenegotiate(o)
}

func (r *Room) maybeRenegotiate(o *peer) {
	a, ok := r.peers[o.partner]
	if !ok || !o.renegotiate || !o.created {
		return
	}
	if o.state != negotiation.Stable || a.state != negotiation.Stable {
		r.log.Debug().Stringer("peer", o.id).Stringer("state", o.state).Stringer("partner_state", a.state).Msg("renegotiation deferred")
		return
	}
	if !r.connected(o.member) {
		// the snapshot of the resumed session carries the offerer role
		r.log.Debug().Stringer("peer", o.id).Str("member", string(o.member)).Msg("renegotiation kept for resync")
		return
	}
	o.renegotiate = false
	r.send(o.member, protocol.TracksApplied{
		PeerID:          o.id,
		Updates:         drain(o),
		NegotiationRole: protocol.OffererRole(),
	})
	if !r.connected(o.member) {
		o.renegotiate = true
	}
}

func (r *Room) connected(id domain.MemberID) bool {
	m, ok := r.members[id]
	return ok && m.state == memberConnected && m.conn != nil
}

func (r *Room) offererOf(p, q *peer) *peer {
	if p.role == negotiation.Offerer {
		return p
	}
	return q
}

func (r *Room) handleOffer(from domain.MemberID, cmd protocol.MakeSdpOffer) error {
	p, q, err := r.peerOf(from, cmd.PeerID)
	if err != nil {
		return err
	}
	lg := r.log.With().Str("member", string(from)).Stringer("peer", p.id).Logger()

	if p.state == negotiation.HaveRemoteOffer {
		if p.role != negotiation.Offerer {
			lg.Debug().Msg("glare: answerer offer ignored")
			return nil
		}
		lg.Debug().Msg("glare: partner offer rolled back")
		p.state, q.state = negotiation.Stable, negotiation.Stable
		p.remoteSDP = ""
	}

	ps, err := negotiation.Transition(p.state, negotiation.LocalOffer)
	if err != nil {
		lg.Warn().Err(err).Msg("offer rejected")
		return err
	}
	qs, err := negotiation.Transition(q.state, negotiation.RemoteOffer)
	if err != nil {
		lg.Warn().Err(err).Stringer("partner_state", q.state).Msg("offer rejected")
		return err
	}
	p.state, q.state = ps, qs
	p.localSDP, q.remoteSDP = cmd.SdpOffer, cmd.SdpOffer
	for id, mid := range cmd.Mids {
		if t, ok := r.tracks[id]; ok && (t.sender == from || t.receiver == from) {
			t.mid = mid
		}
	}

	if !q.created {
		q.created = true
		q.pending = nil
		r.send(q.member, protocol.PeerCreated{
			PeerID:          q.id,
			NegotiationRole: *protocol.AnswererRole(cmd.SdpOffer),
			Tracks:          r.views(q),
			IceServers:      r.iceServers(),
			ForceRelay:      q.forceRelay,
		})
		for _, c := range q.pendingCandidates {
			r.send(q.member, protocol.IceCandidateDiscovered{PeerID: q.id, Candidate: c})
		}
		q.pendingCandidates = nil
		return nil
	}
	r.send(q.member, protocol.TracksApplied{
		PeerID:          q.id,
		Updates:         drain(q),
		NegotiationRole: protocol.AnswererRole(cmd.SdpOffer),
	})
	return nil
}

func (r *Room) handleAnswer(from domain.MemberID, cmd protocol.MakeSdpAnswer) error {
	p, q, err := r.peerOf(from, cmd.PeerID)
	if err != nil {
		return err
	}
	ps, err := negotiation.Transition(p.state, negotiation.LocalAnswer)
	if err != nil {
		// An answer to an offer that lost a glare race.
		r.log.Debug().Err(err).Str("member", string(from)).Stringer("peer", p.id).Msg("stale answer ignored")
		return nil
	}
	qs, err := negotiation.Transition(q.state, negotiation.RemoteAnswer)
	if err != nil {
		r.log.Warn().Err(err).Stringer("peer", q.id).Msg("partner not waiting for an answer")
		return err
	}
	p.state, q.state = ps, qs
	p.localSDP, q.remoteSDP = cmd.SdpAnswer, cmd.SdpAnswer
	r.send(q.member, protocol.SdpAnswerMade{PeerID: q.id, SdpAnswer: cmd.SdpAnswer})
	r.maybeRenegotiate(r.offererOf(p, q))
	return nil
}

func (r *Room) handleCandidate(from domain.MemberID, cmd protocol.SetIceCandidate) error {
	_, q, err := r.peerOf(from, cmd.PeerID)
	if err != nil {
		return err
	}
	if cmd.Candidate.Candidate == "" {
		return nil
	}
	q.candidates = append(q.candidates, cmd.Candidate)
	if !q.created {
		q.pendingCandidates = append(q.pendingCandidates, cmd.Candidate)
		return nil
	}
	r.send(q.member, protocol.IceCandidateDiscovered{PeerID: q.id, Candidate: cmd.Candidate})
	return nil
}

// handleMetrics only tracks failure: a failed peer stays in the topology
// and never affects the rest of the room.
func (r *Room) handleMetrics(from domain.MemberID, cmd protocol.AddPeerConnectionMetrics) error {
	p, _, err := r.peerOf(from, cmd.PeerID)
	if err != nil {
		return err
	}
	failed := cmd.Metrics.Failed()
	if failed != p.failed {
		p.failed = failed
		r.log.Warn().Str("member", string(from)).Stringer("peer", p.id).Bool("failed", failed).
			Str("ice", cmd.Metrics.IceConnectionState).Str("pc", cmd.Metrics.PeerConnectionState).Msg("peer connection state")
	}
	return nil
}
