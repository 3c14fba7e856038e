package app

import (
	"fmt"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
)

// HandleCommand applies one command of a connected member.
func (r *Room) HandleCommand(from domain.MemberID, cmd protocol.Command) error {
	r.lock()
	defer r.unlock()
	if r.closed {
		return ErrRoomClosed
	}
	m, ok := r.members[from]
	if !ok || !m.present() {
		return ErrNotConnected
	}
	switch cmd := cmd.(type) {
	case protocol.MakeSdpOffer:
		return r.handleOffer(from, cmd)
	case protocol.MakeSdpAnswer:
		return r.handleAnswer(from, cmd)
	case protocol.SetIceCandidate:
		return r.handleCandidate(from, cmd)
	case protocol.AddPeerConnectionMetrics:
		return r.handleMetrics(from, cmd)
	case protocol.UpdateTracks:
		return r.handleUpdateTracks(from, cmd)
	case protocol.SynchronizeMe:
		state := r.snapshot(from)
		for _, ps := range state.Peers {
			// the snapshot supersedes anything queued for this side
			p := r.peers[ps.ID]
			p.pending = nil
			if ps.NegotiationRole != nil && ps.NegotiationRole.Role == negotiation.Offerer {
				p.renegotiate = false
			}
		}
		r.send(from, protocol.StateSynchronized{State: state})
		return nil
	}
	return fmt.Errorf("unsupported command %T", cmd)
}

// Snapshot returns everything the member's client is expected to know.
func (r *Room) Snapshot(id domain.MemberID) protocol.RoomState {
	r.lock()
	defer r.unlock()
	return r.snapshot(id)
}

func (r *Room) snapshot(id domain.MemberID) protocol.RoomState {
	state := protocol.RoomState{Peers: []protocol.PeerState{}}
	for _, oid := range r.order {
		ids, ok := r.pairs[keyOf(id, oid)]
		if !ok || oid == id {
			continue
		}
		p := r.peers[ids[0]]
		if p.member != id {
			p = r.peers[ids[1]]
		}
		if !p.created {
			continue
		}
		state.Peers = append(state.Peers, r.peerState(p))
	}
	return state
}

func (r *Room) peerState(p *peer) protocol.PeerState {
	ps := protocol.PeerState{
		ID:               p.id,
		Partner:          p.partnerMember,
		Role:             p.role,
		Tracks:           r.views(p),
		IceServers:       r.iceServers(),
		ForceRelay:       p.forceRelay,
		NegotiationState: p.state,
		LocalSdp:         p.localSDP,
		RemoteSdp:        p.remoteSDP,
	}
	switch {
	case p.state == negotiation.HaveRemoteOffer:
		ps.NegotiationRole = protocol.AnswererRole(p.remoteSDP)
	case p.role == negotiation.Offerer && p.state == negotiation.Stable && (p.renegotiate || p.localSDP == ""):
		ps.NegotiationRole = protocol.OffererRole()
	}
	ufrag := negotiation.IceUfrag(p.remoteSDP)
	for _, c := range p.candidates {
		if c.UsernameFragment == "" || ufrag == "" || c.UsernameFragment == ufrag {
			ps.IceCandidates = append(ps.IceCandidates, c)
		}
	}
	return ps
}
