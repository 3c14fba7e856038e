package client

import (
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
)

// synchronize makes the mirror match a full snapshot. Applying the same
// snapshot twice changes nothing the second time.
func (r *Room) synchronize(state protocol.RoomState) {
	seen := make(map[domain.PeerID]bool, len(state.Peers))
	for _, ps := range state.Peers {
		seen[ps.ID] = true
		p, known := r.peers[ps.ID]
		if !known {
			if p = r.createPeer(ps.ID, ps.Role, ps.Partner, ps.IceServers, ps.ForceRelay); p == nil {
				continue
			}
			for _, t := range ps.Tracks {
				r.addTrack(p, t)
			}
			p.neg.Start(r.ctx)
		} else {
			r.reconcileTracks(p, ps.Tracks)
		}
		if ps.NegotiationRole != nil {
			r.resume(p, *ps.NegotiationRole)
		}
		for _, c := range ps.IceCandidates {
			p.neg.RemoteCandidate(c)
		}
	}
	for _, id := range r.peerIDs() {
		if !seen[id] {
			r.removePeer(id)
		}
	}
	r.resendIntents()
	r.log.Info().Int("peers", len(r.peers)).Int("tracks", len(r.tracks)).Msg("state synchronized")
}

// resume restarts a round the coordinator still waits for. An offer made
// during the outage may never have arrived, so the offerer makes a new one.
func (r *Room) resume(p *Peer, role protocol.NegotiationRole) {
	if role.Role == negotiation.Offerer {
		p.neg.Reoffer()
		return
	}
	p.neg.RemoteOffer(role.SdpOffer)
}
