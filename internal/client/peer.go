package client

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pkg/errors"
)

// Peer is the local side of a pairing with one remote member.
type Peer struct {
	id     domain.PeerID
	member domain.MemberID
	role   negotiation.Role
	conn   core.MediaConnection
	neg    *negotiation.Negotiator
	tracks map[domain.TrackID]*Track
	failed bool
}

type PeerInfo struct {
	ID     domain.PeerID
	Member domain.MemberID
	Role   negotiation.Role
	State  negotiation.State
	Tracks int
	Failed bool
}

func (p *Peer) info() PeerInfo {
	return PeerInfo{
		ID:     p.id,
		Member: p.member,
		Role:   p.role,
		State:  p.neg.State(),
		Tracks: len(p.tracks),
		Failed: p.failed,
	}
}

// signaler hands local descriptions to the coordinator.
type signaler struct {
	r    *Room
	conn core.MediaConnection
}

func (s signaler) SendOffer(peer domain.PeerID, sdp string) {
	s.r.sendLogged(protocol.MakeSdpOffer{PeerID: peer, SdpOffer: sdp, Mids: s.conn.Mids()})
}

func (s signaler) SendAnswer(peer domain.PeerID, sdp string) {
	s.r.sendLogged(protocol.MakeSdpAnswer{PeerID: peer, SdpAnswer: sdp})
}

// partnerOf finds the remote member from the tracks of a new peer.
func partnerOf(tracks []protocol.Track) domain.MemberID {
	for _, t := range tracks {
		if t.Direction == protocol.DirectionRecv && t.Sender != "" {
			return t.Sender
		}
		if len(t.Receivers) > 0 {
			return t.Receivers[0]
		}
	}
	return ""
}

// createPeer opens the media connection and the negotiator of a peer. The
// negotiator starts once the initial tracks are attached.
func (r *Room) createPeer(id domain.PeerID, role negotiation.Role, member domain.MemberID, ice []protocol.IceServer, forceRelay bool) *Peer {
	conn, err := r.media.NewConnection(r.ctx, id, ice, forceRelay)
	if err != nil {
		r.reportError(KindNegotiation, err, "peer %s", id)
		return nil
	}
	p := &Peer{id: id, member: member, role: role, conn: conn, tracks: make(map[domain.TrackID]*Track)}
	p.neg = negotiation.NewNegotiator(id, role, conn, signaler{r: r, conn: conn}, func(err error) {
		r.peerFailed(id, err)
	})
	conn.OnICECandidate(func(c negotiation.Candidate) {
		r.sendLogged(protocol.SetIceCandidate{PeerID: id, Candidate: c})
	})
	conn.OnConnectionState(func(state string) {
		r.sendLogged(protocol.AddPeerConnectionMetrics{PeerID: id, Metrics: protocol.PeerMetrics{PeerConnectionState: state}})
		if state == "failed" {
			r.peerFailed(id, errPeerConnectionFailed)
		}
	})

	if !r.hasPeerWith(member) {
		r.d.connection(member, true)
	}
	r.peers[id] = p
	r.log.Info().Stringer("peer", id).Stringer("role", role).Str("member", string(member)).Msg("peer created")
	return p
}

func (r *Room) hasPeerWith(member domain.MemberID) bool {
	for _, p := range r.peers {
		if p.member == member {
			return true
		}
	}
	return false
}

func (r *Room) onPeerCreated(ev protocol.PeerCreated) {
	if p, ok := r.peers[ev.PeerID]; ok {
		r.log.Debug().Stringer("peer", ev.PeerID).Msg("peer already known")
		r.reconcileTracks(p, ev.Tracks)
		return
	}
	p := r.createPeer(ev.PeerID, ev.NegotiationRole.Role, partnerOf(ev.Tracks), ev.IceServers, ev.ForceRelay)
	if p == nil {
		return
	}
	for _, t := range ev.Tracks {
		r.addTrack(p, t)
	}
	p.neg.Start(r.ctx)
	r.negotiate(p, ev.NegotiationRole)
}

func (r *Room) negotiate(p *Peer, role protocol.NegotiationRole) {
	if role.Role == negotiation.Offerer {
		p.neg.NeedNegotiation()
		return
	}
	p.neg.RemoteOffer(role.SdpOffer)
}

func (r *Room) onTracksApplied(ev protocol.TracksApplied) {
	p := r.peer(ev.PeerID, ev.EventName())
	if p == nil {
		return
	}
	for _, u := range ev.Updates {
		switch {
		case u.Added != nil:
			r.addTrack(p, *u.Added)
		case u.Removed != nil:
			r.removeTrack(p, *u.Removed)
		case u.Updated != nil:
			if t, ok := p.tracks[u.Updated.ID]; ok {
				r.patchTrack(p, t, *u.Updated)
			}
		}
	}
	if ev.NegotiationRole != nil {
		r.negotiate(p, *ev.NegotiationRole)
	}
}

// removePeer drops a peer with its negotiator. Late results of the
// negotiator are ignored because the peer is gone.
func (r *Room) removePeer(id domain.PeerID) {
	p, ok := r.peers[id]
	if !ok {
		return
	}
	p.neg.Close()
	for _, tid := range sortedTrackIDs(p.tracks) {
		r.removeTrack(p, tid)
	}
	if err := p.conn.Close(); err != nil {
		r.log.Debug().Err(err).Stringer("peer", id).Msg("media connection close")
	}
	delete(r.peers, id)
	if !r.hasPeerWith(p.member) {
		r.d.connection(p.member, false)
	}
	r.log.Info().Stringer("peer", id).Msg("peer removed")
}

// peerFailed marks a peer failed. The rest of the room is unaffected.
func (r *Room) peerFailed(id domain.PeerID, err error) {
	r.d.begin()
	defer r.d.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok || p.failed {
		return
	}
	p.failed = true
	r.log.Warn().Err(err).Stringer("peer", id).Msg("peer failed")
	if !errors.Is(err, errPeerConnectionFailed) {
		r.sendLogged(protocol.AddPeerConnectionMetrics{PeerID: id, Metrics: protocol.PeerMetrics{PeerConnectionState: "failed"}})
	}
	r.reportError(KindNegotiation, err, "peer %s", id)
}

func (r *Room) reportError(kind ErrorKind, err error, format string, args ...any) {
	e := newError(kind, err, format, args...)
	r.d.now(func() {
		if kind == KindMedia {
			call(r.d.cb.OnFailedLocalMedia, e)
			return
		}
		call(r.d.cb.OnError, e)
	})
}
