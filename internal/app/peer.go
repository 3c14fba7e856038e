package app

import (
	"slices"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
)

// peer is one member's side of a pair. Both sides carry the same tracks.
type peer struct {
	id            domain.PeerID
	partner       domain.PeerID
	member        domain.MemberID
	partnerMember domain.MemberID
	role          negotiation.Role
	state         negotiation.State
	localSDP      string
	remoteSDP     string
	tracks        []domain.TrackID
	forceRelay    bool
	failed        bool

	// created is set once the member was told about the peer. The answerer
	// side learns about it together with the first offer.
	created bool
	// renegotiate is only set on the offerer side.
	renegotiate bool
	// pending holds the updates that travel with the next round.
	pending           []protocol.TrackUpdate
	pendingCandidates []protocol.IceCandidate
	candidates        []protocol.IceCandidate
}

type track struct {
	id       domain.TrackID
	sender   domain.MemberID
	receiver domain.MemberID
	publish  domain.EndpointID
	play     domain.EndpointID
	media    protocol.MediaType
	policy   domain.PublishPolicy
	mid      string

	sendEnabled bool
	recvEnabled bool
	muted       bool
}

func (t *track) general() bool      { return t.sendEnabled && t.recvEnabled }
func (t *track) bothDisabled() bool { return !t.sendEnabled && !t.recvEnabled }

// relation is a Play endpoint resolved against a Publish endpoint.
type relation struct {
	sender   *member
	receiver *member
	publish  domain.PublishEndpoint
	play     domain.PlayEndpoint
}

func (rel relation) forceRelay() bool { return rel.publish.ForceRelay || rel.play.ForceRelay }

// relationsFrom lists what receiver plays from sender.
func relationsFrom(sender, receiver *member) []relation {
	var out []relation
	for _, play := range receiver.spec.Play {
		if play.Src.Member != sender.spec.ID {
			continue
		}
		pub, ok := sender.spec.FindPublish(play.Src.Endpoint)
		if !ok {
			continue
		}
		out = append(out, relation{sender: sender, receiver: receiver, publish: pub, play: play})
	}
	return out
}

// linkMembers pairs a present member with a member that just joined. The
// side that was already present offers.
func (r *Room) linkMembers(present, joined *member) {
	rels := append(relationsFrom(present, joined), relationsFrom(joined, present)...)
	if len(rels) == 0 {
		return
	}
	offerer, answerer := r.newPair(present, joined)
	for _, rel := range rels {
		r.addTracks(rel, offerer, answerer)
	}
	r.announce(offerer)
}

// linkRelation wires a relation created while both members are present.
func (r *Room) linkRelation(rel relation) {
	ids, ok := r.pairs[keyOf(rel.sender.spec.ID, rel.receiver.spec.ID)]
	if !ok {
		offerer, answerer := r.newPair(rel.sender, rel.receiver)
		r.addTracks(rel, offerer, answerer)
		r.announce(offerer)
		return
	}
	a, b := r.peers[ids[0]], r.peers[ids[1]]
	for _, t := range r.addTracks(rel, a, b) {
		r.queue(a, protocol.Added(r.view(a, t)))
		r.queue(b, protocol.Added(r.view(b, t)))
	}
	r.renegotiate(a, b)
}

func (r *Room) newPair(offerer, answerer *member) (*peer, *peer) {
	o := &peer{
		id:            r.nextPeerID(),
		member:        offerer.spec.ID,
		partnerMember: answerer.spec.ID,
		role:          negotiation.Offerer,
	}
	a := &peer{
		id:            r.nextPeerID(),
		member:        answerer.spec.ID,
		partnerMember: offerer.spec.ID,
		role:          negotiation.Answerer,
	}
	o.partner, a.partner = a.id, o.id
	r.peers[o.id], r.peers[a.id] = o, a
	r.pairs[keyOf(o.member, a.member)] = [2]domain.PeerID{o.id, a.id}
	r.log.Info().Stringer("offerer", o.id).Stringer("answerer", a.id).
		Str("offerer_member", string(o.member)).Str("answerer_member", string(a.member)).Msg("peer pair created")
	return o, a
}

func (r *Room) addTracks(rel relation, a, b *peer) []*track {
	kinds := rel.publish.Kinds()
	out := make([]*track, 0, len(kinds))
	for _, k := range kinds {
		t := &track{
			id:          r.nextTrackID(),
			sender:      rel.sender.spec.ID,
			receiver:    rel.receiver.spec.ID,
			publish:     rel.publish.ID,
			play:        rel.play.ID,
			media:       protocol.MediaType{Kind: k.Kind, Source: k.Source, Required: k.Policy == domain.PolicyRequired},
			policy:      k.Policy,
			sendEnabled: true,
			recvEnabled: true,
		}
		r.tracks[t.id] = t
		a.tracks = append(a.tracks, t.id)
		b.tracks = append(b.tracks, t.id)
		out = append(out, t)
	}
	if rel.forceRelay() {
		a.forceRelay, b.forceRelay = true, true
	}
	return out
}

// announce tells the offerer about its new peer.
func (r *Room) announce(o *peer) {
	o.created = true
	o.pending = nil
	r.send(o.member, protocol.PeerCreated{
		PeerID:          o.id,
		NegotiationRole: *protocol.OffererRole(),
		Tracks:          r.views(o),
		IceServers:      r.iceServers(),
		ForceRelay:      o.forceRelay,
	})
}

func (r *Room) queue(p *peer, u protocol.TrackUpdate) {
	if !p.created {
		return
	}
	p.pending = append(p.pending, u)
}

func drain(p *peer) []protocol.TrackUpdate {
	out := p.pending
	p.pending = nil
	if out == nil {
		out = []protocol.TrackUpdate{}
	}
	return out
}

// removeTracks drops tracks. A pair left without tracks is torn down after
// its members saw the removals; any other touched pair renegotiates.
func (r *Room) removeTracks(ids []domain.TrackID) {
	var touched []pairKey
	for _, id := range ids {
		t, ok := r.tracks[id]
		if !ok {
			continue
		}
		delete(r.tracks, id)
		key := keyOf(t.sender, t.receiver)
		pair, ok := r.pairs[key]
		if !ok {
			continue
		}
		if !slices.Contains(touched, key) {
			touched = append(touched, key)
		}
		for _, pid := range pair {
			p := r.peers[pid]
			p.tracks = slices.DeleteFunc(p.tracks, func(x domain.TrackID) bool { return x == id })
			r.queue(p, protocol.Removed(id))
		}
	}
	for _, key := range touched {
		pair := r.pairs[key]
		a, b := r.peers[pair[0]], r.peers[pair[1]]
		if len(a.tracks) == 0 {
			r.removePair(a, b)
			continue
		}
		r.renegotiate(a, b)
	}
}

// removePair flushes pending updates, then reports the removal to both sides.
func (r *Room) removePair(a, b *peer) {
	for _, p := range []*peer{a, b} {
		if !p.created {
			continue
		}
		if len(p.pending) > 0 {
			r.send(p.member, protocol.TracksApplied{PeerID: p.id, Updates: drain(p)})
		}
		r.send(p.member, protocol.PeersRemoved{PeerIDs: []domain.PeerID{p.id}})
	}
	for _, id := range a.tracks {
		delete(r.tracks, id)
	}
	delete(r.peers, a.id)
	delete(r.peers, b.id)
	delete(r.pairs, keyOf(a.member, b.member))
	r.log.Info().Stringer("peer", a.id).Stringer("partner", b.id).Msg("peer pair removed")
}

func (r *Room) view(p *peer, t *track) protocol.Track {
	v := protocol.Track{
		ID:             t.id,
		Mid:            t.mid,
		Media:          t.media,
		EnabledGeneral: t.general(),
		Muted:          t.muted,
	}
	if p.member == t.sender {
		v.Direction = protocol.DirectionSend
		v.Receivers = []domain.MemberID{t.receiver}
		v.EnabledIndividual = t.sendEnabled
	} else {
		v.Direction = protocol.DirectionRecv
		v.Sender = t.sender
		v.EnabledIndividual = t.recvEnabled
	}
	return v
}

func (r *Room) views(p *peer) []protocol.Track {
	out := make([]protocol.Track, 0, len(p.tracks))
	for _, id := range p.tracks {
		if t, ok := r.tracks[id]; ok {
			out = append(out, r.view(p, t))
		}
	}
	return out
}

func (r *Room) iceServers() []protocol.IceServer {
	out := make([]protocol.IceServer, len(r.settings.IceServers))
	copy(out, r.settings.IceServers)
	return out
}
