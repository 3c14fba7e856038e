package app

import (
	"fmt"
	"slices"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

// Spec returns the current declarative topology.
func (r *Room) Spec() domain.RoomSpec {
	r.lock()
	defer r.unlock()
	spec := domain.RoomSpec{ID: r.id, Members: make([]domain.MemberSpec, 0, len(r.order))}
	for _, id := range r.order {
		spec.Members = append(spec.Members, r.members[id].spec.Clone())
	}
	return spec
}

func (r *Room) MemberSpec(id domain.MemberID) (domain.MemberSpec, error) {
	r.lock()
	defer r.unlock()
	m, ok := r.members[id]
	if !ok {
		return domain.MemberSpec{}, fmt.Errorf("%w: member %s", domain.ErrNotFound, domain.MemberFID(r.id, id))
	}
	return m.spec.Clone(), nil
}

// specLocked is the topology used to validate source references.
func (r *Room) specLocked() domain.RoomSpec {
	spec := domain.RoomSpec{ID: r.id, Members: make([]domain.MemberSpec, 0, len(r.order))}
	for _, id := range r.order {
		spec.Members = append(spec.Members, r.members[id].spec)
	}
	return spec
}

// AddMember adds an offline member. Its Play endpoints must resolve inside
// this room.
func (r *Room) AddMember(ms domain.MemberSpec) error {
	ms = ms.Clone()
	if err := ms.Validate(); err != nil {
		return err
	}
	r.lock()
	defer r.unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if _, ok := r.members[ms.ID]; ok {
		return fmt.Errorf("%w: member %s", domain.ErrDuplicateID, domain.MemberFID(r.id, ms.ID))
	}
	spec := r.specLocked()
	spec.Members = append(spec.Members, ms)
	for _, play := range ms.Play {
		if err := spec.CheckSource(play.Src); err != nil {
			return fmt.Errorf("endpoint %s: %w", domain.EndpointFID(r.id, ms.ID, play.ID), err)
		}
	}
	r.addMemberLocked(ms)
	r.log.Info().Str("member", string(ms.ID)).Msg("member created")
	return nil
}

// AddPublish adds a Publish endpoint. Nothing plays it yet, so no peer
// changes.
func (r *Room) AddPublish(id domain.MemberID, ep domain.PublishEndpoint) error {
	ep.Normalize()
	if err := ep.Validate(); err != nil {
		return err
	}
	r.lock()
	defer r.unlock()
	m, err := r.endpointTarget(id, ep.ID)
	if err != nil {
		return err
	}
	m.spec.Publish = append(m.spec.Publish, ep)
	r.log.Info().Str("member", string(id)).Str("endpoint", string(ep.ID)).Msg("publish endpoint created")
	return nil
}

// AddPlay adds a Play endpoint and, when both members are present, the
// tracks it implies.
func (r *Room) AddPlay(id domain.MemberID, ep domain.PlayEndpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	r.lock()
	defer r.unlock()
	m, err := r.endpointTarget(id, ep.ID)
	if err != nil {
		return err
	}
	spec := r.specLocked()
	if err := spec.CheckSource(ep.Src); err != nil {
		return fmt.Errorf("endpoint %s: %w", domain.EndpointFID(r.id, id, ep.ID), err)
	}
	m.spec.Play = append(m.spec.Play, ep)
	r.log.Info().Str("member", string(id)).Str("endpoint", string(ep.ID)).Str("src", ep.Src.String()).Msg("play endpoint created")

	src := r.members[ep.Src.Member]
	if src.spec.ID == id || !src.present() || !m.present() {
		return nil
	}
	pub, _ := src.spec.FindPublish(ep.Src.Endpoint)
	r.linkRelation(relation{sender: src, receiver: m, publish: pub, play: ep})
	return nil
}

func (r *Room) endpointTarget(id domain.MemberID, ep domain.EndpointID) (*member, error) {
	if r.closed {
		return nil, ErrRoomClosed
	}
	m, ok := r.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", domain.ErrNotFound, domain.MemberFID(r.id, id))
	}
	if m.spec.HasEndpoint(ep) {
		return nil, fmt.Errorf("%w: endpoint %s", domain.ErrDuplicateID, domain.EndpointFID(r.id, id, ep))
	}
	return m, nil
}

// DeleteEndpoint removes an endpoint and its tracks. Deleting a Publish
// endpoint also deletes the Play endpoints sourcing it and tears down every
// pair it fed, including the opposite direction of those pairs.
func (r *Room) DeleteEndpoint(id domain.MemberID, ep domain.EndpointID) error {
	r.lock()
	defer r.unlock()
	if r.closed {
		return ErrRoomClosed
	}
	m, ok := r.members[id]
	if !ok || !m.spec.HasEndpoint(ep) {
		return fmt.Errorf("%w: endpoint %s", domain.ErrNotFound, domain.EndpointFID(r.id, id, ep))
	}

	r.log.Info().Str("member", string(id)).Str("endpoint", string(ep)).Msg("endpoint deleted")
	if _, ok := m.spec.FindPublish(ep); ok {
		m.spec.Publish = slices.DeleteFunc(m.spec.Publish, func(p domain.PublishEndpoint) bool { return p.ID == ep })
		src := domain.SrcURI{Room: r.id, Member: id, Endpoint: ep}
		r.removePairsFedBy(id, ep)
		r.dropPlays(func(p domain.PlayEndpoint) bool { return p.Src == src })
		return nil
	}
	m.spec.Play = slices.DeleteFunc(m.spec.Play, func(p domain.PlayEndpoint) bool { return p.ID == ep })
	r.removeTracks(r.tracksWhere(func(t *track) bool { return t.receiver == id && t.play == ep }))
	return nil
}

// DeleteMember kicks the member if present, then removes it along with the
// Play endpoints of others that source it.
func (r *Room) DeleteMember(id domain.MemberID) error {
	r.lock()
	defer r.unlock()
	if r.closed {
		return ErrRoomClosed
	}
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("%w: member %s", domain.ErrNotFound, domain.MemberFID(r.id, id))
	}
	if m.present() {
		if m.conn != nil {
			m.conn.Close(protocol.CloseEvicted)
		}
		r.leaveLocked(m, core.LeaveKicked)
	}
	r.dropPlays(func(p domain.PlayEndpoint) bool { return p.Src.Member == id })
	delete(r.members, id)
	r.order = slices.DeleteFunc(r.order, func(x domain.MemberID) bool { return x == id })
	r.log.Info().Str("member", string(id)).Msg("member deleted")
	return nil
}

// dropPlays removes matching Play endpoints from every member along with
// their tracks.
func (r *Room) dropPlays(match func(domain.PlayEndpoint) bool) {
	var gone []domain.TrackID
	for _, mid := range r.order {
		m := r.members[mid]
		for _, p := range m.spec.Play {
			if !match(p) {
				continue
			}
			gone = append(gone, r.tracksWhere(func(t *track) bool { return t.receiver == mid && t.play == p.ID })...)
		}
		m.spec.Play = slices.DeleteFunc(m.spec.Play, match)
	}
	r.removeTracks(gone)
}

// removePairsFedBy removes the pairs carrying tracks of a Publish endpoint.
// Both sides get the removal of every track before the peer removal.
func (r *Room) removePairsFedBy(sender domain.MemberID, publish domain.EndpointID) {
	var keys []pairKey
	for _, t := range r.tracks {
		if t.sender != sender || t.publish != publish {
			continue
		}
		if key := keyOf(t.sender, t.receiver); !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		pair, ok := r.pairs[key]
		if !ok {
			continue
		}
		a, b := r.peers[pair[0]], r.peers[pair[1]]
		for _, id := range a.tracks {
			r.queue(a, protocol.Removed(id))
			r.queue(b, protocol.Removed(id))
		}
		r.removePair(a, b)
	}
}

func (r *Room) tracksWhere(match func(*track) bool) []domain.TrackID {
	var out []domain.TrackID
	for id, t := range r.tracks {
		if match(t) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
