package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// EndpointSpec holds exactly one of a Publish or a Play endpoint.
type EndpointSpec struct {
	Publish *domain.PublishEndpoint
	Play    *domain.PlayEndpoint
}

// Element is one resource returned by Get. Only the field matching the FID
// kind is set.
type Element struct {
	FID     domain.FID
	Room    *domain.RoomSpec
	Member  *domain.MemberSpec
	Publish *domain.PublishEndpoint
	Play    *domain.PlayEndpoint
}

func (o *Orchestrator) CreateRoom(spec domain.RoomSpec) error {
	_, err := o.Rooms.Create(spec)
	return err
}

// CreateMember adds an offline member at fid.
func (o *Orchestrator) CreateMember(fid domain.FID, spec domain.MemberSpec) error {
	if !fid.IsMember() {
		return fmt.Errorf("%w: %s is not a member", domain.ErrInvalidFID, fid)
	}
	spec.ID = fid.Member
	room, err := o.Rooms.Get(fid.Room)
	if err != nil {
		return err
	}
	return room.AddMember(spec)
}

// CreateEndpoint adds an endpoint at fid. A Play endpoint between two present
// members creates its tracks right away.
func (o *Orchestrator) CreateEndpoint(fid domain.FID, spec EndpointSpec) error {
	if !fid.IsEndpoint() {
		return fmt.Errorf("%w: %s is not an endpoint", domain.ErrInvalidFID, fid)
	}
	room, err := o.Rooms.Get(fid.Room)
	if err != nil {
		return err
	}
	switch {
	case spec.Publish != nil && spec.Play == nil:
		ep := *spec.Publish
		ep.ID = fid.Endpoint
		return room.AddPublish(fid.Member, ep)
	case spec.Play != nil && spec.Publish == nil:
		ep := *spec.Play
		ep.ID = fid.Endpoint
		return room.AddPlay(fid.Member, ep)
	}
	return fmt.Errorf("%w: endpoint %s needs exactly one of publish or play", domain.ErrInvalidSpec, fid)
}

// Get resolves every fid or fails without a partial result.
func (o *Orchestrator) Get(fids ...domain.FID) ([]Element, error) {
	out := make([]Element, 0, len(fids))
	for _, fid := range fids {
		el, err := o.get(fid)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

func (o *Orchestrator) get(fid domain.FID) (Element, error) {
	el := Element{FID: fid}
	room, err := o.Rooms.Get(fid.Room)
	if err != nil {
		return el, err
	}
	if fid.IsRoom() {
		spec := room.Spec()
		el.Room = &spec
		return el, nil
	}
	ms, err := room.MemberSpec(fid.Member)
	if err != nil {
		return el, err
	}
	if fid.IsMember() {
		el.Member = &ms
		return el, nil
	}
	if pub, ok := ms.FindPublish(fid.Endpoint); ok {
		el.Publish = &pub
		return el, nil
	}
	if play, ok := ms.FindPlay(fid.Endpoint); ok {
		el.Play = &play
		return el, nil
	}
	return el, fmt.Errorf("%w: endpoint %s", domain.ErrNotFound, fid)
}

// Delete removes every fid. All of them must exist; endpoints go first, then
// members, then rooms.
func (o *Orchestrator) Delete(fids ...domain.FID) error {
	if _, err := o.Get(fids...); err != nil {
		return err
	}
	var members, rooms []domain.FID
	for _, fid := range fids {
		switch {
		case fid.IsEndpoint():
			// a cascade from an earlier fid may have removed it already
			if err := o.deleteEndpoint(fid); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		case fid.IsMember():
			members = append(members, fid)
		default:
			rooms = append(rooms, fid)
		}
	}
	for _, fid := range members {
		room, err := o.Rooms.Get(fid.Room)
		if err != nil {
			continue
		}
		if err := room.DeleteMember(fid.Member); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	for _, fid := range rooms {
		if err := o.Rooms.Remove(fid.Room, core.LeaveKicked); err != nil {
			return err
		}
	}
	log.Info().Str("module", "app.orch").Int("count", len(fids)).Msg("elements deleted")
	return nil
}

func (o *Orchestrator) deleteEndpoint(fid domain.FID) error {
	room, err := o.Rooms.Get(fid.Room)
	if err != nil {
		return err
	}
	return room.DeleteEndpoint(fid.Member, fid.Endpoint)
}
