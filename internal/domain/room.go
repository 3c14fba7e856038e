package domain

import "fmt"

// RoomSpec is the full declarative topology of a room.
type RoomSpec struct {
	ID      RoomID
	Members []MemberSpec
}

// Validate checks ids, uniqueness and that every Play endpoint resolves to a
// Publish endpoint of this room.
func (r *RoomSpec) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: room id is empty", ErrInvalidSpec)
	}
	seen := make(map[MemberID]struct{}, len(r.Members))
	for i := range r.Members {
		m := &r.Members[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: member %s", ErrDuplicateID, MemberFID(r.ID, m.ID))
		}
		seen[m.ID] = struct{}{}
	}
	for _, m := range r.Members {
		for _, play := range m.Play {
			if err := r.CheckSource(play.Src); err != nil {
				return fmt.Errorf("endpoint %s: %w", EndpointFID(r.ID, m.ID, play.ID), err)
			}
		}
	}
	return nil
}

// CheckSource reports ErrDanglingSource unless src addresses a Publish
// endpoint of this room.
func (r *RoomSpec) CheckSource(src SrcURI) error {
	if src.Room != r.ID {
		return fmt.Errorf("%w: %s is outside room %s", ErrDanglingSource, src, r.ID)
	}
	m, ok := r.Member(src.Member)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDanglingSource, src)
	}
	if _, ok := m.FindPublish(src.Endpoint); !ok {
		return fmt.Errorf("%w: %s", ErrDanglingSource, src)
	}
	return nil
}

func (r *RoomSpec) Member(id MemberID) (*MemberSpec, bool) {
	for i := range r.Members {
		if r.Members[i].ID == id {
			return &r.Members[i], true
		}
	}
	return nil, false
}

func (r RoomSpec) Clone() RoomSpec {
	members := make([]MemberSpec, len(r.Members))
	for i, m := range r.Members {
		members[i] = m.Clone()
	}
	r.Members = members
	return r
}
