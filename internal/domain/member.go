package domain

import (
	"fmt"
	"time"
)

// MemberSpec is the declarative description of a participant.
type MemberSpec struct {
	ID          MemberID
	Credentials string
	// Lifecycle callback addresses, empty when not configured.
	OnJoin  string
	OnLeave string

	// Zero values fall back to the server defaults.
	IdleTimeout      time.Duration
	ReconnectTimeout time.Duration
	PingInterval     time.Duration

	Publish []PublishEndpoint
	Play    []PlayEndpoint
}

// Validate checks the member on its own. Source references are checked by
// the room that hosts the member.
func (m *MemberSpec) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: member id is empty", ErrInvalidSpec)
	}
	if m.IdleTimeout < 0 || m.ReconnectTimeout < 0 || m.PingInterval < 0 {
		return fmt.Errorf("%w: member %s has a negative timeout", ErrInvalidSpec, m.ID)
	}
	seen := make(map[EndpointID]struct{}, len(m.Publish)+len(m.Play))
	for i := range m.Publish {
		m.Publish[i].Normalize()
		if err := m.Publish[i].Validate(); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
		if _, dup := seen[m.Publish[i].ID]; dup {
			return fmt.Errorf("%w: endpoint %s", ErrDuplicateID, EndpointFID("", m.ID, m.Publish[i].ID))
		}
		seen[m.Publish[i].ID] = struct{}{}
	}
	for _, p := range m.Play {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: endpoint %s", ErrDuplicateID, EndpointFID("", m.ID, p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

func (m *MemberSpec) FindPublish(id EndpointID) (PublishEndpoint, bool) {
	for _, p := range m.Publish {
		if p.ID == id {
			return p, true
		}
	}
	return PublishEndpoint{}, false
}

func (m *MemberSpec) FindPlay(id EndpointID) (PlayEndpoint, bool) {
	for _, p := range m.Play {
		if p.ID == id {
			return p, true
		}
	}
	return PlayEndpoint{}, false
}

func (m *MemberSpec) HasEndpoint(id EndpointID) bool {
	_, pub := m.FindPublish(id)
	_, play := m.FindPlay(id)
	return pub || play
}

// Clone returns a deep copy so callers never share endpoint slices.
func (m MemberSpec) Clone() MemberSpec {
	m.Publish = append([]PublishEndpoint(nil), m.Publish...)
	m.Play = append([]PlayEndpoint(nil), m.Play...)
	return m
}
