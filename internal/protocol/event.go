package protocol

import (
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
)

// Event is a server to client message. The set is closed.
type Event interface {
	EventName() string
	isEvent()
}

type PeerCreated struct {
	PeerID          domain.PeerID   `json:"peer_id"`
	NegotiationRole NegotiationRole `json:"negotiation_role"`
	Tracks          []Track         `json:"tracks"`
	IceServers      []IceServer     `json:"ice_servers"`
	ForceRelay      bool            `json:"force_relay"`
}

type SdpAnswerMade struct {
	PeerID    domain.PeerID `json:"peer_id"`
	SdpAnswer string        `json:"sdp_answer"`
}

type IceCandidateDiscovered struct {
	PeerID    domain.PeerID `json:"peer_id"`
	Candidate IceCandidate  `json:"candidate"`
}

type PeersRemoved struct {
	PeerIDs []domain.PeerID `json:"peer_ids"`
}

// TracksApplied carries track diffs and, when a new round is due, the role
// the client plays in it.
type TracksApplied struct {
	PeerID          domain.PeerID    `json:"peer_id"`
	Updates         []TrackUpdate    `json:"updates"`
	NegotiationRole *NegotiationRole `json:"negotiation_role,omitempty"`
}

type StateSynchronized struct {
	State RoomState `json:"state"`
}

func (PeerCreated) EventName() string            { return "PeerCreated" }
func (SdpAnswerMade) EventName() string          { return "SdpAnswerMade" }
func (IceCandidateDiscovered) EventName() string { return "IceCandidateDiscovered" }
func (PeersRemoved) EventName() string           { return "PeersRemoved" }
func (TracksApplied) EventName() string          { return "TracksApplied" }
func (StateSynchronized) EventName() string      { return "StateSynchronized" }

func (PeerCreated) isEvent()            {}
func (SdpAnswerMade) isEvent()          {}
func (IceCandidateDiscovered) isEvent() {}
func (PeersRemoved) isEvent()           {}
func (TracksApplied) isEvent()          {}
func (StateSynchronized) isEvent()      {}

func newEvent(name string) (Event, bool) {
	switch name {
	case "PeerCreated":
		return &PeerCreated{}, true
	case "SdpAnswerMade":
		return &SdpAnswerMade{}, true
	case "IceCandidateDiscovered":
		return &IceCandidateDiscovered{}, true
	case "PeersRemoved":
		return &PeersRemoved{}, true
	case "TracksApplied":
		return &TracksApplied{}, true
	case "StateSynchronized":
		return &StateSynchronized{}, true
	}
	return nil, false
}

// RoomState is the full snapshot of a member's peers.
type RoomState struct {
	Peers []PeerState `json:"peers"`
}

type PeerState struct {
	ID               domain.PeerID     `json:"id"`
	Partner          domain.MemberID   `json:"partner"`
	Role             negotiation.Role  `json:"role"`
	Tracks           []Track           `json:"tracks"`
	IceServers       []IceServer       `json:"ice_servers"`
	ForceRelay       bool              `json:"force_relay"`
	NegotiationRole  *NegotiationRole  `json:"negotiation_role,omitempty"`
	NegotiationState negotiation.State `json:"negotiation_state"`
	LocalSdp         string            `json:"local_sdp,omitempty"`
	RemoteSdp        string            `json:"remote_sdp,omitempty"`
	IceCandidates    []IceCandidate    `json:"ice_candidates,omitempty"`
}
