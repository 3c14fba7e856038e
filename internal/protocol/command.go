package protocol

import "github.com/dkeye/huddle/internal/domain"

// Command is a client to server message. The set is closed.
type Command interface {
	CommandName() string
	isCommand()
}

type MakeSdpOffer struct {
	PeerID   domain.PeerID             `json:"peer_id"`
	SdpOffer string                    `json:"sdp_offer"`
	Mids     map[domain.TrackID]string `json:"mids"`
}

type MakeSdpAnswer struct {
	PeerID    domain.PeerID `json:"peer_id"`
	SdpAnswer string        `json:"sdp_answer"`
}

type SetIceCandidate struct {
	PeerID    domain.PeerID `json:"peer_id"`
	Candidate IceCandidate  `json:"candidate"`
}

type AddPeerConnectionMetrics struct {
	PeerID  domain.PeerID `json:"peer_id"`
	Metrics PeerMetrics   `json:"metrics"`
}

type UpdateTracks struct {
	PeerID        domain.PeerID       `json:"peer_id"`
	TracksPatches []TrackPatchCommand `json:"tracks_patches"`
}

// SynchronizeMe asks for a full StateSynchronized snapshot.
type SynchronizeMe struct{}

func (MakeSdpOffer) CommandName() string             { return "MakeSdpOffer" }
func (MakeSdpAnswer) CommandName() string            { return "MakeSdpAnswer" }
func (SetIceCandidate) CommandName() string          { return "SetIceCandidate" }
func (AddPeerConnectionMetrics) CommandName() string { return "AddPeerConnectionMetrics" }
func (UpdateTracks) CommandName() string             { return "UpdateTracks" }
func (SynchronizeMe) CommandName() string            { return "SynchronizeMe" }

func (MakeSdpOffer) isCommand()             {}
func (MakeSdpAnswer) isCommand()            {}
func (SetIceCandidate) isCommand()          {}
func (AddPeerConnectionMetrics) isCommand() {}
func (UpdateTracks) isCommand()             {}
func (SynchronizeMe) isCommand()            {}

func newCommand(name string) (Command, bool) {
	switch name {
	case "MakeSdpOffer":
		return &MakeSdpOffer{}, true
	case "MakeSdpAnswer":
		return &MakeSdpAnswer{}, true
	case "SetIceCandidate":
		return &SetIceCandidate{}, true
	case "AddPeerConnectionMetrics":
		return &AddPeerConnectionMetrics{}, true
	case "UpdateTracks":
		return &UpdateTracks{}, true
	case "SynchronizeMe":
		return &SynchronizeMe{}, true
	}
	return nil, false
}
