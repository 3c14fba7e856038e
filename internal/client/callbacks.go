package client

import (
	"github.com/dkeye/huddle/internal/client/rpc"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

// TrackInfo is a read-only view of a track. Member is the remote side.
type TrackInfo struct {
	ID        domain.TrackID
	Peer      domain.PeerID
	Member    domain.MemberID
	Direction protocol.Direction
	Media     protocol.MediaType
	Mid       string
	Enabled   bool
	Muted     bool
}

// Callbacks are optional. They run on the dispatcher goroutine, one at a
// time, and may call back into the Room.
type Callbacks struct {
	OnConnectionOpened func(member domain.MemberID)
	OnConnectionClosed func(member domain.MemberID)

	OnTrackAdded    func(TrackInfo)
	OnTrackEnabled  func(TrackInfo)
	OnTrackDisabled func(TrackInfo)
	OnTrackMuted    func(TrackInfo)
	OnTrackUnmuted  func(TrackInfo)
	OnTrackStopped  func(TrackInfo)

	OnFailedLocalMedia func(*Error)
	OnError            func(*Error)

	// OnConnectionLoss fires when the signaling session dropped and
	// reconnection started.
	OnConnectionLoss func(rpc.ReconnectHandle)
	// OnRoomClosed fires once. reason is empty for a local leave or an
	// abandoned reconnection, err is set for the latter.
	OnRoomClosed func(reason protocol.CloseReason, err error)
}

func call[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}
