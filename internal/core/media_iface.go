package core

import (
	"context"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
	"github.com/dkeye/huddle/internal/protocol"
)

// MediaConnection is the client's local peer connection. The negotiation
// methods are driven by a negotiation.Negotiator only.
type MediaConnection interface {
	negotiation.Driver

	// AddSendTrack captures local media for t and attaches it, reusing the
	// transceiver of t.Mid when the remote side already created one.
	AddSendTrack(ctx context.Context, t protocol.Track) error
	// AddRecvTrack prepares a receive-only transceiver for a remote track.
	AddRecvTrack(ctx context.Context, t protocol.Track) error
	RemoveTrack(id domain.TrackID) error
	// SetTrackEnabled and SetTrackMuted gate the outgoing media of a track.
	SetTrackEnabled(id domain.TrackID, enabled bool)
	SetTrackMuted(id domain.TrackID, muted bool)
	// Mids returns the mid of every track that has one.
	Mids() map[domain.TrackID]string

	OnICECandidate(func(negotiation.Candidate))
	// OnConnectionState reports pion connection states ("connected", "failed", ...).
	OnConnectionState(func(state string))
	Close() error
}

// MediaFactory opens a MediaConnection per peer.
type MediaFactory interface {
	NewConnection(ctx context.Context, peer domain.PeerID, iceServers []protocol.IceServer, forceRelay bool) (MediaConnection, error)
}
