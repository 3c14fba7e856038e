// Package protocol defines the versioned signaling protocol spoken between
// the coordinator and its clients.
package protocol

import (
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/negotiation"
)

// Version is sent by clients in the "v" query parameter.
const Version = 1

type IceCandidate = negotiation.Candidate

type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// NegotiationRole tells a client how to take part in the next round. An
// answerer always receives the offer it has to answer.
type NegotiationRole struct {
	Role     negotiation.Role `json:"role"`
	SdpOffer string           `json:"sdp_offer,omitempty"`
}

func OffererRole() *NegotiationRole { return &NegotiationRole{Role: negotiation.Offerer} }

func AnswererRole(offer string) *NegotiationRole {
	return &NegotiationRole{Role: negotiation.Answerer, SdpOffer: offer}
}

// RpcSettings are pushed on every (re)connect.
type RpcSettings struct {
	IdleTimeoutMs  uint64 `json:"idle_timeout_ms"`
	PingIntervalMs uint64 `json:"ping_interval_ms"`
}

func NewRpcSettings(idle, ping time.Duration) RpcSettings {
	return RpcSettings{IdleTimeoutMs: uint64(idle.Milliseconds()), PingIntervalMs: uint64(ping.Milliseconds())}
}

func (s RpcSettings) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMs) * time.Millisecond
}

func (s RpcSettings) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalMs) * time.Millisecond
}

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

type MediaType struct {
	Kind     domain.MediaKind   `json:"kind"`
	Source   domain.MediaSource `json:"source"`
	Required bool               `json:"required"`
}

// Track is one side's view of a media flow. A send Track lists its
// receivers, a recv Track names its sender.
type Track struct {
	ID                domain.TrackID    `json:"id"`
	Direction         Direction         `json:"direction"`
	Receivers         []domain.MemberID `json:"receivers,omitempty"`
	Sender            domain.MemberID   `json:"sender,omitempty"`
	Mid               string            `json:"mid,omitempty"`
	Media             MediaType         `json:"media_type"`
	EnabledIndividual bool              `json:"enabled_individual"`
	EnabledGeneral    bool              `json:"enabled_general"`
	Muted             bool              `json:"muted"`
}

// TrackPatchCommand is a client intent on one of its tracks.
type TrackPatchCommand struct {
	ID      domain.TrackID `json:"id"`
	Enabled *bool          `json:"enabled,omitempty"`
	Muted   *bool          `json:"muted,omitempty"`
}

// TrackPatchEvent carries the flags that changed.
type TrackPatchEvent struct {
	ID                domain.TrackID `json:"id"`
	EnabledIndividual *bool          `json:"enabled_individual,omitempty"`
	EnabledGeneral    *bool          `json:"enabled_general,omitempty"`
	Muted             *bool          `json:"muted,omitempty"`
}

func (p TrackPatchEvent) Empty() bool {
	return p.EnabledIndividual == nil && p.EnabledGeneral == nil && p.Muted == nil
}

// TrackUpdate holds exactly one of its fields.
type TrackUpdate struct {
	Added   *Track           `json:"added,omitempty"`
	Updated *TrackPatchEvent `json:"updated,omitempty"`
	Removed *domain.TrackID  `json:"removed,omitempty"`
}

func Added(t Track) TrackUpdate             { return TrackUpdate{Added: &t} }
func Updated(p TrackPatchEvent) TrackUpdate { return TrackUpdate{Updated: &p} }
func Removed(id domain.TrackID) TrackUpdate { return TrackUpdate{Removed: &id} }

type PeerMetrics struct {
	IceConnectionState  string `json:"ice_connection_state,omitempty"`
	PeerConnectionState string `json:"peer_connection_state,omitempty"`
}

func (m PeerMetrics) Failed() bool {
	return m.IceConnectionState == "failed" || m.PeerConnectionState == "failed"
}

func Bool(v bool) *bool { return &v }
