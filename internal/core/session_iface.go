package core

import (
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

type SessionID string

// Heartbeat is the per member transport policy.
type Heartbeat struct {
	IdleTimeout      time.Duration
	ReconnectTimeout time.Duration
	PingInterval     time.Duration
}

func (h Heartbeat) RpcSettings() protocol.RpcSettings {
	return protocol.NewRpcSettings(h.IdleTimeout, h.PingInterval)
}

// MemberSession binds an authorized member and its transport.
type MemberSession interface {
	ID() SessionID
	Room() domain.RoomID
	Member() domain.MemberID
	Signal() SignalConnection
	Heartbeat() Heartbeat
}
