package app

import (
	"errors"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRoomClosed   = errors.New("room closed")
	ErrUnknownPeer  = errors.New("unknown peer")
	ErrNotConnected = errors.New("member is not connected")
)

const (
	DefaultIdleTimeout      = 10 * time.Second
	DefaultReconnectTimeout = 10 * time.Second
	DefaultPingInterval     = 3 * time.Second
)

// Settings are the server wide defaults every room starts from.
type Settings struct {
	Heartbeat  core.Heartbeat
	IceServers []protocol.IceServer
}

func DefaultSettings() Settings {
	return Settings{Heartbeat: core.Heartbeat{
		IdleTimeout:      DefaultIdleTimeout,
		ReconnectTimeout: DefaultReconnectTimeout,
		PingInterval:     DefaultPingInterval,
	}}
}

func (s Settings) heartbeatFor(m *domain.MemberSpec) core.Heartbeat {
	hb := s.Heartbeat
	if m.IdleTimeout > 0 {
		hb.IdleTimeout = m.IdleTimeout
	}
	if m.ReconnectTimeout > 0 {
		hb.ReconnectTimeout = m.ReconnectTimeout
	}
	if m.PingInterval > 0 {
		hb.PingInterval = m.PingInterval
	}
	return hb
}
