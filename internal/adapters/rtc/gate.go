package rtc

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type GateState int32

const (
	GateOpen GateState = iota
	GateMuted
	GateDisabled
	GateClosed
)

func (s GateState) String() string {
	switch s {
	case GateOpen:
		return "open"
	case GateMuted:
		return "muted"
	case GateDisabled:
		return "disabled"
	case GateClosed:
		return "closed"
	}
	return "unknown"
}

// SendGate is the outgoing side of one local track. Packets pass only while
// the track is enabled and not muted; the two flags are independent.
type SendGate struct {
	Track *webrtc.TrackLocalStaticRTP

	disabled atomic.Bool
	muted    atomic.Bool
	closed   atomic.Bool
	written  atomic.Uint64
}

func NewSendGate(track *webrtc.TrackLocalStaticRTP) *SendGate {
	return &SendGate{Track: track}
}

func (g *SendGate) State() GateState {
	switch {
	case g.closed.Load():
		return GateClosed
	case g.disabled.Load():
		return GateDisabled
	case g.muted.Load():
		return GateMuted
	}
	return GateOpen
}

func (g *SendGate) SetEnabled(enabled bool) { g.disabled.Store(!enabled) }
func (g *SendGate) SetMuted(muted bool)     { g.muted.Store(muted) }
func (g *SendGate) Close()                  { g.closed.Store(true) }

// Written counts the packets that went through.
func (g *SendGate) Written() uint64 { return g.written.Load() }

// WriteRTP forwards pkt when the gate is open. A write error closes the gate.
func (g *SendGate) WriteRTP(pkt *rtp.Packet) error {
	if g.State() != GateOpen {
		return nil
	}
	if err := g.Track.WriteRTP(pkt); err != nil {
		g.Close()
		return err
	}
	g.written.Add(1)
	return nil
}
