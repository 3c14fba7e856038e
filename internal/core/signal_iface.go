package core

import (
	"errors"

	"github.com/dkeye/huddle/internal/protocol"
)

// Frame is an encoded protocol message.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts the member's signaling transport.
// Owned by the adapter; TrySend never blocks.
type SignalConnection interface {
	TrySend(Frame) error
	Close(reason protocol.CloseReason)
}
