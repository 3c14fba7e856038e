package client

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	// KindMedia: a local device could not be captured.
	KindMedia       ErrorKind = "media"
	KindNegotiation ErrorKind = "negotiation"
	KindTransport   ErrorKind = "transport"
	// KindState: an intent that does not fit the current room state.
	KindState ErrorKind = "state"
)

var (
	ErrUnknownTrack  = errors.New("unknown track")
	ErrRequiredTrack = errors.New("required track cannot be disabled")
	ErrNotSender     = errors.New("only the sending side mutes a track")
	ErrRoomClosed    = errors.New("room closed")

	errPeerConnectionFailed = errors.New("peer connection failed")
)

// Error is what the application sees. Trace keeps the wrapped cause with
// the stack of the layer it came from; print it with %+v.
type Error struct {
	Kind  ErrorKind
	Cause string
	Trace error
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	wrapped := errors.Wrapf(err, format, args...)
	return &Error{Kind: kind, Cause: wrapped.Error(), Trace: wrapped}
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Cause }

func (e *Error) Unwrap() error { return e.Trace }

func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = io.WriteString(s, string(e.Kind)+": ")
		_, _ = fmt.Fprintf(s, "%+v", e.Trace)
		return
	}
	_, _ = io.WriteString(s, e.Error())
}
