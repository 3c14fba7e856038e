// Package negotiation holds the offer/answer state machine shared by the
// coordinator and the client, the remote ICE candidate buffer and the
// per-peer negotiator that drives a local media connection.
package negotiation

import (
	"errors"
	"fmt"
)

type State int32

const (
	Stable State = iota
	HaveLocalOffer
	HaveRemoteOffer
	Failed
	Closed
)

var stateNames = [...]string{
	Stable:          "stable",
	HaveLocalOffer:  "have-local-offer",
	HaveRemoteOffer: "have-remote-offer",
	Failed:          "failed",
	Closed:          "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("negotiation: unknown state %q", b)
}

// Role is fixed per peer pair: the offerer starts every round.
type Role int32

const (
	Offerer Role = iota
	Answerer
)

func (r Role) String() string {
	if r == Answerer {
		return "answerer"
	}
	return "offerer"
}

func (r Role) Opposite() Role {
	if r == Offerer {
		return Answerer
	}
	return Offerer
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "offerer":
		*r = Offerer
	case "answerer":
		*r = Answerer
	default:
		return fmt.Errorf("negotiation: unknown role %q", b)
	}
	return nil
}

// Input is a step of a round as observed by one side.
type Input int

const (
	LocalOffer Input = iota
	RemoteOffer
	LocalAnswer
	RemoteAnswer
	Rollback
)

func (in Input) String() string {
	switch in {
	case LocalOffer:
		return "local-offer"
	case RemoteOffer:
		return "remote-offer"
	case LocalAnswer:
		return "local-answer"
	case RemoteAnswer:
		return "remote-answer"
	case Rollback:
		return "rollback"
	}
	return fmt.Sprintf("input(%d)", int(in))
}

var (
	// ErrGlare is returned when an offer meets an in-flight offer.
	ErrGlare             = errors.New("negotiation: glare")
	ErrInvalidTransition = errors.New("negotiation: invalid transition")
)

// Transition returns the state reached from s on in.
func Transition(s State, in Input) (State, error) {
	switch s {
	case Stable:
		switch in {
		case LocalOffer:
			return HaveLocalOffer, nil
		case RemoteOffer:
			return HaveRemoteOffer, nil
		case Rollback:
			return Stable, nil
		}
	case HaveLocalOffer:
		switch in {
		case RemoteAnswer, Rollback:
			return Stable, nil
		case RemoteOffer, LocalOffer:
			return s, ErrGlare
		}
	case HaveRemoteOffer:
		switch in {
		case LocalAnswer, Rollback:
			return Stable, nil
		case LocalOffer, RemoteOffer:
			return s, ErrGlare
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, in, s)
}
