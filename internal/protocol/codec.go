package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrUnknownCommand = errors.New("protocol: unknown command")
	ErrUnknownEvent   = errors.New("protocol: unknown event")
)

type clientEnvelope struct {
	Pong    *uint32         `json:"pong,omitempty"`
	Command string          `json:"command,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type serverEnvelope struct {
	Ping        *uint32         `json:"ping,omitempty"`
	RpcSettings *RpcSettings    `json:"rpc_settings,omitempty"`
	Event       string          `json:"event,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ClientMsg is a decoded client frame: either a pong or a command.
type ClientMsg struct {
	Pong    *uint32
	Command Command
}

// ServerMsg is a decoded server frame: a ping, rpc settings or an event.
type ServerMsg struct {
	Ping        *uint32
	RpcSettings *RpcSettings
	Event       Event
}

func EncodeCommand(c Command) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.CommandName(), err)
	}
	return json.Marshal(clientEnvelope{Command: c.CommandName(), Data: data})
}

func EncodePong(n uint32) ([]byte, error) {
	return json.Marshal(clientEnvelope{Pong: &n})
}

func EncodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	return json.Marshal(serverEnvelope{Event: e.EventName(), Data: data})
}

func EncodePing(n uint32) ([]byte, error) {
	return json.Marshal(serverEnvelope{Ping: &n})
}

func EncodeRpcSettings(s RpcSettings) ([]byte, error) {
	return json.Marshal(serverEnvelope{RpcSettings: &s})
}

func DecodeClientMsg(b []byte) (ClientMsg, error) {
	var env clientEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return ClientMsg{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Pong != nil {
		return ClientMsg{Pong: env.Pong}, nil
	}
	if env.Command == "" {
		return ClientMsg{}, fmt.Errorf("%w: neither pong nor command", ErrMalformed)
	}
	cmd, ok := newCommand(env.Command)
	if !ok {
		return ClientMsg{}, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Command)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, cmd); err != nil {
			return ClientMsg{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Command, err)
		}
	}
	return ClientMsg{Command: derefCommand(cmd)}, nil
}

func DecodeServerMsg(b []byte) (ServerMsg, error) {
	var env serverEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return ServerMsg{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case env.Ping != nil:
		return ServerMsg{Ping: env.Ping}, nil
	case env.RpcSettings != nil:
		return ServerMsg{RpcSettings: env.RpcSettings}, nil
	case env.Event == "":
		return ServerMsg{}, fmt.Errorf("%w: empty server message", ErrMalformed)
	}
	ev, ok := newEvent(env.Event)
	if !ok {
		return ServerMsg{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return ServerMsg{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
		}
	}
	return ServerMsg{Event: derefEvent(ev)}, nil
}

func derefCommand(c Command) Command {
	switch c := c.(type) {
	case *MakeSdpOffer:
		return *c
	case *MakeSdpAnswer:
		return *c
	case *SetIceCandidate:
		return *c
	case *AddPeerConnectionMetrics:
		return *c
	case *UpdateTracks:
		return *c
	case *SynchronizeMe:
		return *c
	}
	return c
}

func derefEvent(e Event) Event {
	switch e := e.(type) {
	case *PeerCreated:
		return *e
	case *SdpAnswerMade:
		return *e
	case *IceCandidateDiscovered:
		return *e
	case *PeersRemoved:
		return *e
	case *TracksApplied:
		return *e
	case *StateSynchronized:
		return *e
	}
	return e
}
