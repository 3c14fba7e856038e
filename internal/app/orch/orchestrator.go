package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrUnknownSession = errors.New("unknown session")

// Orchestrator binds signaling sessions to rooms and exposes the
// administrative topology operations.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
}

func New(rooms *app.RoomManager) *Orchestrator {
	return &Orchestrator{Registry: app.NewRegistry(), Rooms: rooms}
}

// OnFrame decodes one client frame and applies it to the session's room.
// Pongs only keep the transport alive and stop at the adapter.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) error {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return ErrUnknownSession
	}
	msg, err := protocol.DecodeClientMsg(data)
	if err != nil {
		log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Err(err).Msg("bad frame")
		return err
	}
	if msg.Command == nil {
		return nil
	}
	room, err := o.Rooms.Get(sess.Room())
	if err != nil {
		return err
	}
	if err := room.HandleCommand(sess.Member(), msg.Command); err != nil {
		log.Warn().Str("module", "app.orch").Str("sid", string(sid)).
			Str("member", string(sess.Member())).Str("command", msg.Command.CommandName()).Err(err).Msg("command failed")
		return fmt.Errorf("%s: %w", msg.Command.CommandName(), err)
	}
	return nil
}

// Shutdown closes every room with server-shutdown and stops the sessions.
func (o *Orchestrator) Shutdown() {
	o.Rooms.CloseAll(core.LeaveServerShutdown)
	o.Registry.CancelAll()
	log.Info().Str("module", "app.orch").Msg("shutdown complete")
}
