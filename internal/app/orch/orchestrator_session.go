package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Authorize checks the member's credentials and returns its heartbeat policy.
// The adapter announces it before Join so rpc settings precede any event.
func (o *Orchestrator) Authorize(fid domain.FID, credentials string) (core.Heartbeat, error) {
	if !fid.IsMember() {
		return core.Heartbeat{}, fmt.Errorf("%w: %s is not a member", domain.ErrInvalidFID, fid)
	}
	room, err := o.Rooms.Get(fid.Room)
	if err != nil {
		return core.Heartbeat{}, err
	}
	return room.Authorize(fid.Member, credentials)
}

// Join binds an authorized transport to its member. A member still within its
// reconnect window resumes instead of joining again.
func (o *Orchestrator) Join(sid core.SessionID, fid domain.FID, conn core.SignalConnection, hb core.Heartbeat, cancel context.CancelFunc) (core.MemberSession, error) {
	room, err := o.Rooms.Get(fid.Room)
	if err != nil {
		return nil, err
	}
	sess := core.NewMemberSession(sid, fid, conn, hb)
	o.Registry.Bind(sess, cancel)
	resumed, err := room.Connect(fid.Member, conn)
	if err != nil {
		o.Registry.Unbind(sid)
		return nil, err
	}
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("fid", fid.String()).
		Bool("resumed", resumed).Msg("session joined")
	return sess, nil
}

// Closed is reported by the adapter once the transport is gone. A clean
// close leaves the room now, anything else starts the reconnect window.
func (o *Orchestrator) Closed(sid core.SessionID, clean bool) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	o.Registry.Unbind(sid)
	room, err := o.Rooms.Get(sess.Room())
	if err != nil {
		return
	}
	if clean {
		room.Disconnect(sess.Member(), sess.Signal())
		return
	}
	room.ConnectionLost(sess.Member(), sess.Signal())
}

// Kick evicts a connected member. Its spec stays, so it may join again.
func (o *Orchestrator) Kick(fid domain.FID) error {
	if !fid.IsMember() {
		return fmt.Errorf("%w: %s is not a member", domain.ErrInvalidFID, fid)
	}
	room, err := o.Rooms.Get(fid.Room)
	if err != nil {
		return err
	}
	return room.Kick(fid.Member)
}
