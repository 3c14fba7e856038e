package core

import "github.com/dkeye/huddle/internal/domain"

// memberSession implements MemberSession by pairing an address and a transport.
type memberSession struct {
	id     SessionID
	fid    domain.FID
	signal SignalConnection
	hb     Heartbeat
}

func NewMemberSession(id SessionID, fid domain.FID, signal SignalConnection, hb Heartbeat) MemberSession {
	return &memberSession{id: id, fid: fid, signal: signal, hb: hb}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Room() domain.RoomID      { return m.fid.Room }
func (m *memberSession) Member() domain.MemberID  { return m.fid.Member }
func (m *memberSession) Signal() SignalConnection { return m.signal }
func (m *memberSession) Heartbeat() Heartbeat     { return m.hb }
