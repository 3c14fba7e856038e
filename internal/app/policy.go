package app

import "github.com/dkeye/huddle/internal/domain"

type BackpressureAction int

const (
	// CloseSession drops the transport and lets the client resume and resync.
	CloseSession BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose outbound queue is full.
type Policy interface {
	OnBackpressure(room domain.RoomID, member domain.MemberID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(domain.RoomID, domain.MemberID) BackpressureAction {
	return CloseSession
}
