package core

import "github.com/dkeye/huddle/internal/domain"

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	Members   int           `json:"members"`
	Connected int           `json:"connected"`
	Peers     int           `json:"peers"`
}

// LeaveReason is reported by the on-leave callback.
type LeaveReason string

const (
	LeaveDisconnected   LeaveReason = "disconnected"
	LeaveLostConnection LeaveReason = "lost-connection"
	LeaveKicked         LeaveReason = "kicked"
	LeaveServerShutdown LeaveReason = "server-shutdown"
)
