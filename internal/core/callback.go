package core

//go:generate mockgen -source=callback.go -destination=mock_callback.go -package=core

import (
	"context"
	"time"
)

type CallbackKind string

const (
	CallbackOnJoin  CallbackKind = "on_join"
	CallbackOnLeave CallbackKind = "on_leave"
)

// CallbackEvent is the body of a lifecycle callback.
type CallbackEvent struct {
	FID    string       `json:"fid"`
	At     time.Time    `json:"at"`
	Event  CallbackKind `json:"event"`
	Reason LeaveReason  `json:"reason,omitempty"`
}

// CallbackSender delivers lifecycle callbacks. Delivery is fire-and-forget:
// callers log the error and move on.
type CallbackSender interface {
	Send(ctx context.Context, url string, ev CallbackEvent) error
}
