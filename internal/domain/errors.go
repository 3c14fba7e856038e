package domain

import "errors"

var (
	ErrInvalidFID     = errors.New("invalid element id")
	ErrInvalidSpec    = errors.New("invalid spec")
	ErrNotFound       = errors.New("element not found")
	ErrDuplicateID    = errors.New("element already exists")
	ErrDanglingSource = errors.New("play endpoint source does not exist")
	ErrRequiredTrack  = errors.New("required track cannot be disabled")
)
