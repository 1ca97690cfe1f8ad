package errors

import "errors"

var (
	ErrNotFound        = errors.New("lane session not found")
	ErrInvalidID       = errors.New("invalid lane session ID format")
	ErrSelectionLocked = errors.New("selection is already locked")
)
