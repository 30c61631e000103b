package model

import "errors"

var (
	// ErrNotFound reports an unknown window or group.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState reports an operation that contradicts current
	// membership, e.g. tabbing a window that is already tabbed elsewhere.
	ErrInvalidState = errors.New("invalid state")
	// ErrDisabled reports an operation refused because the window's
	// configuration excludes it from the engine.
	ErrDisabled = errors.New("window is disabled by configuration")
)
