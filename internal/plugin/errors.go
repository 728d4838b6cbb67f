package plugin

import "errors"

// Plugin registry errors.
var (
	// ErrDuplicateID is returned when registering a plugin whose ID is taken.
	ErrDuplicateID = errors.New("plugin ID already registered")

	// ErrUnknownPlugin is returned by lifecycle operations on an unknown ID.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrEmptyID is returned when a plugin reports no ID.
	ErrEmptyID = errors.New("plugin ID is required")

	// ErrHandlerPanic wraps a recovered panic from a handler entry point.
	ErrHandlerPanic = errors.New("handler panic")
)
