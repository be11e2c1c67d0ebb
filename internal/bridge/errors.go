package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidOptions is returned by NewBridge when a dependency is missing.
	ErrInvalidOptions = errors.New("bridge: invalid options")

	// ErrUnknownTarget is returned for a command topic other than drive or room.
	ErrUnknownTarget = errors.New("bridge: unknown command target")

	// ErrUnknownCommand is returned for a command the target does not accept.
	ErrUnknownCommand = errors.New("bridge: unknown command")
)
