package registry

import "errors"

// Domain errors for the registry package.
var (
	// ErrInvalidStalePolicy is returned when a stale-value policy name is not recognised.
	ErrInvalidStalePolicy = errors.New("registry: invalid stale policy")

	// ErrInvalidMode is returned when a room mode is not one of the select options.
	ErrInvalidMode = errors.New("registry: invalid mode")
)
