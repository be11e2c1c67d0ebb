package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for cloud API operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, cloud.ErrUnauthorized) {
//	    // re-authenticate out of band
//	}
var (
	// ErrUnauthorized is returned when no token is set, the server answers 401,
	// or the auth endpoint rejects the credentials with 400.
	ErrUnauthorized = errors.New("cloud: unauthorized")

	// ErrNotFound is returned when the server answers 404.
	ErrNotFound = errors.New("cloud: not found")

	// ErrInvalidArgument is returned when local validation fails before any request is sent.
	ErrInvalidArgument = errors.New("cloud: invalid argument")

	// ErrAPI is the sentinel every *APIError unwraps to.
	ErrAPI = errors.New("cloud: api error")
)

// APIError carries the status code and server message of a failed request.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("cloud: api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrAPI) match any APIError.
func (e *APIError) Unwrap() error {
	return ErrAPI
}
