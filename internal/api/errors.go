package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gregor-bridge/internal/cloud"
	"github.com/nerrad567/gregor-bridge/internal/command"
	"github.com/nerrad567/gregor-bridge/internal/scheduler"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeNotFound             = "not_found"
	ErrCodeUnauthorized         = "unauthorised"
	ErrCodeForbidden            = "forbidden"
	ErrCodeConflict             = "conflict"
	ErrCodeNoRoom               = "no_room"
	ErrCodeInternal             = "internal_error"
	ErrCodeMethodNotAllow       = "method_not_allowed"
	ErrCodeUnavailable          = "unavailable"
	ErrCodeUpstreamUnauthorised = "upstream_unauthorised"
	ErrCodeUpstreamError        = "upstream_error"
	ErrCodeUpstreamTimeout      = "upstream_timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorStatus maps a command or cloud error onto a status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, cloud.ErrInvalidArgument):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, command.ErrUnknownDrive), errors.Is(err, cloud.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, command.ErrNoRoom):
		return http.StatusConflict, ErrCodeNoRoom
	case errors.Is(err, scheduler.ErrUpdateInFlight):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, scheduler.ErrStopped):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, cloud.ErrUnauthorized):
		return http.StatusBadGateway, ErrCodeUpstreamUnauthorised
	case errors.Is(err, cloud.ErrAPI):
		return http.StatusBadGateway, ErrCodeUpstreamError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeUpstreamTimeout
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeCommandError maps err and logs anything that is not the caller's
// fault.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("command failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeError(w, status, code, err.Error())
}
