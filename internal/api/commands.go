package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nerrad567/gregor-bridge/internal/cloud"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// setModeRequest is the body of PUT /rooms/{id}/mode.
type setModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleOpenDrive(w http.ResponseWriter, r *http.Request) {
	s.actuateDrive(w, r, "open", s.commanderOpen)
}

func (s *Server) handleCloseDrive(w http.ResponseWriter, r *http.Request) {
	s.actuateDrive(w, r, "close", s.commanderClose)
}

func (s *Server) commanderOpen(ctx context.Context, id int64) (registry.CoverState, error) {
	return s.commander.Open(ctx, id)
}

func (s *Server) commanderClose(ctx context.Context, id int64) (registry.CoverState, error) {
	return s.commander.Close(ctx, id)
}

func (s *Server) actuateDrive(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	fn func(context.Context, int64) (registry.CoverState, error),
) {
	if s.commander == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "commands not available")
		return
	}

	id, ok := idFromPath(w, r, "id")
	if !ok {
		return
	}

	state, err := fn(r.Context(), id)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	s.logger.Info("drive command accepted", "device_id", id, "action", action, "state", state)
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"action":    action,
		"state":     state,
	})
}

// handleSetRoomMode switches a room to one of cloud.RoomStates.
func (s *Server) handleSetRoomMode(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "commands not available")
		return
	}

	id, ok := idFromPath(w, r, "id")
	if !ok {
		return
	}

	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Mode == "" {
		writeBadRequest(w, "mode is required")
		return
	}
	if !cloud.ValidRoomState(req.Mode) {
		s.writeCommandError(w, r, fmt.Errorf("%w: room mode %q", cloud.ErrInvalidArgument, req.Mode))
		return
	}

	if err := s.commander.SetMode(r.Context(), id, req.Mode); err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room_id": id,
		"mode":    req.Mode,
	})
}
