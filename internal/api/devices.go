package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gregor-bridge/internal/device"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// deviceResponse is one device as the API shows it: the entity plus, for
// drives, the cover and, on the detail route, every sensor.
type deviceResponse struct {
	registry.EntityState
	Cover   *registry.CoverSnapshot `json:"cover,omitempty"`
	Sensors []registry.SensorState  `json:"sensors,omitempty"`
}

func (s *Server) describe(e *registry.Entity, withSensors bool) deviceResponse {
	resp := deviceResponse{EntityState: e.State()}
	if c, ok := s.registry.Cover(e.MAC()); ok {
		snap := c.Snapshot()
		resp.Cover = &snap
	}
	if withSensors {
		resp.Sensors = s.registry.Sensors(e.MAC())
	}
	return resp
}

// handleListDevices returns every provisioned device, ordered by name.
// ?kind=Station or ?kind=Drive filters by device kind.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	devices := make([]deviceResponse, 0)
	for _, e := range s.registry.Entities() {
		if kind != "" && string(e.Kind()) != kind {
			continue
		}
		devices = append(devices, s.describe(e, false))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// entityFromPath resolves {device} as a MAC address, writing the error
// response itself when it cannot.
func (s *Server) entityFromPath(w http.ResponseWriter, r *http.Request) (*registry.Entity, bool) {
	raw := chi.URLParam(r, "device")
	mac, err := device.NormalizeMAC(raw)
	if err != nil {
		writeBadRequest(w, "invalid MAC address: "+raw)
		return nil, false
	}
	e, ok := s.registry.Entity(mac)
	if !ok {
		writeNotFound(w, "device not found: "+mac)
		return nil, false
	}
	return e, true
}

// handleGetDevice returns one device with its sensors.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.describe(e, true))
}

// handleGetSensors returns the sensor states of one device.
func (s *Server) handleGetSensors(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mac":     e.MAC(),
		"sensors": s.registry.Sensors(e.MAC()),
	})
}

// handleListRooms returns the mode select of every room seen.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	modes := s.registry.Modes()
	rooms := make([]registry.ModeState, 0, len(modes))
	for _, m := range modes {
		rooms = append(rooms, m.State())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// handleRefreshDevice polls one device now, outside its schedule, and
// returns the refreshed state.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "refresh not available")
		return
	}

	id, ok := idFromPath(w, r, "device")
	if !ok {
		return
	}
	e, ok := s.registry.EntityByID(id)
	if !ok {
		writeNotFound(w, "device not found: "+strconv.FormatInt(id, 10))
		return
	}

	if err := s.refresher.Trigger(r.Context(), id); err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.describe(e, true))
}

// idFromPath parses a positive cloud id from a path parameter.
func idFromPath(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err == nil && id <= 0 {
		err = errors.New("not positive")
	}
	if err != nil {
		writeBadRequest(w, "invalid id: "+raw)
		return 0, false
	}
	return id, true
}
