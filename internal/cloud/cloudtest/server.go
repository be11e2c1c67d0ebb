// Package cloudtest provides an in-process fake of the MyGregor cloud API
// for tests. It records every request so callers can assert on call counts.
package cloudtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Default credentials accepted by the fake.
const (
	Token    = "test-token"
	Username = "user@example.com"
	Password = "correct-horse"
)

// Request is one recorded call.
type Request struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

type failure struct {
	status int
	body   string
}

// Server is a fake cloud API backed by httptest.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	devices    []map[string]any
	rooms      []map[string]any
	requests   []Request
	failures   map[string]failure
	roomStates map[int64]string
}

// New starts a fake cloud and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		failures:   make(map[string]failure),
		roomStates: make(map[int64]string),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Post("/v2/auth", s.handleAuth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/v2/accounts/me", s.handleAccount)
		r.Get("/v2/devices", s.handleDevices)
		r.Get("/v2/devices/{id}", s.handleDevice)
		r.Get("/v2.1/rooms", s.handleRooms)
		r.Get("/v2/rooms/{id}", s.handleRoom)
		r.Put("/v2/rooms/{id}", s.handleSetRoom)
	})

	return r
}

// SetDevice adds or replaces a device record, keyed by its "id".
func (s *Server) SetDevice(raw map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.devices {
		if sameID(d["id"], raw["id"]) {
			s.devices[i] = raw
			return
		}
	}
	s.devices = append(s.devices, raw)
}

// SetRooms replaces the room list.
func (s *Server) SetRooms(rooms ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = rooms
}

// Fail makes every request matching method and path answer with status and body.
// Path is matched without the query string.
func (s *Server) Fail(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, body: body}
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Calls returns the number of requests received.
func (s *Server) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every recorded request.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RoomState returns the last state PUT for a room.
func (s *Server) RoomState(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomStates[id]
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if ok {
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Malformed request"})
		return
	}
	if req.Email != Username || req.Password != Password {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Invalid email or password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":               Token,
		"token_expires_after": 3600,
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    1,
		"email": Username,
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	withData := strings.Contains(r.URL.Query().Get("include"), "device_data")

	s.mu.Lock()
	devices := make([]map[string]any, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, view(d, withData))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	withData := strings.Contains(r.URL.Query().Get("include"), "device_data")

	s.mu.Lock()
	var found map[string]any
	for _, d := range s.devices {
		if sameID(d["id"], id) {
			found = view(d, withData)
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Device not found"})
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rooms := s.rooms
	s.mu.Unlock()

	if rooms == nil {
		rooms = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	var found map[string]any
	for _, room := range s.rooms {
		if sameID(room["id"], id) {
			found = room
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Room not found"})
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleSetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Room not found"})
		return
	}

	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Malformed request"})
		return
	}

	s.mu.Lock()
	s.roomStates[id] = req.State
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": req.State})
}

// view returns the record as the cloud would render it, without
// sensors_raw unless device data was requested.
func view(d map[string]any, withData bool) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if k == "sensors_raw" && !withData {
			continue
		}
		out[k] = v
	}
	return out
}

func sameID(a, b any) bool {
	return idString(a) == idString(b)
}

func idString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatInt(int64(n), 10)
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
