package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/nerrad567/gregor-bridge/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// ticketEntry is the identity a ticket was issued to.
type ticketEntry struct {
	subject string
	role    auth.Role
}

// ticketStore holds single-use WebSocket tickets. Expired entries are
// purged by the cache's janitor.
type ticketStore struct {
	mu      sync.Mutex
	tickets *cache.Cache
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: cache.New(ticketTTL, ticketTTL)}
}

func (t *ticketStore) issue(entry ticketEntry) string {
	ticket := uuid.NewString()
	t.tickets.Set(ticket, entry, cache.DefaultExpiration)
	return ticket
}

// redeem consumes a ticket. A ticket works at most once.
func (t *ticketStore) redeem(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.tickets.Get(ticket)
	if !ok {
		return ticketEntry{}, false
	}
	t.tickets.Delete(ticket)
	entry, ok := v.(ticketEntry)
	return entry, ok
}

// handleWSTicket issues a ticket for the caller so a browser can open the
// event stream without putting the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "bearer token required")
		return
	}

	ticket := s.tickets.issue(ticketEntry{subject: claims.Subject, role: claims.Role})
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// authenticateWebSocket accepts ?ticket= or a bearer header.
func (s *Server) authenticateWebSocket(r *http.Request) (ticketEntry, bool) {
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		return s.tickets.redeem(ticket)
	}
	token, ok := bearerToken(r)
	if !ok {
		return ticketEntry{}, false
	}
	claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
	if err != nil {
		return ticketEntry{}, false
	}
	return ticketEntry{subject: claims.Subject, role: claims.Role}, true
}
