package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/presence"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// Pinger is a backing service the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports open relay sessions.
type SessionCounter interface {
	SessionCount() int
}

// Deps are the collaborators shared by the HTTP handlers. Accounts and
// Archive are nil when no relational database is configured.
type Deps struct {
	Redis    Pinger
	Presence *presence.Directory
	Accounts store.AccountSource
	Archive  store.MessageArchive
	Sessions SessionCounter
	Logger   zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	redis    Pinger
	presence *presence.Directory
	accounts store.AccountSource
	archive  store.MessageArchive
	sessions SessionCounter
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		redis:    d.Redis,
		presence: d.Presence,
		accounts: d.Accounts,
		archive:  d.Archive,
		sessions: d.Sessions,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
