package handlers

import (
	"net/http"

	"github.com/eldtechnologies/chatrelay/internal/presence"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers   int `json:"total_users"`
	OnlineUsers  int `json:"online_users"`
	TotalRooms   int `json:"total_rooms"`
	OpenSessions int `json:"open_sessions"`
}

// Stats returns presence statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.presence.ListKnownUsers(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	rooms, err := h.presence.ListKnownRooms(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.SessionCount()
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:   len(users),
		OnlineUsers:  presence.CountOnline(users),
		TotalRooms:   len(rooms),
		OpenSessions: sessions,
	})
}
