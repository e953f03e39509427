package handlers

import (
	"net/http"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// UserListResponse represents the users list response.
type UserListResponse struct {
	Users []models.RosterEntry `json:"users"`
	Total int                  `json:"total"`
}

// RoomListResponse represents the rooms list response.
type RoomListResponse struct {
	Rooms []models.RoomEntry `json:"rooms"`
	Total int                `json:"total"`
}

// ListUsers returns every known user with their connectivity flag.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.presence.ListKnownUsers(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list users")
		h.Error(w, http.StatusInternalServerError, "presence unavailable")
		return
	}

	h.JSON(w, http.StatusOK, UserListResponse{Users: users, Total: len(users)})
}

// ListRooms returns every known room.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.presence.ListKnownRooms(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list rooms")
		h.Error(w, http.StatusInternalServerError, "presence unavailable")
		return
	}

	h.JSON(w, http.StatusOK, RoomListResponse{Rooms: rooms, Total: len(rooms)})
}
