package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Who handles single-user presence lookup.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" || len(id) > 128 {
		h.Error(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	entry, found, err := h.presence.Lookup(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("user", id).Msg("presence lookup failed")
		h.Error(w, http.StatusInternalServerError, "presence unavailable")
		return
	}
	if !found {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, entry)
}
