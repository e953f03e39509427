package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/messagelog"
	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

const maxMessageLength = 255

// CreationTimeLayout is the display format of a message's creation time.
const CreationTimeLayout = "15:04"

// CreateMessageRequest represents the request body for stamping a message.
type CreateMessageRequest struct {
	Message       string `json:"message"`
	From          string `json:"from"`
	RecipientID   string `json:"recipient_id"`
	RecipientType string `json:"recipient_type"`
}

// CreateMessageResponse carries the id and time a client then sends over
// the relay with sendMessage.
type CreateMessageResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	MessageID    string `json:"message_id"`
	CreationTime string `json:"creation_time"`
}

// CreateMessage validates a message, assigns it an id and creation time,
// and archives it when a database is configured.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if msg := validateMessage(req); msg != "" {
		h.Error(w, http.StatusUnprocessableEntity, msg)
		return
	}

	if id, ok := middleware.IdentityFromContext(r.Context()); ok && id.UserID != req.From {
		h.Error(w, http.StatusForbidden, "from does not match the authenticated user")
		return
	}

	m := models.Message{
		RecipientID:   req.RecipientID,
		From:          req.From,
		Content:       req.Message,
		MessageID:     ulid.Make().String(),
		RecipientType: req.RecipientType,
		CreationTime:  h.now().Format(CreationTimeLayout),
	}
	if _, err := messagelog.Encode(m); err != nil {
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if h.archive != nil {
		if err := h.archive.SaveMessage(r.Context(), m); err != nil {
			h.logger.Error().Err(err).Str("user", m.From).Msg("failed to archive message")
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
	}

	metrics.MessagesStamped.Inc()

	h.JSON(w, http.StatusOK, CreateMessageResponse{
		Success:      true,
		Message:      m.Content,
		MessageID:    m.MessageID,
		CreationTime: m.CreationTime,
	})
}

// validateMessage returns a client-facing reason, or "" when valid.
func validateMessage(req CreateMessageRequest) string {
	switch {
	case req.Message == "":
		return "message is required"
	case utf8.RuneCountInString(req.Message) > maxMessageLength:
		return "message too long (max 255 characters)"
	case strings.TrimSpace(req.From) == "":
		return "from is required"
	case strings.TrimSpace(req.RecipientID) == "":
		return "recipient_id is required"
	case req.RecipientType != models.RecipientUser && req.RecipientType != models.RecipientRoom:
		return "recipient_type must be user or room"
	}
	return ""
}
