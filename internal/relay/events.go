package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// Inbound event names.
const (
	EventSendMessage      = "sendMessage"
	EventJoinRoom         = "joinRoom"
	EventMessagesRead     = "messagesRead"
	EventMessageSeen      = "messageSeen"
	EventMessageDelivered = "messageDelivered"
)

// Outbound-only event names.
const (
	EventUsers        = "users"
	EventRooms        = "rooms"
	EventMessages     = "messages"
	EventConnected    = "connected"
	EventRoomMessages = "roomMessages"
	EventSeen         = "seen"
	EventError        = "error"
)

// ErrValidation marks inbound frames or payloads that do not match their
// schema.
var ErrValidation = errors.New("invalid event")

// Inbound is a frame read from a client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is a frame written to a client. Args holds the positional
// arguments of the event.
type Outbound struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

func newOutbound(event string, args ...any) Outbound {
	if args == nil {
		args = []any{}
	}
	return Outbound{Event: event, Args: args}
}

// SendMessagePayload is the body of sendMessage.
type SendMessagePayload struct {
	RecipientID   string `json:"recipient_id"`
	From          string `json:"from"`
	Content       string `json:"content"`
	MessageID     string `json:"message_id"`
	RecipientType string `json:"recipient_type"`
	CreationTime  string `json:"creation_time"`
}

func (p SendMessagePayload) validate(self string) error {
	switch {
	case strings.TrimSpace(p.RecipientID) == "":
		return fmt.Errorf("%w: recipient_id is required", ErrValidation)
	case strings.TrimSpace(p.MessageID) == "":
		return fmt.Errorf("%w: message_id is required", ErrValidation)
	case p.From != self:
		return fmt.Errorf("%w: from must be the connected user", ErrValidation)
	case p.RecipientType != models.RecipientUser && p.RecipientType != models.RecipientRoom:
		return fmt.Errorf("%w: recipient_type must be %q or %q", ErrValidation, models.RecipientUser, models.RecipientRoom)
	}
	return nil
}

func (p SendMessagePayload) message() models.Message {
	return models.Message{
		RecipientID:   p.RecipientID,
		From:          p.From,
		Content:       p.Content,
		MessageID:     p.MessageID,
		RecipientType: p.RecipientType,
		CreationTime:  p.CreationTime,
	}
}

// JoinRoomPayload is the body of joinRoom. Either room may be omitted.
type JoinRoomPayload struct {
	PreviousRoom string `json:"previousRoom,omitempty"`
	NewRoom      string `json:"newRoom,omitempty"`
}

func (p JoinRoomPayload) validate() error {
	if p.PreviousRoom == "" && p.NewRoom == "" {
		return fmt.Errorf("%w: previousRoom or newRoom is required", ErrValidation)
	}
	return nil
}

// MessagesReadPayload is the body of messagesRead.
type MessagesReadPayload struct {
	UserID          string `json:"userid"`
	LastSeenMessage string `json:"lastSeenMessage"`
}

func (p MessagesReadPayload) validate() error {
	if p.UserID == "" || p.LastSeenMessage == "" {
		return fmt.Errorf("%w: userid and lastSeenMessage are required", ErrValidation)
	}
	return nil
}

// MessageSeenPayload is the body of messageSeen.
type MessageSeenPayload struct {
	UserID    string `json:"userid"`
	MessageID string `json:"messageid"`
}

func (p MessageSeenPayload) validate() error {
	if p.UserID == "" || p.MessageID == "" {
		return fmt.Errorf("%w: userid and messageid are required", ErrValidation)
	}
	return nil
}

// ErrorPayload is the argument of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeStrict unmarshals a payload rejecting unknown fields and trailing
// data.
func decodeStrict(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing data", ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrValidation)
	}
	return nil
}
