package models

// Recipient types carried in Message.RecipientType.
const (
	RecipientUser = "user"
	RecipientRoom = "room"
)

// StatusDelivered is stamped on every message when it is written to a log.
const StatusDelivered = "delivered"

// Message represents a chat message as relayed to clients and stored in
// per-recipient logs.
type Message struct {
	RecipientID   string `json:"recipient_id"`
	From          string `json:"from"`
	Content       string `json:"content"`
	MessageID     string `json:"message_id"`
	Status        string `json:"status,omitempty"`
	RecipientType string `json:"recipient_type"`
	CreationTime  string `json:"creation_time"` // display form, e.g. "09:00"
}

// ToRoom reports whether the message targets a room channel.
func (m Message) ToRoom() bool {
	return m.RecipientType == RecipientRoom
}
