package messagelog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// Delimiter separates the positional fields of a stored record.
const Delimiter = "."

// fieldCount is the number of positional fields in a record:
// recipient_id, sender_id, content, message_id, status, recipient_type,
// creation_time.
const fieldCount = 7

var (
	ErrMalformedRecord  = errors.New("malformed message record")
	ErrDelimiterInField = errors.New("delimiter not allowed in message field")
)

// Encode serializes a message into its stored record form. Only the content
// field may contain the delimiter.
func Encode(m models.Message) (string, error) {
	fixed := []struct{ name, value string }{
		{"recipient_id", m.RecipientID},
		{"from", m.From},
		{"message_id", m.MessageID},
		{"status", m.Status},
		{"recipient_type", m.RecipientType},
		{"creation_time", m.CreationTime},
	}
	for _, f := range fixed {
		if strings.Contains(f.value, Delimiter) {
			return "", fmt.Errorf("%w: %s", ErrDelimiterInField, f.name)
		}
	}

	return strings.Join([]string{
		m.RecipientID,
		m.From,
		m.Content,
		m.MessageID,
		m.Status,
		m.RecipientType,
		m.CreationTime,
	}, Delimiter), nil
}

// Decode parses a stored record. Records written before content was allowed
// to carry the delimiter have exactly seven fields; anything beyond seven is
// folded back into content, which is the only free-text field.
func Decode(record string) (models.Message, error) {
	parts := strings.Split(record, Delimiter)
	n := len(parts)
	if n < fieldCount {
		return models.Message{}, fmt.Errorf("%w: %d fields", ErrMalformedRecord, n)
	}

	tail := parts[n-4:]
	return models.Message{
		RecipientID:   parts[0],
		From:          parts[1],
		Content:       strings.Join(parts[2:n-4], Delimiter),
		MessageID:     tail[0],
		Status:        tail[1],
		RecipientType: tail[2],
		CreationTime:  tail[3],
	}, nil
}
