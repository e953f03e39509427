// Package messagelog stores per-target message logs, newest first.
package messagelog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// UserKey returns the key of a user's personal log.
func UserKey(userID string) string {
	return fmt.Sprintf("messages:%s", userID)
}

// RoomKey returns the key of a room's log. Room logs live apart from
// personal logs so a room id can never name a user's history.
func RoomKey(roomID string) string {
	return fmt.Sprintf("messages:room:%s", roomID)
}

// recipientKey returns the log a message is delivered to.
func recipientKey(m models.Message) string {
	if m.ToRoom() {
		return RoomKey(m.RecipientID)
	}
	return UserKey(m.RecipientID)
}

// Log appends to and reads from message logs.
type Log struct {
	kv     store.Substrate
	logger zerolog.Logger
}

// New creates a Log over the given substrate.
func New(kv store.Substrate, logger zerolog.Logger) *Log {
	return &Log{kv: kv, logger: logger}
}

// Append pushes a message to the front of the log stored under key.
func (l *Log) Append(ctx context.Context, key string, m models.Message) error {
	record, err := Encode(m)
	if err != nil {
		return err
	}
	return l.kv.LPush(ctx, key, record)
}

// Recent returns at most count records from the log stored under key,
// newest first. Records that cannot be decoded are skipped.
func (l *Log) Recent(ctx context.Context, key string, count int) ([]models.Message, error) {
	if count <= 0 {
		return []models.Message{}, nil
	}

	records, err := l.kv.LRange(ctx, key, 0, int64(count)-1)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(records))
	for _, record := range records {
		m, err := Decode(record)
		if err != nil {
			l.logger.Debug().Err(err).Str("key", key).Msg("skipping undecodable record")
			continue
		}
		messages = append(messages, m)
	}

	return messages, nil
}

// Deliver stamps the message as delivered and writes it to the recipient's
// log and then the sender's. The two writes are independent; a failure on
// the second leaves the first in place.
func (l *Log) Deliver(ctx context.Context, m models.Message) (models.Message, error) {
	m.Status = models.StatusDelivered

	if _, err := Encode(m); err != nil {
		return m, err
	}
	if err := l.Append(ctx, recipientKey(m), m); err != nil {
		return m, err
	}
	if err := l.Append(ctx, UserKey(m.From), m); err != nil {
		return m, err
	}
	return m, nil
}
