package store

import (
	"context"
	"errors"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// ErrSubstrate wraps every failure reported by the key-value substrate.
var ErrSubstrate = errors.New("substrate error")

// Substrate is the narrow key-value surface the relay components depend on.
// RedisStore implements it; components never hold their own global state.
type Substrate interface {
	// Hash fields
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key string, pairs ...string) error
	HSetNX(ctx context.Context, key, field, value string) (bool, error)

	// Lists
	LPush(ctx context.Context, key, value string) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ReplaceList(ctx context.Context, key string, values []string) error

	// Counters
	IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// AccountSource lists registered accounts and rooms from relational storage.
// Both PostgresStore and SQLiteStore implement this interface.
type AccountSource interface {
	Close()
	Ping(ctx context.Context) error

	ListUsers(ctx context.Context) ([]models.User, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
}

// MessageArchive records messages stamped over HTTP in the relational
// messages table.
type MessageArchive interface {
	SaveMessage(ctx context.Context, m models.Message) error
}
