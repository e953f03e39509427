package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
)

// RedisStore is the Redis-backed substrate for presence, logs, receipts and
// rate counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrSubstrate, op, key, err)
}

func observe(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// HGet returns a hash field. The bool is false when the field is absent.
func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	defer observe(time.Now())

	val, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("hget", key, err)
	}
	return val, true, nil
}

// HSet sets one or more field/value pairs on a hash.
func (s *RedisStore) HSet(ctx context.Context, key string, pairs ...string) error {
	defer observe(time.Now())

	if len(pairs)%2 != 0 {
		return fmt.Errorf("hset %s: odd number of field/value arguments", key)
	}
	args := make([]interface{}, len(pairs))
	for i, p := range pairs {
		args[i] = p
	}
	if err := s.client.HSet(ctx, key, args...).Err(); err != nil {
		return wrap("hset", key, err)
	}
	return nil
}

// HSetNX sets a hash field only if it does not exist yet.
func (s *RedisStore) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	defer observe(time.Now())

	ok, err := s.client.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return false, wrap("hsetnx", key, err)
	}
	return ok, nil
}

// LPush prepends a value to a list.
func (s *RedisStore) LPush(ctx context.Context, key, value string) error {
	defer observe(time.Now())

	if err := s.client.LPush(ctx, key, value).Err(); err != nil {
		return wrap("lpush", key, err)
	}
	return nil
}

// RPush appends values to a list.
func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) error {
	defer observe(time.Now())

	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := s.client.RPush(ctx, key, args...).Err(); err != nil {
		return wrap("rpush", key, err)
	}
	return nil
}

// LRange returns list elements between start and stop, both inclusive.
func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	defer observe(time.Now())

	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap("lrange", key, err)
	}
	return vals, nil
}

// ReplaceList atomically swaps the contents of a list.
func (s *RedisStore) ReplaceList(ctx context.Context, key string, values []string) error {
	defer observe(time.Now())

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		args := make([]interface{}, len(values))
		for i, v := range values {
			args[i] = v
		}
		pipe.RPush(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("replace", key, err)
	}
	return nil
}

// IncrExpire increments a counter and refreshes its TTL in one MULTI/EXEC,
// returning the post-increment value.
func (s *RedisStore) IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	defer observe(time.Now())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, wrap("incr", key, err)
	}
	return incr.Val(), nil
}

// Exists reports whether a key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap("exists", key, err)
	}
	return n > 0, nil
}

// SetWithTTL stores a plain value that expires after ttl.
func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set", key, err)
	}
	return nil
}

// Del removes a key.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return wrap("del", key, err)
	}
	return nil
}
