// Package ratelimit implements a fixed-window request counter on the shared
// substrate.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/store"
)

// ErrRateLimited is the rejection reported to callers over the limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Result is the outcome of a single counted request.
type Result struct {
	Count   int64
	Limit   int
	Allowed bool
	ResetAt time.Time
}

// Remaining returns how many more requests the window admits.
func (r Result) Remaining() int {
	left := int64(r.Limit) - r.Count
	if left < 0 {
		return 0
	}
	return int(left)
}

// counterKey returns the key for a client's counter.
func counterKey(clientID string) string {
	return "ratelimit:" + clientID
}

// Limiter counts requests per client in fixed windows. Every counted request
// refreshes the counter's TTL and the window restarts only when the counter
// expires, so a burst straddling a boundary can admit up to twice the limit.
type Limiter struct {
	kv  store.Substrate
	now func() time.Time
}

// New creates a Limiter over the given substrate.
func New(kv store.Substrate) *Limiter {
	return &Limiter{kv: kv, now: time.Now}
}

// Allow counts one request for clientID. Policy rejections are reported in
// the Result; the error is only set when the substrate fails.
func (l *Limiter) Allow(ctx context.Context, clientID string, limit int, window time.Duration) (Result, error) {
	count, err := l.kv.IncrExpire(ctx, counterKey(clientID), window)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Count:   count,
		Limit:   limit,
		Allowed: count <= int64(limit),
		ResetAt: l.now().Add(window),
	}, nil
}
