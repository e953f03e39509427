package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/ratelimit"
)

// RateLimitMessage is returned to clients that exceed a limit.
const RateLimitMessage = "You have reached the rate limit. Please wait a moment before trying again."

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	MessageLimit     int           // POST /message requests per window
	MessageWindow    time.Duration // POST /message window
	Whitelist        []string      // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool          // Enable auto-blocking after repeated violations
}

// RateLimiter applies fixed-window limits per endpoint and client IP.
type RateLimiter struct {
	limiter          *ratelimit.Limiter
	limits           map[string]RateLimit
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(limiter *ratelimit.Limiter, blocks BlockStore, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 10
	}
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = time.Minute
	}

	rl := &RateLimiter{
		limiter:          limiter,
		blocker:          NewIPBlocker(blocks),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
		limits: map[string]RateLimit{
			"POST /message": {cfg.MessageLimit, cfg.MessageWindow, ipKey},
			"GET /who/":     {100, time.Minute, ipKey},
			"GET /users":    {60, time.Minute, ipKey},
			"GET /rooms":    {60, time.Minute, ipKey},
			"GET /ws":       {30, time.Minute, ipKey},
		},
	}

	for _, entry := range cfg.Whitelist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// RealIP returns the client IP from the connection address. Forwarding
// headers are only honoured when the router installs chi's RealIP behind a
// trusted proxy, which rewrites RemoteAddr before this runs.
func RealIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			writeError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		pattern, limit, ok := rl.findLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := pattern + ":" + limit.KeyFunc(r)
		res, err := rl.limiter.Allow(r.Context(), key, limit.Requests, limit.Window)
		if err != nil {
			rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
			writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining()))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			metrics.RateLimitHits.WithLabelValues(pattern).Inc()

			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Int64("count", res.Count).
				Msg("rate limit exceeded")

			writeError(w, http.StatusTooManyRequests, RateLimitMessage)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request. The longest
// matching pattern wins.
func (rl *RateLimiter) findLimit(r *http.Request) (string, RateLimit, bool) {
	key := r.Method + " " + r.URL.Path

	var (
		best  string
		limit RateLimit
	)
	for pattern, l := range rl.limits {
		if strings.HasPrefix(key, pattern) && len(pattern) > len(best) {
			best, limit = pattern, l
		}
	}
	return best, limit, best != ""
}

// trackViolation counts rate limit violations and auto-blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	res, err := rl.limiter.Allow(ctx, "violations:ip:"+ip, 10, time.Hour)
	if err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("failed to track violation")
		return
	}

	if res.Count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", res.Count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// BlockStore is the key storage behind IPBlocker.
type BlockStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	store BlockStore
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(store BlockStore) *IPBlocker {
	return &IPBlocker{store: store}
}

func blockKey(ip string) string {
	return fmt.Sprintf("blocked:ip:%s", ip)
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	blocked, _ := b.store.Exists(ctx, blockKey(ip))
	return blocked
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	_ = b.store.SetWithTTL(ctx, blockKey(ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	_ = b.store.Del(ctx, blockKey(ip))
}
