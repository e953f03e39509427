package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// wsPath is the relay's websocket endpoint.
const wsPath = "/ws"

// The service answers with JSON or a websocket and never renders a page,
// so nothing may be fetched, framed or cached.
var responseHeaders = map[string]string{
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Referrer-Policy":           "no-referrer",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Cache-Control":             "no-store",
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range responseHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize limits request body size.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateRequest rejects requests no route could serve: non-JSON bodies,
// plain HTTP on the websocket endpoint, and ids carrying traversal or
// script fragments. The websocket query holds only the handshake token and
// is not scanned.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.ContentLength > 0 &&
			!strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"):
			writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		case r.URL.Path == wsPath && !websocket.IsWebSocketUpgrade(r):
			w.Header().Set("Upgrade", "websocket")
			writeError(w, http.StatusUpgradeRequired, "websocket upgrade required")
		case suspicious(r.URL.Path),
			r.URL.Path != wsPath && suspicious(r.URL.RawQuery):
			writeError(w, http.StatusBadRequest, "invalid request")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

var suspiciousFragments = []string{
	"..", "//", // traversal
	"<script", "javascript:", "vbscript:", "onload=", "onerror=",
}

func suspicious(input string) bool {
	lower := strings.ToLower(input)
	for _, f := range suspiciousFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
