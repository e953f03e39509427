package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Upgrader returns a websocket upgrader accepting the given origins. An
// empty list or "*" accepts any origin.
func Upgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimSpace(o)] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// Handler returns the websocket endpoint. The handshake token is read from
// the Authorization header or the token query parameter; a bad token is
// answered with 401 before any upgrade.
func (r *Relay) Handler(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		s, err := r.Open(ctx, handshakeToken(req), clientAddr(req))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.logger.Warn().Err(err).Str("session", s.ID).Msg("websocket upgrade failed")
			r.Abandon(s)
			return
		}

		if err := r.Activate(ctx, s); err != nil {
			r.logger.Error().Err(err).Str("session", s.ID).Msg("session activation failed")
			r.Abandon(s)
			_ = conn.Close()
			return
		}

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			r.writePump(conn, s)
		}()

		r.readPump(req, conn, s)
		r.Close(ctx, s)
		<-writerDone
		_ = conn.Close()
	}
}

// readPump handles inbound frames one at a time until the connection drops.
func (r *Relay) readPump(req *http.Request, conn *websocket.Conn, s *Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				r.logger.Debug().Str("session", s.ID).Msg("client closed connection")
			case errors.As(err, &ne) && ne.Timeout():
				r.logger.Info().Str("session", s.ID).Msg("client timed out")
			default:
				r.logger.Debug().Err(err).Str("session", s.ID).Msg("read failed")
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			s.Send(newOutbound(EventError, ErrorPayload{
				Code:    CodeValidation,
				Message: fmt.Sprintf("%v: frame must be {\"event\", \"data\"}", ErrValidation),
			}))
			continue
		}

		_ = r.Dispatch(req.Context(), s, in)
	}
}

// writePump drains the session's queue onto the connection and keeps it
// alive with pings.
func (r *Relay) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			// Closing the connection also unblocks the read pump when the
			// relay releases the session first.
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			_ = conn.Close()
			return
		case out := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(out); err != nil {
				r.logger.Debug().Err(err).Str("session", s.ID).Msg("write failed")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func handshakeToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
