package relay

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// Private and room channels live in separate namespaces, so a room id can
// never name a user's channel.
func userChannel(userID string) string { return "user:" + userID }

func roomChannel(roomID string) string { return "room:" + roomID }

// recipientChannel picks the channel for a message's recipient.
func recipientChannel(recipientType, recipientID string) string {
	if recipientType == models.RecipientRoom {
		return roomChannel(recipientID)
	}
	return userChannel(recipientID)
}

// Hub tracks which sessions listen on which channels.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Session]struct{}
	joined   map[*Session]map[string]struct{}
	logger   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Session]struct{}),
		joined:   make(map[*Session]map[string]struct{}),
		logger:   logger,
	}
}

// Join subscribes a session to a channel.
func (h *Hub) Join(s *Session, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Session]struct{})
		h.channels[channel] = members
	}
	members[s] = struct{}{}

	chans, ok := h.joined[s]
	if !ok {
		chans = make(map[string]struct{})
		h.joined[s] = chans
	}
	chans[channel] = struct{}{}
}

// Leave unsubscribes a session from a channel.
func (h *Hub) Leave(s *Session, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, channel)
}

func (h *Hub) leaveLocked(s *Session, channel string) {
	if members, ok := h.channels[channel]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	if chans, ok := h.joined[s]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(h.joined, s)
		}
	}
}

// Remove drops every membership of a session.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for channel := range h.joined[s] {
		h.leaveLocked(s, channel)
	}
	delete(h.joined, s)
}

// Channels returns the channels a session is subscribed to.
func (h *Hub) Channels(s *Session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.joined[s]))
	for channel := range h.joined[s] {
		out = append(out, channel)
	}
	return out
}

// Emit sends a frame to every session on the given channels except the
// sender. A session on several of the channels receives the frame once.
// It returns the number of sessions the frame was queued for.
func (h *Hub) Emit(from *Session, channels []string, out Outbound) int {
	h.mu.RLock()
	targets := make(map[*Session]struct{})
	for _, channel := range channels {
		for s := range h.channels[channel] {
			if s != from {
				targets[s] = struct{}{}
			}
		}
	}
	h.mu.RUnlock()

	sent := 0
	for s := range targets {
		if s.Send(out) {
			sent++
			continue
		}
		if s.released() {
			continue
		}
		h.logger.Warn().
			Str("session", s.ID).
			Str("user", s.UserID()).
			Str("event", out.Event).
			Msg("dropping frame for slow or closed session")
	}
	return sent
}

// Members returns the number of sessions on a channel.
func (h *Hub) Members(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// SessionCount returns the number of sessions holding at least one
// membership.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.joined)
}
