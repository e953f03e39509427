// Package relay pushes chat events between connected clients. Each
// connection is a Session; sessions meet on channels held by the Hub.
package relay

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/eldtechnologies/chatrelay/internal/auth"
	"github.com/eldtechnologies/chatrelay/internal/messagelog"
	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/presence"
	"github.com/eldtechnologies/chatrelay/internal/ratelimit"
	"github.com/eldtechnologies/chatrelay/internal/receipts"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// ErrShuttingDown is returned by Activate once Shutdown has begun.
var ErrShuttingDown = errors.New("relay is shutting down")

// Client-facing error codes.
const (
	CodeValidation  = "validation"
	CodeSubstrate   = "substrate"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// Options tunes the relay. Zero values fall back to defaults.
type Options struct {
	HistorySize     int
	RoomHistorySize int
	EventRate       rate.Limit
	EventBurst      int
	QueueSize       int
	SendTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.HistorySize <= 0 {
		o.HistorySize = 50
	}
	if o.RoomHistorySize <= 0 {
		o.RoomHistorySize = 6
	}
	if o.EventRate <= 0 {
		o.EventRate = 20
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 40
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 2 * time.Second
	}
	return o
}

// Relay wires sessions to the presence directory, the message logs and the
// receipt tracker.
type Relay struct {
	hub      *Hub
	verifier auth.Verifier
	presence *presence.Directory
	messages *messagelog.Log
	receipts *receipts.Tracker
	logger   zerolog.Logger
	opts     Options

	// userLocks serialize a user's online and offline transitions so the
	// last session to close decides presence.
	userLocks [64]sync.Mutex

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	active   sync.WaitGroup
}

// New creates a Relay.
func New(verifier auth.Verifier, dir *presence.Directory, msgs *messagelog.Log, rec *receipts.Tracker, logger zerolog.Logger, opts Options) *Relay {
	return &Relay{
		hub:      NewHub(logger),
		verifier: verifier,
		presence: dir,
		messages: msgs,
		receipts: rec,
		logger:   logger,
		opts:     opts.withDefaults(),
		sessions: make(map[*Session]struct{}),
	}
}

// SessionCount returns the number of active sessions.
func (r *Relay) SessionCount() int {
	return r.hub.SessionCount()
}

// Open verifies a handshake token and returns an authenticated session.
// A rejected token leaves no session behind.
func (r *Relay) Open(ctx context.Context, token, remoteAddr string) (*Session, error) {
	s := newSession(remoteAddr, r.opts)

	id, err := r.verifier.Verify(ctx, token)
	if err != nil {
		metrics.HandshakeFailures.Inc()
		_ = s.advance(StateClosed)
		s.release()
		r.logger.Info().Err(err).Str("remote", remoteAddr).Msg("handshake rejected")
		return nil, err
	}

	s.identity = id
	if err := s.advance(StateAuthenticated); err != nil {
		return nil, err
	}
	return s, nil
}

// Abandon releases an authenticated session that never became active, for
// example when the transport upgrade fails.
func (r *Relay) Abandon(s *Session) {
	_ = s.advance(StateClosed)
	s.release()
}

// Activate announces the session's user and pushes the initial snapshots.
// Substrate failures are logged and do not stop the remaining steps.
func (r *Relay) Activate(ctx context.Context, s *Session) error {
	if s.State() != StateAuthenticated {
		return fmt.Errorf("activate session %s: state is %s", s.ID, s.State())
	}

	if err := r.track(s); err != nil {
		return err
	}
	if err := s.advance(StateActive); err != nil {
		r.untrack(s)
		return err
	}
	metrics.ActiveSessions.Inc()

	userID := s.UserID()
	log := r.logger.With().Str("session", s.ID).Str("user", userID).Logger()

	if err := r.enter(ctx, s); err != nil {
		log.Error().Err(err).Msg("failed to mark user online")
	}

	users, err := r.presence.ListKnownUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load user roster")
	} else {
		r.hub.Emit(s, otherUsers(users, userID), newOutbound(EventConnected, true, userID))
		s.Send(newOutbound(EventUsers, users))
	}

	rooms, err := r.presence.ListKnownRooms(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load room roster")
	} else {
		s.Send(newOutbound(EventRooms, rooms))
	}

	history, err := r.messages.Recent(ctx, messagelog.UserKey(userID), r.opts.HistorySize)
	if err != nil {
		log.Error().Err(err).Msg("failed to load message history")
	} else if len(history) > 0 {
		s.Send(newOutbound(EventMessages, history))
	}

	log.Info().Str("remote", s.RemoteAddr).Msg("session active")
	return nil
}

// Close releases the session. When it was the user's last open session the
// user is marked offline and the other known users are told. Memberships
// are dropped even when the substrate fails.
func (r *Relay) Close(ctx context.Context, s *Session) {
	if s.State() != StateActive {
		r.Abandon(s)
		return
	}

	userID := s.UserID()
	log := r.logger.With().Str("session", s.ID).Str("user", userID).Logger()

	_ = s.advance(StateDisconnecting)
	defer func() {
		_ = s.advance(StateClosed)
		s.release()
		metrics.ActiveSessions.Dec()
		r.untrack(s)
		log.Info().Msg("session closed")
	}()

	ctx = context.WithoutCancel(ctx)

	last, err := r.leave(ctx, s)
	if !last {
		log.Debug().Msg("user still has open sessions")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to mark user offline")
	}

	users, err := r.presence.ListKnownUsers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load user roster")
		return
	}
	r.hub.Emit(s, otherUsers(users, userID), newOutbound(EventConnected, false, userID))
}

// Shutdown stops new activations, releases every active session and waits
// until each has closed or ctx is done. Releasing a session makes the
// transport drop its connection, which runs Close.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	open := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	r.logger.Info().Int("sessions", len(open)).Msg("draining relay sessions")
	for _, s := range open {
		s.release()
	}

	drained := make(chan struct{})
	go func() {
		r.active.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain relay sessions: %w", ctx.Err())
	}
}

func (r *Relay) track(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return ErrShuttingDown
	}
	r.sessions[s] = struct{}{}
	r.active.Add(1)
	return nil
}

func (r *Relay) untrack(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s]; ok {
		delete(r.sessions, s)
		r.active.Done()
	}
}

func (r *Relay) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.userLocks[h.Sum32()%uint32(len(r.userLocks))]
}

// enter joins the session to its user's private channel and marks the user
// online.
func (r *Relay) enter(ctx context.Context, s *Session) error {
	mu := r.userLock(s.UserID())
	mu.Lock()
	defer mu.Unlock()

	r.hub.Join(s, userChannel(s.UserID()))
	return r.presence.SetOnline(ctx, s.UserID(), true)
}

// leave drops every membership of the session. When no other session of the
// user remains it marks the user offline and reports last.
func (r *Relay) leave(ctx context.Context, s *Session) (last bool, err error) {
	mu := r.userLock(s.UserID())
	mu.Lock()
	defer mu.Unlock()

	r.hub.Remove(s)
	if r.hub.Members(userChannel(s.UserID())) > 0 {
		return false, nil
	}
	return true, r.presence.SetOnline(ctx, s.UserID(), false)
}

// Dispatch handles one inbound frame. Failures are logged and reported to
// the client as an error event; the returned error is the same failure.
func (r *Relay) Dispatch(ctx context.Context, s *Session, in Inbound) error {
	if s.State() != StateActive {
		return fmt.Errorf("dispatch on session %s: state is %s", s.ID, s.State())
	}

	var err error
	if !s.throttle.Allow() {
		err = ratelimit.ErrRateLimited
	} else {
		err = r.handle(ctx, s, in)
	}

	metrics.EventsHandled.WithLabelValues(eventLabel(in.Event), outcome(err)).Inc()
	if err == nil {
		return nil
	}

	code := errorCode(err)
	ev := r.logger.Warn()
	if code == CodeSubstrate || code == CodeInternal {
		ev = r.logger.Error()
	}
	ev.Err(err).
		Str("session", s.ID).
		Str("user", s.UserID()).
		Str("event", in.Event).
		Msg("event failed")

	s.Send(newOutbound(EventError, ErrorPayload{Code: code, Message: err.Error()}))
	return err
}

func (r *Relay) handle(ctx context.Context, s *Session, in Inbound) error {
	switch in.Event {
	case EventSendMessage:
		return r.sendMessage(ctx, s, in)
	case EventJoinRoom:
		return r.joinRoom(ctx, s, in)
	case EventMessagesRead:
		return r.messagesRead(ctx, s, in)
	case EventMessageSeen:
		return r.messageSeen(ctx, s, in)
	case EventMessageDelivered:
		return r.messageDelivered(s, in)
	}
	return fmt.Errorf("%w: unknown event %q", ErrValidation, in.Event)
}

func (r *Relay) sendMessage(ctx context.Context, s *Session, in Inbound) error {
	var p SendMessagePayload
	if err := decodeStrict(in.Data, &p); err != nil {
		return err
	}
	if err := p.validate(s.UserID()); err != nil {
		return err
	}

	if _, err := r.messages.Deliver(ctx, p.message()); err != nil {
		return err
	}

	r.hub.Emit(s, []string{recipientChannel(p.RecipientType, p.RecipientID)}, newOutbound(EventSendMessage, in.Data))
	metrics.MessagesRelayed.WithLabelValues(p.RecipientType).Inc()
	return nil
}

func (r *Relay) joinRoom(ctx context.Context, s *Session, in Inbound) error {
	var p JoinRoomPayload
	if err := decodeStrict(in.Data, &p); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}

	if p.PreviousRoom != "" {
		r.hub.Leave(s, roomChannel(p.PreviousRoom))
	}
	if p.NewRoom == "" {
		return nil
	}
	r.hub.Join(s, roomChannel(p.NewRoom))

	history, err := r.messages.Recent(ctx, messagelog.RoomKey(p.NewRoom), r.opts.RoomHistorySize)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		s.Send(newOutbound(EventRoomMessages, history))
	}
	return nil
}

func (r *Relay) messagesRead(ctx context.Context, s *Session, in Inbound) error {
	var p MessagesReadPayload
	if err := decodeStrict(in.Data, &p); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}

	self := s.UserID()
	if err := r.receipts.MarkSeen(ctx, self, p.UserID, p.LastSeenMessage); err != nil {
		return err
	}
	theirs, err := r.receipts.InitIfAbsent(ctx, p.UserID, self)
	if err != nil {
		return err
	}

	s.Send(newOutbound(EventMessagesRead, theirs))
	r.hub.Emit(s, []string{userChannel(p.UserID)}, newOutbound(EventSeen, self))
	return nil
}

func (r *Relay) messageSeen(ctx context.Context, s *Session, in Inbound) error {
	var p MessageSeenPayload
	if err := decodeStrict(in.Data, &p); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}

	if err := r.receipts.MarkSeen(ctx, s.UserID(), p.UserID, p.MessageID); err != nil {
		return err
	}
	r.hub.Emit(s, []string{userChannel(p.UserID)}, newOutbound(EventMessageSeen, true))
	return nil
}

func (r *Relay) messageDelivered(s *Session, in Inbound) error {
	var m models.Message
	if err := decodeStrict(in.Data, &m); err != nil {
		return err
	}
	if m.From == "" {
		return fmt.Errorf("%w: from is required", ErrValidation)
	}

	r.hub.Emit(s, []string{userChannel(m.From)}, newOutbound(EventMessageDelivered, in.Data))
	return nil
}

// otherUsers returns the private channels of every roster user except self.
func otherUsers(users []models.RosterEntry, self string) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.UserID != self {
			out = append(out, userChannel(u.UserID))
		}
	}
	return out
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, messagelog.ErrDelimiterInField):
		return CodeValidation
	case errors.Is(err, ratelimit.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, store.ErrSubstrate):
		return CodeSubstrate
	}
	return CodeInternal
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch errorCode(err) {
	case CodeValidation:
		return "invalid"
	case CodeRateLimited:
		return "throttled"
	}
	return "error"
}

// eventLabel keeps the metric's label set bounded.
func eventLabel(event string) string {
	switch event {
	case EventSendMessage, EventJoinRoom, EventMessagesRead, EventMessageSeen, EventMessageDelivered:
		return event
	}
	return "unknown"
}
