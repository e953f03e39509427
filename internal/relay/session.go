package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/eldtechnologies/chatrelay/internal/auth"
)

// State is a session's position in its connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateConnecting:    {StateAuthenticated, StateClosed},
	StateAuthenticated: {StateActive, StateDisconnecting, StateClosed},
	StateActive:        {StateDisconnecting},
	StateDisconnecting: {StateClosed},
}

// Session is one client connection and the identity attached to it.
type Session struct {
	ID         string
	RemoteAddr string

	identity auth.Identity
	state    atomic.Int32

	egress      chan Outbound
	sendTimeout time.Duration
	throttle    *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(remoteAddr string, opts Options) *Session {
	return &Session{
		ID:          uuid.New().String(),
		RemoteAddr:  remoteAddr,
		egress:      make(chan Outbound, opts.QueueSize),
		sendTimeout: opts.SendTimeout,
		throttle:    rate.NewLimiter(opts.EventRate, opts.EventBurst),
		done:        make(chan struct{}),
	}
}

// UserID returns the authenticated user's id.
func (s *Session) UserID() string {
	return s.identity.UserID
}

// Identity returns the authenticated identity.
func (s *Session) Identity() auth.Identity {
	return s.identity
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// advance moves the session to the next state if the transition is legal.
func (s *Session) advance(to State) error {
	for {
		from := s.State()
		allowed := false
		for _, next := range transitions[from] {
			if next == to {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("session %s: illegal transition %s -> %s", s.ID, from, to)
		}
		if s.state.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}

// Send queues a frame for the client. It returns false when the session is
// closed or the queue stays full past the send timeout.
func (s *Session) Send(out Outbound) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.egress <- out:
		return true
	case <-s.done:
		return false
	case <-time.After(s.sendTimeout):
		return false
	}
}

// Outbound returns the queue of frames waiting to be written.
func (s *Session) Outbound() <-chan Outbound {
	return s.egress
}

// Done is closed once the session is released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) released() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) release() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
