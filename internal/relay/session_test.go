package relay

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	s := newSession("127.0.0.1", Options{}.withDefaults())
	assert.Equal(t, StateConnecting, s.State())

	assert.Error(t, s.advance(StateActive))
	require.NoError(t, s.advance(StateAuthenticated))
	require.NoError(t, s.advance(StateActive))
	assert.Error(t, s.advance(StateAuthenticated))
	assert.Error(t, s.advance(StateClosed))
	require.NoError(t, s.advance(StateDisconnecting))
	require.NoError(t, s.advance(StateClosed))
	assert.Error(t, s.advance(StateConnecting))
	assert.Equal(t, "closed", s.State().String())
}

func TestSessionSendTimesOutWhenFull(t *testing.T) {
	s := newSession("127.0.0.1", Options{QueueSize: 1, SendTimeout: 10 * time.Millisecond}.withDefaults())

	assert.True(t, s.Send(newOutbound(EventSeen, "u1")))
	assert.False(t, s.Send(newOutbound(EventSeen, "u2")))

	s.release()
	s.release()
	assert.False(t, s.Send(newOutbound(EventSeen, "u3")))
}

func TestHubEmitExcludesSenderAndDedupes(t *testing.T) {
	h := NewHub(zerolog.Nop())
	opts := Options{}.withDefaults()
	a := newSession("a", opts)
	b := newSession("b", opts)

	h.Join(a, "r1")
	h.Join(b, "r1")
	h.Join(b, "u2")

	assert.Equal(t, 1, h.Emit(a, []string{"r1", "u2"}, newOutbound(EventSeen, "x")))
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(a))

	h.Leave(b, "r1")
	assert.Equal(t, []string{"u2"}, h.Channels(b))
	assert.Equal(t, 0, h.Emit(a, []string{"r1"}, newOutbound(EventSeen, "x")))

	h.Remove(b)
	h.Remove(a)
	assert.Equal(t, 0, h.SessionCount())
}
