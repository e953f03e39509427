package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one with the given event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f wireFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == event {
			return f
		}
	}
}

func TestHandlerRejectsBadTokenBeforeUpgrade(t *testing.T) {
	f := newFixture(t, Options{})
	srv := httptest.NewServer(f.relay.Handler(Upgrader(nil)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerAcceptsBearerHeader(t *testing.T) {
	f := newFixture(t, Options{})
	srv := httptest.NewServer(f.relay.Handler(Upgrader(nil)))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer t1")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	users := readUntil(t, conn, EventUsers)
	assert.Len(t, users.Args, 1)
}

func TestWebsocketRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	srv := httptest.NewServer(f.relay.Handler(Upgrader([]string{"*"})))
	defer srv.Close()

	c1 := dial(t, srv, "t1")
	readUntil(t, c1, EventRooms)

	c2 := dial(t, srv, "t2")
	readUntil(t, c2, EventRooms)

	connected := readUntil(t, c1, EventConnected)
	assert.JSONEq(t, `true`, string(connected.Args[0]))
	assert.JSONEq(t, `"u2"`, string(connected.Args[1]))

	payload := `{"recipient_id":"u2","from":"u1","content":"hi over the wire","message_id":"m1","recipient_type":"user","creation_time":"10:00"}`
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(`{"event":"sendMessage","data":`+payload+`}`)))

	got := readUntil(t, c2, EventSendMessage)
	require.Len(t, got.Args, 1)
	assert.JSONEq(t, payload, string(got.Args[0]))

	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	failure := readUntil(t, c1, EventError)
	assert.Contains(t, string(failure.Args[0]), CodeValidation)

	require.NoError(t, c1.Close())
	offline := readUntil(t, c2, EventConnected)
	assert.JSONEq(t, `false`, string(offline.Args[0]))
	assert.JSONEq(t, `"u1"`, string(offline.Args[1]))
}

func TestShutdownDropsWebsocketsAndMarksOffline(t *testing.T) {
	f := newFixture(t, Options{})
	srv := httptest.NewServer(f.relay.Handler(Upgrader(nil)))
	defer srv.Close()

	c1 := dial(t, srv, "t1")
	readUntil(t, c1, EventRooms)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.relay.Shutdown(ctx))

	require.NoError(t, c1.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = c1.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	online, err := f.dir.IsOnline(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, online)
}
