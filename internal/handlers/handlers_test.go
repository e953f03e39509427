package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/auth"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/presence"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

type fakeArchive struct {
	saved []models.Message
	err   error
}

func (a *fakeArchive) SaveMessage(_ context.Context, m models.Message) error {
	if a.err != nil {
		return a.err
	}
	a.saved = append(a.saved, m)
	return nil
}

type fixedSessions int

func (n fixedSessions) SessionCount() int { return int(n) }

func newTestHandler(t *testing.T, archive store.MessageArchive) (*Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	kv := store.NewRedisStoreFromClient(client)
	dir := presence.NewDirectory(kv, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, dir.RegisterUser(ctx, models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, dir.RegisterUser(ctx, models.User{ID: "u2", Username: "bob"}))
	require.NoError(t, dir.RegisterRoom(ctx, models.Room{ID: "r1", Name: "general"}))
	require.NoError(t, dir.SetOnline(ctx, "u2", true))

	h := NewHandler(Deps{
		Redis:    kv,
		Presence: dir,
		Archive:  archive,
		Sessions: fixedSessions(3),
		Logger:   zerolog.Nop(),
	})
	h.now = func() time.Time { return time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC) }
	return h, mr
}

func postMessage(h *Handler, body string, id *auth.Identity) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		req = req.WithContext(context.WithValue(req.Context(), middleware.IdentityContextKey, *id))
	}
	rec := httptest.NewRecorder()
	h.CreateMessage(rec, req)
	return rec
}

func TestCreateMessageStampsIDAndTime(t *testing.T) {
	archive := &fakeArchive{}
	h, _ := newTestHandler(t, archive)

	rec := postMessage(h, `{"message":"hi","from":"u1","recipient_id":"u2","recipient_type":"user"}`,
		&auth.Identity{UserID: "u1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CreateMessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hi", resp.Message)
	assert.Equal(t, "09:05", resp.CreationTime)
	assert.Len(t, resp.MessageID, 26)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, resp.MessageID, archive.saved[0].MessageID)
	assert.Equal(t, "u2", archive.saved[0].RecipientID)
}

func TestCreateMessageValidation(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	cases := map[string]string{
		"empty message":  `{"message":"","from":"u1","recipient_id":"u2","recipient_type":"user"}`,
		"too long":       `{"message":"` + strings.Repeat("x", 256) + `","from":"u1","recipient_id":"u2","recipient_type":"user"}`,
		"missing from":   `{"message":"hi","recipient_id":"u2","recipient_type":"user"}`,
		"missing target": `{"message":"hi","from":"u1","recipient_type":"user"}`,
		"bad type":       `{"message":"hi","from":"u1","recipient_id":"u2","recipient_type":"group"}`,
		"delimiter":      `{"message":"hi","from":"u1","recipient_id":"u.2","recipient_type":"user"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postMessage(h, body, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}

	rec := postMessage(h, `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postMessage(h, `{"message":"`+strings.Repeat("é", 255)+`","from":"u1","recipient_id":"u2","recipient_type":"user"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateMessageRejectsSpoofedSender(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := postMessage(h, `{"message":"hi","from":"u2","recipient_id":"u1","recipient_type":"user"}`,
		&auth.Identity{UserID: "u1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateMessageArchiveFailure(t *testing.T) {
	h, _ := newTestHandler(t, &fakeArchive{err: errors.New("db down")})

	rec := postMessage(h, `{"message":"hi","from":"u1","recipient_id":"r1","recipient_type":"room"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWho(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	r := chi.NewRouter()
	r.Get("/who/{id}", h.Who)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who/u2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"bob","userid":"u2","connected":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/who/u9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRosterEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.ListUsers(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[
		{"username":"alice","userid":"u1","connected":false},
		{"username":"bob","userid":"u2","connected":true}
	],"total":2}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ListRooms(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":[{"name":"general","roomid":"r1"}],"total":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_users":2,"online_users":1,"total_rooms":1,"open_sessions":3}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h, mr := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "pass", resp.Checks["redis"].Status)
	assert.Equal(t, "skip", resp.Checks["accounts"].Status)
	assert.Equal(t, 3, resp.Sessions)

	mr.SetError("ERR injected failure")
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
