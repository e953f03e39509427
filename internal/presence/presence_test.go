package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

func newTestDirectory(t *testing.T) (*Directory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDirectory(store.NewRedisStoreFromClient(client), zerolog.Nop()), mr
}

func TestSetOnlineIsIdempotent(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, d.SetOnline(ctx, "u1", true))
	first := mr.HGet("user:u1", "connected")
	require.NoError(t, d.SetOnline(ctx, "u1", true))

	assert.Equal(t, first, mr.HGet("user:u1", "connected"))

	roster, err := d.ListKnownUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RosterEntry{{Username: "alice", UserID: "u1", Connected: true}}, roster)
}

func TestListKnownUsersMergesConnectivity(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "u2", Username: "bob"}))
	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "u3", Username: "carol"}))
	mr.RPush("usersList", "not json")

	require.NoError(t, d.SetOnline(ctx, "u2", true))
	require.NoError(t, d.SetOnline(ctx, "u3", true))
	require.NoError(t, d.SetOnline(ctx, "u3", false))

	roster, err := d.ListKnownUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RosterEntry{
		{Username: "alice", UserID: "u1", Connected: false},
		{Username: "bob", UserID: "u2", Connected: true},
		{Username: "carol", UserID: "u3", Connected: false},
	}, roster)

	n, err := d.OnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegisterUserDoesNotDuplicate(t *testing.T) {
	d, mr := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "u1", Username: "alice2"}))

	list, err := mr.List("usersList")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "alice2", mr.HGet("user:u1", "username"))
}

func TestListKnownRooms(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.RegisterRoom(ctx, models.Room{ID: "r1", Name: "general"}))
	require.NoError(t, d.RegisterRoom(ctx, models.Room{ID: "r2", Name: "random"}))
	require.NoError(t, d.RegisterRoom(ctx, models.Room{ID: "r1", Name: "general"}))

	rooms, err := d.ListKnownRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RoomEntry{
		{Name: "general", RoomID: "r1"},
		{Name: "random", RoomID: "r2"},
	}, rooms)
}

func TestLookup(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	_, ok, err := d.Lookup(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, d.SetOnline(ctx, "u1", true))

	entry, ok, err := d.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.RosterEntry{Username: "alice", UserID: "u1", Connected: true}, entry)
}

type fakeSource struct {
	users []models.User
	rooms []models.Room
}

func (f *fakeSource) Close() {}

func (f *fakeSource) Ping(ctx context.Context) error { return nil }

func (f *fakeSource) ListUsers(ctx context.Context) ([]models.User, error) {
	return f.users, nil
}

func (f *fakeSource) ListRooms(ctx context.Context) ([]models.Room, error) {
	return f.rooms, nil
}

func TestSyncReplacesRosters(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, d.RegisterUser(ctx, models.User{ID: "stale", Username: "old"}))
	require.NoError(t, d.SetOnline(ctx, "u2", true))

	src := &fakeSource{
		users: []models.User{{ID: "u1", Username: "alice"}, {ID: "u2", Username: "bob"}},
		rooms: []models.Room{{ID: "r1", Name: "general"}},
	}
	users, rooms, err := d.Sync(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, users)
	assert.Equal(t, 1, rooms)

	roster, err := d.ListKnownUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RosterEntry{
		{Username: "alice", UserID: "u1", Connected: false},
		{Username: "bob", UserID: "u2", Connected: true},
	}, roster)

	roomList, err := d.ListKnownRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RoomEntry{{Name: "general", RoomID: "r1"}}, roomList)
}
