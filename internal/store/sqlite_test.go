package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

func TestSQLiteListsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AddUser(ctx, models.User{ID: "u2", Username: "bob"}))
	require.NoError(t, s.AddUser(ctx, models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, s.AddRoom(ctx, models.Room{ID: "r1", Name: "general"}))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.User{{ID: "u2", Username: "bob"}, {ID: "u1", Username: "alice"}}, users)

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Room{{ID: "r1", Name: "general"}}, rooms)

	require.Error(t, s.AddUser(ctx, models.User{ID: "u3", Username: "bob"}))
}

func TestSQLiteSaveMessage(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	m := models.Message{
		RecipientID: "u2", From: "u1", Content: "hi", MessageID: "01HZX",
		RecipientType: models.RecipientUser, CreationTime: "10:00",
	}
	require.NoError(t, s.SaveMessage(ctx, m))
	require.Error(t, s.SaveMessage(ctx, m), "message ids are unique")

	n, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
