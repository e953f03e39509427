package messagelog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

func TestEncodeFieldOrder(t *testing.T) {
	record, err := Encode(models.Message{
		RecipientID:   "user2",
		From:          "user1",
		Content:       "Hello!",
		MessageID:     "msg123",
		Status:        models.StatusDelivered,
		RecipientType: models.RecipientUser,
		CreationTime:  "hh:mm",
	})
	require.NoError(t, err)
	assert.Equal(t, "user2.user1.Hello!.msg123.delivered.user.hh:mm", record)
}

func TestDecodeStoredRecords(t *testing.T) {
	m, err := Decode("user1.from1.Hello.msg123.delivered.user.20:34")
	require.NoError(t, err)
	assert.Equal(t, models.Message{
		RecipientID:   "user1",
		From:          "from1",
		Content:       "Hello",
		MessageID:     "msg123",
		Status:        "delivered",
		RecipientType: "user",
		CreationTime:  "20:34",
	}, m)
}

func TestDecodeFoldsDelimiterIntoContent(t *testing.T) {
	m, err := Decode("r1.u1.see you at 5. bring snacks.m9.delivered.room.17:02")
	require.NoError(t, err)
	assert.Equal(t, "see you at 5. bring snacks", m.Content)
	assert.Equal(t, "m9", m.MessageID)
	assert.Equal(t, "room", m.RecipientType)
	assert.Equal(t, "17:02", m.CreationTime)
}

func TestDecodeRejectsShortRecords(t *testing.T) {
	for _, record := range []string{"", "a.b.c", "a.b.c.d.e.f"} {
		_, err := Decode(record)
		assert.True(t, errors.Is(err, ErrMalformedRecord), "record %q", record)
	}
}

func TestEncodeRejectsDelimiterOutsideContent(t *testing.T) {
	_, err := Encode(models.Message{RecipientID: "a.b", From: "u1", MessageID: "m1"})
	assert.True(t, errors.Is(err, ErrDelimiterInField))

	_, err = Encode(models.Message{RecipientID: "u2", From: "u1", Content: "a.b.c", MessageID: "m1"})
	assert.NoError(t, err)
}

func TestRecordRoundTrip(t *testing.T) {
	records := []string{
		"user1.from1.Hello.msg123.delivered.user.20:34",
		"r1.u1..m1.delivered.room.09:00",
		"u2.u1.1.2.3.4.5.6.7",
		"u2.u1...m1.delivered.user.",
	}
	for _, record := range records {
		m, err := Decode(record)
		require.NoError(t, err, record)
		again, err := Encode(m)
		require.NoError(t, err, record)
		assert.Equal(t, record, again)
	}
}
