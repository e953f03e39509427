// Package presence tracks which registered users are connected and
// enumerates the known user and room rosters.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

const (
	usersListKey = "usersList"
	roomsListKey = "roomsList"
)

// userKey returns the key for a user's presence hash.
func userKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// listedUser is the JSON shape of a usersList entry.
type listedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// listedRoom is the JSON shape of a roomsList entry.
type listedRoom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Directory reads and writes presence records and roster lists.
type Directory struct {
	kv     store.Substrate
	logger zerolog.Logger
}

// NewDirectory creates a Directory over the given substrate.
func NewDirectory(kv store.Substrate, logger zerolog.Logger) *Directory {
	return &Directory{kv: kv, logger: logger}
}

// SetOnline records whether a user currently has a live connection.
func (d *Directory) SetOnline(ctx context.Context, userID string, connected bool) error {
	return d.kv.HSet(ctx, userKey(userID),
		"id", userID,
		"connected", strconv.FormatBool(connected),
	)
}

// IsOnline reports the stored connectivity flag. Users that never connected
// are offline.
func (d *Directory) IsOnline(ctx context.Context, userID string) (bool, error) {
	val, ok, err := d.kv.HGet(ctx, userKey(userID), "connected")
	if err != nil || !ok {
		return false, err
	}
	connected, _ := strconv.ParseBool(val)
	return connected, nil
}

// ListKnownUsers returns the roster in insertion order, each entry carrying
// its current connectivity flag. One lookup is made per listed user.
func (d *Directory) ListKnownUsers(ctx context.Context) ([]models.RosterEntry, error) {
	raw, err := d.kv.LRange(ctx, usersListKey, 0, -1)
	if err != nil {
		return nil, err
	}

	roster := make([]models.RosterEntry, 0, len(raw))
	for _, data := range raw {
		var u listedUser
		if err := json.Unmarshal([]byte(data), &u); err != nil || u.ID == "" {
			d.logger.Warn().Str("entry", data).Msg("skipping unreadable roster entry")
			continue
		}

		connected, err := d.IsOnline(ctx, u.ID)
		if err != nil {
			return nil, err
		}

		roster = append(roster, models.RosterEntry{
			Username:  u.Username,
			UserID:    u.ID,
			Connected: connected,
		})
	}

	return roster, nil
}

// ListKnownRooms returns the room roster in insertion order.
func (d *Directory) ListKnownRooms(ctx context.Context) ([]models.RoomEntry, error) {
	raw, err := d.kv.LRange(ctx, roomsListKey, 0, -1)
	if err != nil {
		return nil, err
	}

	rooms := make([]models.RoomEntry, 0, len(raw))
	for _, data := range raw {
		var r listedRoom
		if err := json.Unmarshal([]byte(data), &r); err != nil || r.ID == "" {
			d.logger.Warn().Str("entry", data).Msg("skipping unreadable room entry")
			continue
		}
		rooms = append(rooms, models.RoomEntry{Name: r.Name, RoomID: r.ID})
	}

	return rooms, nil
}

// Lookup returns a single roster entry built from the user's presence hash.
func (d *Directory) Lookup(ctx context.Context, userID string) (models.RosterEntry, bool, error) {
	id, ok, err := d.kv.HGet(ctx, userKey(userID), "id")
	if err != nil || !ok {
		return models.RosterEntry{}, false, err
	}
	username, _, err := d.kv.HGet(ctx, userKey(userID), "username")
	if err != nil {
		return models.RosterEntry{}, false, err
	}
	connected, err := d.IsOnline(ctx, userID)
	if err != nil {
		return models.RosterEntry{}, false, err
	}
	return models.RosterEntry{Username: username, UserID: id, Connected: connected}, true, nil
}

// OnlineCount returns how many roster users are currently connected.
func (d *Directory) OnlineCount(ctx context.Context) (int, error) {
	roster, err := d.ListKnownUsers(ctx)
	if err != nil {
		return 0, err
	}
	return CountOnline(roster), nil
}

// CountOnline returns how many entries of a roster are connected.
func CountOnline(roster []models.RosterEntry) int {
	n := 0
	for _, u := range roster {
		if u.Connected {
			n++
		}
	}
	return n
}
