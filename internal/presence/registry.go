package presence

import (
	"context"
	"encoding/json"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// RegisterUser adds a user to the roster and writes their profile fields.
// Registering an already listed user only refreshes the profile.
func (d *Directory) RegisterUser(ctx context.Context, u models.User) error {
	if err := d.kv.HSet(ctx, userKey(u.ID), "id", u.ID, "username", u.Username); err != nil {
		return err
	}

	listed, err := d.listedUserIDs(ctx)
	if err != nil {
		return err
	}
	if listed[u.ID] {
		return nil
	}

	data, err := json.Marshal(listedUser{ID: u.ID, Username: u.Username})
	if err != nil {
		return err
	}
	return d.kv.RPush(ctx, usersListKey, string(data))
}

// RegisterRoom adds a room to the room roster unless already listed.
func (d *Directory) RegisterRoom(ctx context.Context, r models.Room) error {
	rooms, err := d.ListKnownRooms(ctx)
	if err != nil {
		return err
	}
	for _, existing := range rooms {
		if existing.RoomID == r.ID {
			return nil
		}
	}

	data, err := json.Marshal(listedRoom{ID: r.ID, Name: r.Name})
	if err != nil {
		return err
	}
	return d.kv.RPush(ctx, roomsListKey, string(data))
}

// Sync rebuilds both roster lists from an account source. Each list is
// swapped in a single transaction; connectivity flags are left untouched.
func (d *Directory) Sync(ctx context.Context, src store.AccountSource) (users, rooms int, err error) {
	us, err := src.ListUsers(ctx)
	if err != nil {
		return 0, 0, err
	}
	rs, err := src.ListRooms(ctx)
	if err != nil {
		return 0, 0, err
	}

	userEntries := make([]string, 0, len(us))
	for _, u := range us {
		data, err := json.Marshal(listedUser{ID: u.ID, Username: u.Username})
		if err != nil {
			return 0, 0, err
		}
		userEntries = append(userEntries, string(data))
		if err := d.kv.HSet(ctx, userKey(u.ID), "id", u.ID, "username", u.Username); err != nil {
			return 0, 0, err
		}
	}

	roomEntries := make([]string, 0, len(rs))
	for _, r := range rs {
		data, err := json.Marshal(listedRoom{ID: r.ID, Name: r.Name})
		if err != nil {
			return 0, 0, err
		}
		roomEntries = append(roomEntries, string(data))
	}

	if err := d.kv.ReplaceList(ctx, usersListKey, userEntries); err != nil {
		return 0, 0, err
	}
	if err := d.kv.ReplaceList(ctx, roomsListKey, roomEntries); err != nil {
		return 0, 0, err
	}

	d.logger.Info().Int("users", len(us)).Int("rooms", len(rs)).Msg("roster synced")
	return len(us), len(rs), nil
}

func (d *Directory) listedUserIDs(ctx context.Context) (map[string]bool, error) {
	raw, err := d.kv.LRange(ctx, usersListKey, 0, -1)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(raw))
	for _, data := range raw {
		var u listedUser
		if json.Unmarshal([]byte(data), &u) == nil {
			ids[u.ID] = true
		}
	}
	return ids, nil
}
