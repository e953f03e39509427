package models

// Room is a registered chat room. Rooms are created elsewhere; the relay
// only enumerates them.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomEntry is a room as pushed to clients in the "rooms" snapshot.
type RoomEntry struct {
	Name   string `json:"name"`
	RoomID string `json:"roomid"`
}
