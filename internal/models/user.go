package models

// User is a registered account as listed in the roster.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RosterEntry is a known user merged with their live connectivity flag.
type RosterEntry struct {
	Username  string `json:"username"`
	UserID    string `json:"userid"`
	Connected bool   `json:"connected"`
}
