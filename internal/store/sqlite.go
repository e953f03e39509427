package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// SQLiteStore is a local account source for development, mirroring the
// chat_users and chat_rooms tables of the production database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatrelay.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatrelay.db"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		user_id TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		room_id TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		message_id TEXT UNIQUE NOT NULL,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		recipient_type TEXT NOT NULL,
		creation_time TEXT NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddUser inserts a user row. Used to seed development databases.
func (s *SQLiteStore) AddUser(ctx context.Context, u models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_users (username, user_id) VALUES (?, ?)
	`, u.Username, u.ID)
	return err
}

// AddRoom inserts a room row. Used to seed development databases.
func (s *SQLiteStore) AddRoom(ctx context.Context, r models.Room) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (name, room_id) VALUES (?, ?)
	`, r.Name, r.ID)
	return err
}

// ListUsers returns every registered user in registration order.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username FROM chat_users ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListRooms returns every registered room in creation order.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, name FROM chat_rooms ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// SaveMessage inserts a stamped message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (content, message_id, sender_id, recipient_id, recipient_type, creation_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Content, m.MessageID, m.From, m.RecipientID, m.RecipientType, m.CreationTime)
	return err
}

// CountMessages returns the number of archived messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
