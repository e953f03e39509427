package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// PostgresStore reads registered accounts and rooms from PostgreSQL. The
// tables are owned by the account service; this store never writes to them.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ListUsers returns every registered user in registration order.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, username
		FROM chat_users
		ORDER BY id ASC
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
func (s *PostgresStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT room_id, name
		FROM chat_rooms
		ORDER BY id ASC
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

// SaveMessage inserts a message stamped by the HTTP API into the messages
// table.
func (s *PostgresStore) SaveMessage(ctx context.Context, m models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (content, message_id, sender_id, recipient_id, recipient_type, creation_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.Content, m.MessageID, m.From, m.RecipientID, m.RecipientType, m.CreationTime)
	return err
}
