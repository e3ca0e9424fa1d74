package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hilo/internal/game"

	_ "modernc.org/sqlite"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room name or code already exists")
)

// Room is the persisted document for one room: metadata plus the
// serialized game.
type Room struct {
	ID           string         `json:"id"`
	Code         string         `json:"room_code"`
	Name         string         `json:"name"`
	PasswordHash string         `json:"password_hash,omitempty"`
	IsPrivate    bool           `json:"is_private"`
	MaxPlayers   int            `json:"max_players"`
	Game         *game.Snapshot `json:"game"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SQLite provides persistence for rooms and round history
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at dbPath and runs pending migrations
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
