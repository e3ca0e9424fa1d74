package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hilo/internal/game"
)

const roomColumns = `id, code, name, password_hash, is_private, max_players, game, created_at, updated_at`

// Create inserts a new room. The name comparison is case-insensitive.
func (s *SQLite) Create(ctx context.Context, r *Room) error {
	doc, err := encodeGame(r.Game)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Code, r.Name, r.PasswordHash, r.IsPrivate, r.MaxPlayers, doc, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoomExists
		}
		return err
	}
	return nil
}

// Load fetches a room by ID or by room code.
func (s *SQLite) Load(ctx context.Context, idOrCode string) (*Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE id = ? OR code = ?
	`, idOrCode, strings.ToUpper(idOrCode))
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	return r, err
}

// Save replaces the stored game document of an existing room.
func (s *SQLite) Save(ctx context.Context, r *Room) error {
	doc, err := encodeGame(r.Game)
	if err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET game = ?, max_players = ?, updated_at = ? WHERE id = ?
	`, doc, r.MaxPlayers, r.UpdatedAt, r.ID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *SQLite) CodeExists(ctx context.Context, code string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM rooms WHERE code = ?", strings.ToUpper(code))
}

func (s *SQLite) NameExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM rooms WHERE name = ?", name)
}

// List returns all rooms, oldest first.
func (s *SQLite) List(ctx context.Context) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func (s *SQLite) exists(ctx context.Context, query string, arg string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*Room, error) {
	var r Room
	var doc string
	if err := row.Scan(&r.ID, &r.Code, &r.Name, &r.PasswordHash, &r.IsPrivate,
		&r.MaxPlayers, &doc, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	g, err := decodeGame([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", r.ID, err)
	}
	r.Game = g
	return &r, nil
}

func encodeGame(g *game.Snapshot) (string, error) {
	if g == nil {
		return "", errors.New("room has no game state")
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode game: %w", err)
	}
	return string(b), nil
}

func decodeGame(b []byte) (*game.Snapshot, error) {
	var g game.Snapshot
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
