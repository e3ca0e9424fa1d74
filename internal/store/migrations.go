package store

import (
	"context"
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

// Append only; versions must increase.
var migrations = []migration{
	{
		Version:     1,
		Description: "Rooms",
		SQL: `
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			code TEXT UNIQUE NOT NULL,
			name TEXT UNIQUE NOT NULL COLLATE NOCASE,
			password_hash TEXT NOT NULL DEFAULT '',
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			max_players INTEGER NOT NULL,
			game TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rooms_updated ON rooms(updated_at);
		`,
	},
	{
		Version:     2,
		Description: "Round history",
		SQL: `
		CREATE TABLE IF NOT EXISTS round_results (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			room_name TEXT NOT NULL,
			round INTEGER NOT NULL,
			fair_value INTEGER NOT NULL,
			player_count INTEGER NOT NULL,
			ended_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS player_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			round_id TEXT NOT NULL REFERENCES round_results(id),
			username TEXT NOT NULL,
			contract_direction TEXT NOT NULL DEFAULT '',
			required_trades INTEGER NOT NULL DEFAULT 0,
			fulfilled BOOLEAN NOT NULL,
			penalty INTEGER NOT NULL,
			trade_pnl INTEGER NOT NULL,
			cumulative_pnl INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_round_results_room ON round_results(room_id, round);
		CREATE INDEX IF NOT EXISTS idx_player_results_round ON player_results(round_id);
		CREATE INDEX IF NOT EXISTS idx_player_results_username ON player_results(username);
		`,
	},
}

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// appliedVersions lists recorded schema versions in ascending order.
func (s *SQLite) appliedVersions(ctx context.Context) ([]int, error) {
	if _, err := s.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Migrate brings the schema up to the latest version. Each step commits
// together with its schema_migrations row.
func (s *SQLite) Migrate() error {
	ctx := context.Background()
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}
	latest := 0
	if n := len(applied); n > 0 {
		latest = applied[n-1]
	}

	for _, m := range migrations {
		if m.Version <= latest {
			continue
		}
		if err := s.step(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *SQLite) step(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationStatus reports which schema versions are recorded and which
// are still waiting to run.
func (s *SQLite) MigrationStatus() (applied, pending []int, err error) {
	applied, err = s.appliedVersions(context.Background())
	if err != nil {
		return nil, nil, err
	}
	done := make(map[int]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	for _, m := range migrations {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m.Version)
		}
	}
	return applied, pending, nil
}
