package store

import (
	"context"
	"time"

	"hilo/internal/game"

	"github.com/google/uuid"
)

// RoundRecord represents a settled round
type RoundRecord struct {
	ID          string              `json:"id"`
	RoomID      string              `json:"room_id"`
	RoomName    string              `json:"room_name"`
	Round       int                 `json:"round"`
	FairValue   int                 `json:"fair_value"`
	PlayerCount int                 `json:"player_count"`
	EndedAt     time.Time           `json:"ended_at"`
	Results     []game.PlayerResult `json:"results"`
}

// LeaderboardEntry aggregates a player's results over every recorded round
type LeaderboardEntry struct {
	Username     string `json:"username"`
	RoundsPlayed int    `json:"rounds_played"`
	TradePnL     int    `json:"trade_pnl"`
	Penalties    int    `json:"penalties"`
	NetPnL       int    `json:"net_pnl"`
	Fulfilled    int    `json:"contracts_fulfilled"`
}

// SaveRound records a settled round and every player's result
func (s *SQLite) SaveRound(ctx context.Context, rec *RoundRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}
	rec.PlayerCount = len(rec.Results)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO round_results (id, room_id, room_name, round, fair_value, player_count, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.RoomID, rec.RoomName, rec.Round, rec.FairValue, rec.PlayerCount, rec.EndedAt)
	if err != nil {
		return err
	}

	for _, r := range rec.Results {
		var direction string
		var required int
		if r.Contract != nil {
			direction = r.Contract.Direction
			required = r.Contract.RequiredTrades
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_results (round_id, username, contract_direction, required_trades,
				fulfilled, penalty, trade_pnl, cumulative_pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, r.Name, direction, required, r.Fulfilled, r.Penalty, r.TradePnL, r.CumulativePnL)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RoomHistory returns the most recent settled rounds of a room, newest first
func (s *SQLite) RoomHistory(ctx context.Context, roomID string, limit int) ([]*RoundRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, room_name, round, fair_value, player_count, ended_at
		FROM round_results
		WHERE room_id = ?
		ORDER BY round DESC, ended_at DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*RoundRecord
	for rows.Next() {
		var rec RoundRecord
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.RoomName, &rec.Round,
			&rec.FairValue, &rec.PlayerCount, &rec.EndedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, rec := range records {
		results, err := s.roundResults(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Results = results
	}
	return records, nil
}

func (s *SQLite) roundResults(ctx context.Context, roundID string) ([]game.PlayerResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, contract_direction, required_trades, fulfilled, penalty, trade_pnl, cumulative_pnl
		FROM player_results
		WHERE round_id = ?
		ORDER BY id
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []game.PlayerResult
	for rows.Next() {
		var r game.PlayerResult
		var direction string
		var required int
		if err := rows.Scan(&r.Name, &direction, &required, &r.Fulfilled,
			&r.Penalty, &r.TradePnL, &r.CumulativePnL); err != nil {
			return nil, err
		}
		if direction != "" {
			r.Contract = &game.Contract{Direction: direction, RequiredTrades: required}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Leaderboard ranks players by net P/L (trade P/L less penalties) across all rooms
func (s *SQLite) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username,
			COUNT(*),
			COALESCE(SUM(trade_pnl), 0),
			COALESCE(SUM(penalty), 0),
			COALESCE(SUM(trade_pnl - penalty), 0) AS net,
			COALESCE(SUM(CASE WHEN fulfilled AND contract_direction != '' THEN 1 ELSE 0 END), 0)
		FROM player_results
		GROUP BY username COLLATE NOCASE
		ORDER BY net DESC, username
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.RoundsPlayed, &e.TradePnL,
			&e.Penalties, &e.NetPnL, &e.Fulfilled); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
