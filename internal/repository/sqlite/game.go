package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/repository"
)

// GameRepo implements repository.GameRepository.
type GameRepo struct {
	conn *sql.DB
}

var _ repository.GameRepository = (*GameRepo)(nil)

const gameColumns = `id, room_id, player_x_id, player_o_id, board, turn_id, status, public, winner_id, created_at`

// Create inserts a new game row. RoomID must already be set (and collision
// checked) by the caller; ID and CreatedAt are generated here.
func (r *GameRepo) Create(ctx context.Context, g *model.Game) error {
	g.ID = xid.New().String()
	g.CreatedAt = time.Now()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO games (`+gameColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.RoomID,
		g.PlayerXID,
		g.PlayerOID,
		g.Board,
		g.TurnID,
		g.Status,
		g.Public,
		g.WinnerID,
		g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting game %s: %w", g.RoomID, err)
	}

	return nil
}

// GetByRoomID retrieves a game by its shareable room code.
func (r *GameRepo) GetByRoomID(ctx context.Context, roomID string) (*model.Game, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE room_id = ?`,
		roomID,
	)

	g, err := scanGame(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("game", roomID)
		}
		return nil, fmt.Errorf("sqlite: getting game %s: %w", roomID, err)
	}

	return g, nil
}

// Update persists the full mutable state of a game. Seats, board, turn,
// status, and winner all travel together so a state-machine transition is
// committed as one write.
func (r *GameRepo) Update(ctx context.Context, g *model.Game) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE games
		 SET player_x_id = ?, player_o_id = ?, board = ?, turn_id = ?, status = ?, winner_id = ?
		 WHERE id = ?`,
		g.PlayerXID,
		g.PlayerOID,
		g.Board,
		g.TurnID,
		g.Status,
		g.WinnerID,
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating game %s: %w", g.RoomID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("game", g.RoomID)
	}

	return nil
}

// TakeSecondSeat is the join path's guard against two users grabbing the O
// seat at once: the UPDATE only matches while the game is still pending with
// an empty seat, so exactly one concurrent joiner wins the row.
func (r *GameRepo) TakeSecondSeat(ctx context.Context, roomID, userID string) (*model.Game, error) {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE games
		 SET player_o_id = ?, status = ?
		 WHERE room_id = ? AND status = ? AND player_o_id = '' AND player_x_id != ?`,
		userID,
		model.StatusActive,
		roomID,
		model.StatusPending,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: seating %s in game %s: %w", userID, roomID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return nil, apperror.InvalidState("room is not available for joining")
	}

	return r.GetByRoomID(ctx, roomID)
}

// ListPublicPending returns the joinable public rooms, oldest first.
func (r *GameRepo) ListPublicPending(ctx context.Context) ([]model.Game, error) {
	return r.listWhere(ctx,
		`public = 1 AND status = ?`,
		model.StatusPending,
	)
}

// RoomIDExists reports whether a room code is already taken. The room-code
// generator loops on this until it draws a free code.
func (r *GameRepo) RoomIDExists(ctx context.Context, roomID string) (bool, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM games WHERE room_id = ?`,
		roomID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking room id %s: %w", roomID, err)
	}
	return n > 0, nil
}

// ActiveGamesFor lists the active games a user is seated in.
func (r *GameRepo) ActiveGamesFor(ctx context.Context, userID string) ([]model.Game, error) {
	return r.listWhere(ctx,
		`status = ? AND (player_x_id = ? OR player_o_id = ?)`,
		model.StatusActive, userID, userID,
	)
}

func (r *GameRepo) listWhere(ctx context.Context, where string, args ...any) ([]model.Game, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE `+where+` ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning game row: %w", err)
		}
		games = append(games, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating games: %w", err)
	}

	return games, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (*model.Game, error) {
	var g model.Game
	err := s.Scan(
		&g.ID,
		&g.RoomID,
		&g.PlayerXID,
		&g.PlayerOID,
		&g.Board,
		&g.TurnID,
		&g.Status,
		&g.Public,
		&g.WinnerID,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
