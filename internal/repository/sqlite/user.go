package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/repository"
)

// UserRepo implements repository.UserRepository.
type UserRepo struct {
	conn *sql.DB
}

var _ repository.UserRepository = (*UserRepo)(nil)

// Create inserts a new account. The ID and timestamps are generated here and
// written back through the pointer. A duplicate username surfaces as
// apperror.ErrConflict so the handler can answer 409.
func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, wins, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Wins,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		// modernc's constraint errors aren't typed; the message is the
		// only signal we get for the UNIQUE(username) violation.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("username already exists")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getWhere(ctx, "id = ?", id)
}

// GetByUsername retrieves a user by login name.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getWhere(ctx, "username = ?", username)
}

func (r *UserRepo) getWhere(ctx context.Context, where string, arg string) (*model.User, error) {
	var u model.User
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, wins, created_at, updated_at
		 FROM users WHERE `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Wins,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", arg, err)
	}

	return &u, nil
}

// Search finds users whose username contains q (case-insensitive), excluding
// excludeID, ordered by username for stable results.
func (r *UserRepo) Search(ctx context.Context, q, excludeID string, limit int) ([]model.PublicUser, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, username FROM users
		 WHERE username LIKE ? AND id != ?
		 ORDER BY username
		 LIMIT ?`,
		"%"+q+"%",
		excludeID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	defer rows.Close()

	users := make([]model.PublicUser, 0, limit)
	for rows.Next() {
		var u model.PublicUser
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// IncrementWins bumps the win tally by one. Called by the coordinator after
// a win or forfeit; a missing user is reported as NotFound rather than
// silently ignored.
func (r *UserRepo) IncrementWins(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE users SET wins = wins + 1, updated_at = ? WHERE id = ?`,
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing wins for %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// TopByWins returns the leaderboard, best first. Ties break on username so
// the ordering is deterministic.
func (r *UserRepo) TopByWins(ctx context.Context, limit int) ([]model.ScoreboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT username, wins FROM users
		 ORDER BY wins DESC, username
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying scoreboard: %w", err)
	}
	defer rows.Close()

	entries := make([]model.ScoreboardEntry, 0, limit)
	for rows.Next() {
		var e model.ScoreboardEntry
		if err := rows.Scan(&e.Username, &e.Wins); err != nil {
			return nil, fmt.Errorf("sqlite: scanning scoreboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating scoreboard: %w", err)
	}

	return entries, nil
}
