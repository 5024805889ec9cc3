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

// FriendshipRepo implements repository.FriendshipRepository.
type FriendshipRepo struct {
	conn *sql.DB
}

var _ repository.FriendshipRepository = (*FriendshipRepo)(nil)

// Create inserts a new friend-request row. The service is responsible for
// checking FindBetween first; the UNIQUE(requester, addressee) constraint is
// the backstop against a duplicate in the same direction.
func (r *FriendshipRepo) Create(ctx context.Context, f *model.Friendship) error {
	now := time.Now()
	f.ID = xid.New().String()
	if f.Status == "" {
		f.Status = model.FriendshipPending
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO friendships (id, requester_id, addressee_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.RequesterID,
		f.AddresseeID,
		f.Status,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting friendship: %w", err)
	}

	return nil
}

// GetByID retrieves a friendship row by ID.
func (r *FriendshipRepo) GetByID(ctx context.Context, id string) (*model.Friendship, error) {
	var f model.Friendship
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, requester_id, addressee_id, status, created_at, updated_at
		 FROM friendships WHERE id = ?`,
		id,
	).Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("friend request", id)
		}
		return nil, fmt.Errorf("sqlite: getting friendship %s: %w", id, err)
	}

	return &f, nil
}

// FindBetween returns the row linking a and b regardless of who sent the
// request. At most one such row exists.
func (r *FriendshipRepo) FindBetween(ctx context.Context, a, b string) (*model.Friendship, error) {
	var f model.Friendship
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, requester_id, addressee_id, status, created_at, updated_at
		 FROM friendships
		 WHERE (requester_id = ? AND addressee_id = ?)
		    OR (requester_id = ? AND addressee_id = ?)`,
		a, b, b, a,
	).Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("friendship", a+"/"+b)
		}
		return nil, fmt.Errorf("sqlite: finding friendship between %s and %s: %w", a, b, err)
	}

	return &f, nil
}

// UpdateStatus moves a request to accepted or declined.
func (r *FriendshipRepo) UpdateStatus(ctx context.Context, id string, status model.FriendshipStatus) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE friendships SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating friendship %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("friend request", id)
	}

	return nil
}

// Delete removes a friendship row. Used to clear a declined request so the
// pair can try again.
func (r *FriendshipRepo) Delete(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM friendships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting friendship %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("friend request", id)
	}

	return nil
}

// PendingFor lists the open requests addressed to a user, with the
// requester's username joined in for display.
func (r *FriendshipRepo) PendingFor(ctx context.Context, addresseeID string) ([]model.FriendRequest, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT f.id, f.requester_id, u.username
		 FROM friendships f
		 JOIN users u ON u.id = f.requester_id
		 WHERE f.addressee_id = ? AND f.status = ?
		 ORDER BY f.created_at`,
		addresseeID,
		model.FriendshipPending,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying pending requests: %w", err)
	}
	defer rows.Close()

	var requests []model.FriendRequest
	for rows.Next() {
		var req model.FriendRequest
		if err := rows.Scan(&req.RequestID, &req.RequesterID, &req.RequesterUsername); err != nil {
			return nil, fmt.Errorf("sqlite: scanning request row: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating requests: %w", err)
	}

	return requests, nil
}

// AcceptedFriendsOf returns the accepted friends of userID, whichever
// direction the original request went. The Online flag is left false; the
// presence layer fills it in from the connection registry.
func (r *FriendshipRepo) AcceptedFriendsOf(ctx context.Context, userID string) ([]model.Friend, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT u.id, u.username
		 FROM friendships f
		 JOIN users u ON u.id = CASE WHEN f.requester_id = ? THEN f.addressee_id ELSE f.requester_id END
		 WHERE (f.requester_id = ? OR f.addressee_id = ?) AND f.status = ?
		 ORDER BY u.username`,
		userID, userID, userID,
		model.FriendshipAccepted,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying friends of %s: %w", userID, err)
	}
	defer rows.Close()

	var friends []model.Friend
	for rows.Next() {
		var f model.Friend
		if err := rows.Scan(&f.ID, &f.Username); err != nil {
			return nil, fmt.Errorf("sqlite: scanning friend row: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating friends: %w", err)
	}

	return friends, nil
}
