// Package repository declares the storage interfaces consumed by the service
// and coordinator layers. The sqlite subpackage provides the implementation;
// tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/rougue1/tictactoe-server/internal/model"
)

// UserRepository is the account store: credentials, profiles, and the
// long-term win tally.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Search returns up to limit users whose username contains q,
	// excluding excludeID (the caller never finds themselves).
	Search(ctx context.Context, q, excludeID string, limit int) ([]model.PublicUser, error)
	IncrementWins(ctx context.Context, id string) error
	TopByWins(ctx context.Context, limit int) ([]model.ScoreboardEntry, error)
}

// FriendshipRepository is the social-graph store. A pair of users has at
// most one row between them, in whichever direction the request was sent.
type FriendshipRepository interface {
	Create(ctx context.Context, f *model.Friendship) error
	GetByID(ctx context.Context, id string) (*model.Friendship, error)
	// FindBetween returns the friendship row linking a and b in either
	// direction, or apperror.ErrNotFound.
	FindBetween(ctx context.Context, a, b string) (*model.Friendship, error)
	UpdateStatus(ctx context.Context, id string, status model.FriendshipStatus) error
	Delete(ctx context.Context, id string) error
	PendingFor(ctx context.Context, addresseeID string) ([]model.FriendRequest, error)
	AcceptedFriendsOf(ctx context.Context, userID string) ([]model.Friend, error)
}

// GameRepository is the durable record of game sessions. Every state-machine
// transition is persisted through Update before the coordinator treats it as
// committed.
type GameRepository interface {
	Create(ctx context.Context, g *model.Game) error
	GetByRoomID(ctx context.Context, roomID string) (*model.Game, error)
	Update(ctx context.Context, g *model.Game) error
	// TakeSecondSeat atomically seats userID as player O on a pending game
	// with an empty O seat, activating it. Returns the updated game, or
	// apperror.ErrInvalidState when the seat was no longer available.
	TakeSecondSeat(ctx context.Context, roomID, userID string) (*model.Game, error)
	ListPublicPending(ctx context.Context) ([]model.Game, error)
	RoomIDExists(ctx context.Context, roomID string) (bool, error)
	// ActiveGamesFor lists the active games userID is seated in; the
	// disconnect path forfeits each of them.
	ActiveGamesFor(ctx context.Context, userID string) ([]model.Game, error)
}
