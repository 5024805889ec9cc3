package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/game"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/repository"
)

const (
	roomCodeLength = 6
	// roomCodeAttempts bounds the collision retry loop. Six hex-ish chars
	// give ~16M codes, so hitting this limit means the table is basically
	// full.
	roomCodeAttempts = 10
)

// RoomService manages game room lifecycle: creation, listing, joining, and
// the direct-challenge path.
type RoomService struct {
	games  repository.GameRepository
	users  repository.UserRepository
	logger *slog.Logger
}

// NewRoomService creates a RoomService with all required dependencies.
func NewRoomService(
	games repository.GameRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *RoomService {
	return &RoomService{games: games, users: users, logger: logger}
}

// Create opens a new pending room with the creator seated as X. The room ID
// is a short uppercase code players can read out loud.
func (s *RoomService) Create(ctx context.Context, creatorID string, public bool) (*model.Game, error) {
	if _, err := s.users.GetByID(ctx, creatorID); err != nil {
		return nil, fmt.Errorf("service/room: resolving creator %s: %w", creatorID, err)
	}

	g := game.NewPending(creatorID, public)
	roomID, err := s.newRoomID(ctx)
	if err != nil {
		return nil, err
	}
	g.RoomID = roomID

	if err := s.games.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("service/room: creating room %s: %w", roomID, err)
	}

	s.logger.Info("room created",
		slog.String("roomID", g.RoomID),
		slog.String("creatorID", creatorID),
		slog.Bool("public", public),
	)

	return g, nil
}

// CreateDirect opens a room that starts active immediately, with the
// challenger as X and the opponent as O. Used by the challenge flow.
func (s *RoomService) CreateDirect(ctx context.Context, challengerID, opponentID string) (*model.Game, error) {
	if _, err := s.users.GetByID(ctx, opponentID); err != nil {
		return nil, fmt.Errorf("service/room: resolving opponent %s: %w", opponentID, err)
	}

	g, err := game.NewDirect(challengerID, opponentID)
	if err != nil {
		return nil, fmt.Errorf("service/room: %w", err)
	}
	roomID, err := s.newRoomID(ctx)
	if err != nil {
		return nil, err
	}
	g.RoomID = roomID

	if err := s.games.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("service/room: creating direct room %s: %w", roomID, err)
	}

	s.logger.Info("direct room created",
		slog.String("roomID", g.RoomID),
		slog.String("challengerID", challengerID),
		slog.String("opponentID", opponentID),
	)

	return g, nil
}

// Get returns the room with the given ID.
func (s *RoomService) Get(ctx context.Context, roomID string) (*model.Game, error) {
	g, err := s.games.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("service/room: fetching room %s: %w", roomID, err)
	}
	return g, nil
}

// ListPublic returns all public rooms that still have an open seat.
func (s *RoomService) ListPublic(ctx context.Context) ([]model.Game, error) {
	games, err := s.games.ListPublicPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/room: listing public rooms: %w", err)
	}
	return games, nil
}

// Join seats userID in the room. Returns the updated game and whether this
// call actually took the second seat: a player re-entering a room they are
// already seated in gets (game, false, nil).
//
// The seat claim is a single conditional UPDATE, so two players racing for
// the last seat cannot both win it.
func (s *RoomService) Join(ctx context.Context, roomID, userID string) (*model.Game, bool, error) {
	g, err := s.games.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, false, fmt.Errorf("service/room: fetching room %s: %w", roomID, err)
	}

	if g.Seated(userID) {
		return g, false, nil
	}

	g, err = s.games.TakeSecondSeat(ctx, roomID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("service/room: joining room %s: %w", roomID, err)
	}

	s.logger.Info("player joined room",
		slog.String("roomID", roomID),
		slog.String("userID", userID),
	)

	return g, true, nil
}

// View builds the client-facing shape of a game, with player IDs resolved to
// usernames. Unset seats and unfinished winners come back as empty strings.
// viewerID may be empty; when set, YourSymbol carries the viewer's mark.
func (s *RoomService) View(ctx context.Context, g *model.Game, viewerID string) (*model.GameView, error) {
	v := &model.GameView{
		ID:        g.ID,
		RoomID:    g.RoomID,
		PlayerXID: g.PlayerXID,
		PlayerOID: g.PlayerOID,
		Board:     model.BoardCells(g.Board),
		TurnID:    g.TurnID,
		Status:    g.Status,
		Public:    g.Public,
		WinnerID:  g.WinnerID,
		CreatedAt: g.CreatedAt,
	}
	if g.Seated(viewerID) {
		v.YourSymbol = string(g.Mark(viewerID))
	}

	name := func(id string) (string, error) {
		if id == "" {
			return "", nil
		}
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("service/room: resolving player %s: %w", id, err)
		}
		return u.Username, nil
	}

	var err error
	if v.PlayerXName, err = name(g.PlayerXID); err != nil {
		return nil, err
	}
	if v.PlayerOName, err = name(g.PlayerOID); err != nil {
		return nil, err
	}
	if v.TurnUsername, err = name(g.TurnID); err != nil {
		return nil, err
	}
	if v.WinnerName, err = name(g.WinnerID); err != nil {
		return nil, err
	}

	return v, nil
}

// newRoomID generates a room code that is not already in use.
func (s *RoomService) newRoomID(ctx context.Context) (string, error) {
	for i := 0; i < roomCodeAttempts; i++ {
		code := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:roomCodeLength])
		exists, err := s.games.RoomIDExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("service/room: checking room code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("service/room: %w", apperror.Conflict("could not allocate a room code"))
}
