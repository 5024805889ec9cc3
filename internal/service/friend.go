package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/repository"
)

// Presence answers whether a user currently holds a live websocket
// connection. The connection registry implements it; friend listings use it
// to annotate each friend with an online flag.
type Presence interface {
	IsOnline(userID string) bool
}

// nobodyOnline is the Presence used before the realtime layer is wired in.
type nobodyOnline struct{}

func (nobodyOnline) IsOnline(string) bool { return false }

// FriendService manages the friendship graph: search, requests, responses,
// and the annotated friend list.
type FriendService struct {
	friendships repository.FriendshipRepository
	users       repository.UserRepository
	presence    Presence
	logger      *slog.Logger
}

// NewFriendService creates a FriendService. Call SetPresence once the
// connection registry exists.
func NewFriendService(
	friendships repository.FriendshipRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *FriendService {
	return &FriendService{
		friendships: friendships,
		users:       users,
		presence:    nobodyOnline{},
		logger:      logger,
	}
}

// SetPresence wires in the live-connection lookup. Must be called during
// server construction, before any requests are served.
func (s *FriendService) SetPresence(p Presence) {
	s.presence = p
}

// ListFriends returns userID's accepted friends, each annotated with whether
// they are currently connected.
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]model.Friend, error) {
	friends, err := s.friendships.AcceptedFriendsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing friends of %s: %w", userID, err)
	}
	for i := range friends {
		friends[i].Online = s.presence.IsOnline(friends[i].ID)
	}
	return friends, nil
}

// PendingRequests returns the friend requests waiting for userID's answer.
func (s *FriendService) PendingRequests(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	reqs, err := s.friendships.PendingFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: listing requests for %s: %w", userID, err)
	}
	return reqs, nil
}

// SearchUsers finds users whose username contains the query, excluding the
// caller. Queries shorter than two characters return an empty list rather
// than the whole user table.
func (s *FriendService) SearchUsers(ctx context.Context, query, callerID string) ([]model.PublicUser, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []model.PublicUser{}, nil
	}
	users, err := s.users.Search(ctx, query, callerID, 10)
	if err != nil {
		return nil, fmt.Errorf("service/friend: searching users: %w", err)
	}
	return users, nil
}

// SendRequest creates a pending friendship from requesterID to addresseeID.
// Returns the new friendship and the requester's profile, which the realtime
// layer includes in the notification to the addressee.
//
// A declined earlier request in either direction is deleted and replaced, so
// a decline is never permanent. An existing pending or accepted friendship
// in either direction is a conflict.
func (s *FriendService) SendRequest(ctx context.Context, requesterID, addresseeID string) (*model.Friendship, *model.User, error) {
	if requesterID == addresseeID {
		return nil, nil, fmt.Errorf("service/friend: %w",
			apperror.ValidationFailed("addresseeId", "cannot friend yourself"))
	}

	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/friend: resolving requester %s: %w", requesterID, err)
	}
	if _, err := s.users.GetByID(ctx, addresseeID); err != nil {
		return nil, nil, fmt.Errorf("service/friend: resolving addressee %s: %w", addresseeID, err)
	}

	existing, err := s.friendships.FindBetween(ctx, requesterID, addresseeID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, nil, fmt.Errorf("service/friend: checking existing friendship: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case model.FriendshipAccepted:
			return nil, nil, fmt.Errorf("service/friend: %w",
				apperror.Conflict("already friends"))
		case model.FriendshipPending:
			return nil, nil, fmt.Errorf("service/friend: %w",
				apperror.Conflict("a friend request is already pending"))
		case model.FriendshipDeclined:
			if err := s.friendships.Delete(ctx, existing.ID); err != nil {
				return nil, nil, fmt.Errorf("service/friend: clearing declined request: %w", err)
			}
		}
	}

	f := &model.Friendship{
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Status:      model.FriendshipPending,
	}
	if err := s.friendships.Create(ctx, f); err != nil {
		return nil, nil, fmt.Errorf("service/friend: creating request: %w", err)
	}

	s.logger.Info("friend request sent",
		slog.String("requesterID", requesterID),
		slog.String("addresseeID", addresseeID),
	)

	return f, requester, nil
}

// Respond accepts or declines a pending request. Only the addressee may
// respond; a request that already has an answer is a conflict.
func (s *FriendService) Respond(ctx context.Context, userID, requestID string, accept bool) (*model.Friendship, error) {
	f, err := s.friendships.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("service/friend: fetching request %s: %w", requestID, err)
	}
	if f.AddresseeID != userID {
		return nil, fmt.Errorf("service/friend: %w",
			apperror.Forbidden("only the addressee can respond to a request"))
	}
	if f.Status != model.FriendshipPending {
		return nil, fmt.Errorf("service/friend: %w",
			apperror.Conflict("request already answered"))
	}

	status := model.FriendshipDeclined
	if accept {
		status = model.FriendshipAccepted
	}
	if err := s.friendships.UpdateStatus(ctx, requestID, status); err != nil {
		return nil, fmt.Errorf("service/friend: updating request %s: %w", requestID, err)
	}
	f.Status = status

	s.logger.Info("friend request answered",
		slog.String("requestID", requestID),
		slog.String("status", string(status)),
	)

	return f, nil
}
