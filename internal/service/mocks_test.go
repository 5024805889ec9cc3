package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/rs/xid"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/model"
)

// Hand-written in-memory fakes of the repository interfaces. They keep the
// service tests fast and let error paths be simulated without a database.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockUserRepo struct {
	users map[string]*model.User // keyed by ID
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Username == user.Username {
			return apperror.Conflict("username already exists")
		}
	}
	user.ID = xid.New().String()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (m *mockUserRepo) Search(_ context.Context, q, excludeID string, limit int) ([]model.PublicUser, error) {
	result := []model.PublicUser{}
	for _, u := range m.users {
		if u.ID == excludeID || !strings.Contains(u.Username, q) {
			continue
		}
		result = append(result, model.PublicUser{ID: u.ID, Username: u.Username})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockUserRepo) IncrementWins(_ context.Context, id string) error {
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Wins++
	return nil
}

func (m *mockUserRepo) TopByWins(_ context.Context, limit int) ([]model.ScoreboardEntry, error) {
	entries := []model.ScoreboardEntry{}
	for _, u := range m.users {
		entries = append(entries, model.ScoreboardEntry{Username: u.Username, Wins: u.Wins})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Wins != entries[j].Wins {
			return entries[i].Wins > entries[j].Wins
		}
		return entries[i].Username < entries[j].Username
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

type mockFriendshipRepo struct {
	friendships map[string]*model.Friendship
	users       *mockUserRepo // for username resolution in listings
}

func newMockFriendshipRepo(users *mockUserRepo) *mockFriendshipRepo {
	return &mockFriendshipRepo{
		friendships: make(map[string]*model.Friendship),
		users:       users,
	}
}

func (m *mockFriendshipRepo) Create(_ context.Context, f *model.Friendship) error {
	f.ID = xid.New().String()
	stored := *f
	m.friendships[f.ID] = &stored
	return nil
}

func (m *mockFriendshipRepo) GetByID(_ context.Context, id string) (*model.Friendship, error) {
	f, ok := m.friendships[id]
	if !ok {
		return nil, apperror.NotFound("friend request", id)
	}
	result := *f
	return &result, nil
}

func (m *mockFriendshipRepo) FindBetween(_ context.Context, a, b string) (*model.Friendship, error) {
	for _, f := range m.friendships {
		if (f.RequesterID == a && f.AddresseeID == b) || (f.RequesterID == b && f.AddresseeID == a) {
			result := *f
			return &result, nil
		}
	}
	return nil, apperror.NotFound("friendship", fmt.Sprintf("%s/%s", a, b))
}

func (m *mockFriendshipRepo) UpdateStatus(_ context.Context, id string, status model.FriendshipStatus) error {
	f, ok := m.friendships[id]
	if !ok {
		return apperror.NotFound("friend request", id)
	}
	f.Status = status
	return nil
}

func (m *mockFriendshipRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.friendships[id]; !ok {
		return apperror.NotFound("friend request", id)
	}
	delete(m.friendships, id)
	return nil
}

func (m *mockFriendshipRepo) PendingFor(ctx context.Context, addresseeID string) ([]model.FriendRequest, error) {
	reqs := []model.FriendRequest{}
	for _, f := range m.friendships {
		if f.AddresseeID != addresseeID || f.Status != model.FriendshipPending {
			continue
		}
		requester, err := m.users.GetByID(ctx, f.RequesterID)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, model.FriendRequest{
			RequestID:         f.ID,
			RequesterID:       f.RequesterID,
			RequesterUsername: requester.Username,
		})
	}
	return reqs, nil
}

func (m *mockFriendshipRepo) AcceptedFriendsOf(ctx context.Context, userID string) ([]model.Friend, error) {
	friends := []model.Friend{}
	for _, f := range m.friendships {
		if f.Status != model.FriendshipAccepted {
			continue
		}
		var otherID string
		switch userID {
		case f.RequesterID:
			otherID = f.AddresseeID
		case f.AddresseeID:
			otherID = f.RequesterID
		default:
			continue
		}
		other, err := m.users.GetByID(ctx, otherID)
		if err != nil {
			return nil, err
		}
		friends = append(friends, model.Friend{ID: other.ID, Username: other.Username})
	}
	sort.Slice(friends, func(i, j int) bool { return friends[i].Username < friends[j].Username })
	return friends, nil
}

type mockGameRepo struct {
	games map[string]*model.Game // keyed by room ID
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{games: make(map[string]*model.Game)}
}

func (m *mockGameRepo) Create(_ context.Context, g *model.Game) error {
	g.ID = xid.New().String()
	stored := *g
	m.games[g.RoomID] = &stored
	return nil
}

func (m *mockGameRepo) GetByRoomID(_ context.Context, roomID string) (*model.Game, error) {
	g, ok := m.games[roomID]
	if !ok {
		return nil, apperror.NotFound("room", roomID)
	}
	result := *g
	return &result, nil
}

func (m *mockGameRepo) Update(_ context.Context, g *model.Game) error {
	if _, ok := m.games[g.RoomID]; !ok {
		return apperror.NotFound("room", g.RoomID)
	}
	stored := *g
	m.games[g.RoomID] = &stored
	return nil
}

func (m *mockGameRepo) TakeSecondSeat(_ context.Context, roomID, userID string) (*model.Game, error) {
	g, ok := m.games[roomID]
	if !ok {
		return nil, apperror.NotFound("room", roomID)
	}
	if g.Status != model.StatusPending || g.PlayerOID != "" || g.PlayerXID == userID {
		return nil, apperror.InvalidState("room is not available for joining")
	}
	g.PlayerOID = userID
	g.Status = model.StatusActive
	g.TurnID = g.PlayerXID
	result := *g
	return &result, nil
}

func (m *mockGameRepo) ListPublicPending(_ context.Context) ([]model.Game, error) {
	result := []model.Game{}
	for _, g := range m.games {
		if g.Public && g.Status == model.StatusPending {
			result = append(result, *g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RoomID < result[j].RoomID })
	return result, nil
}

func (m *mockGameRepo) RoomIDExists(_ context.Context, roomID string) (bool, error) {
	_, ok := m.games[roomID]
	return ok, nil
}

func (m *mockGameRepo) ActiveGamesFor(_ context.Context, userID string) ([]model.Game, error) {
	result := []model.Game{}
	for _, g := range m.games {
		if g.Status == model.StatusActive && g.Seated(userID) {
			result = append(result, *g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RoomID < result[j].RoomID })
	return result, nil
}
