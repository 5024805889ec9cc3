package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/rougue1/tictactoe-server/internal/auth"
	"github.com/rougue1/tictactoe-server/internal/handler"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/repository/sqlite"
	"github.com/rougue1/tictactoe-server/internal/service"
)

// mockRealtime records the notifications the handlers push to the websocket
// layer, so tests assert on calls without running a coordinator.
type mockRealtime struct {
	joinedRooms    []string
	readyUsers     []string
	unreadyUsers   []string
	available      []model.PublicUser
	challenged     [][2]string
	challengeGame  *model.Game
	challengeErr   error
	friendRequests []model.FriendRequest
	responses      []string
	refreshedUsers []string
}

func (m *mockRealtime) NotifyRoomJoined(g *model.Game) { m.joinedRooms = append(m.joinedRooms, g.RoomID) }
func (m *mockRealtime) MarkReady(userID string)        { m.readyUsers = append(m.readyUsers, userID) }
func (m *mockRealtime) MarkUnready(userID string)      { m.unreadyUsers = append(m.unreadyUsers, userID) }
func (m *mockRealtime) AvailablePlayers(string) []model.PublicUser {
	return m.available
}
func (m *mockRealtime) Challenge(challengerID, opponentID string) (*model.Game, error) {
	m.challenged = append(m.challenged, [2]string{challengerID, opponentID})
	return m.challengeGame, m.challengeErr
}
func (m *mockRealtime) NotifyFriendRequest(_ string, req model.FriendRequest) {
	m.friendRequests = append(m.friendRequests, req)
}
func (m *mockRealtime) NotifyFriendResponse(requesterID, _, _ string, _ bool) {
	m.responses = append(m.responses, requesterID)
}
func (m *mockRealtime) NotifyFriendListChanged(userIDs ...string) {
	m.refreshedUsers = append(m.refreshedUsers, userIDs...)
}

type fixture struct {
	db       *sqlite.DB
	auth     *service.AuthService
	rooms    *service.RoomService
	friends  *service.FriendService
	realtime *mockRealtime

	authHandler   *handler.AuthHandler
	roomHandler   *handler.RoomHandler
	friendHandler *handler.FriendHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars")
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	authSvc := service.NewAuthService(db.Users(), tokens, auth.NewPasswordServiceForTest(4), logger)
	roomSvc := service.NewRoomService(db.Games(), db.Users(), logger)
	friendSvc := service.NewFriendService(db.Friendships(), db.Users(), logger)
	realtime := &mockRealtime{}

	return &fixture{
		db:            db,
		auth:          authSvc,
		rooms:         roomSvc,
		friends:       friendSvc,
		realtime:      realtime,
		authHandler:   handler.NewAuthHandler(authSvc, logger),
		roomHandler:   handler.NewRoomHandler(roomSvc, realtime, logger),
		friendHandler: handler.NewFriendHandler(friendSvc, realtime, logger),
	}
}

func (f *fixture) register(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), username, "hunter2")
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return u
}

// authedRequest builds a request carrying userID the way RequireAuth would.
func authedRequest(method, target, body, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.ContextWithUserID(req.Context(), userID))
}

// withURLParam attaches a chi route parameter to the request context.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestAuthHandler_RegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	t.Run("register", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
			bytes.NewBufferString(`{"username":"alice","password":"hunter2"}`))
		rr := httptest.NewRecorder()

		f.authHandler.HandleRegister(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var res struct {
			Token string           `json:"token"`
			User  model.PublicUser `json:"user"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "alice", res.User.Username)
	})

	t.Run("duplicate username", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
			bytes.NewBufferString(`{"username":"alice","password":"other"}`))
		rr := httptest.NewRecorder()

		f.authHandler.HandleRegister(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"username":"alice","password":"hunter2"}`))
		rr := httptest.NewRecorder()

		f.authHandler.HandleLogin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		cookies := rr.Result().Cookies()
		assert.NotEmpty(t, cookies)
		assert.Equal(t, "token", cookies[0].Name)
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"username":"alice","password":"wrong"}`))
		rr := httptest.NewRecorder()

		f.authHandler.HandleLogin(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			bytes.NewBufferString(`{"username":`))
		rr := httptest.NewRecorder()

		f.authHandler.HandleLogin(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	t.Run("authenticated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.authHandler.HandleMe(rr, authedRequest(http.MethodGet, "/api/auth/me", "", alice.ID))

		assert.Equal(t, http.StatusOK, rr.Code)
		var user model.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, "alice", user.Username)
		// The password hash is never serialized.
		assert.NotContains(t, rr.Body.String(), "password")
	})

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.authHandler.HandleMe(rr, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRoomHandler_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	rr := httptest.NewRecorder()
	f.roomHandler.HandleCreate(rr, authedRequest(http.MethodPost, "/api/rooms", `{"public":true}`, alice.ID))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var created model.GameView
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Len(t, created.RoomID, 6)
	assert.Equal(t, model.StatusPending, created.Status)
	assert.Equal(t, "alice", created.PlayerXName)
	assert.Equal(t, "X", created.YourSymbol)

	rr = httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodGet, "/api/rooms/"+created.RoomID, "", alice.ID), "roomID", created.RoomID)
	f.roomHandler.HandleGet(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	req = withURLParam(authedRequest(http.MethodGet, "/api/rooms/NOSUCH", "", alice.ID), "roomID", "NOSUCH")
	f.roomHandler.HandleGet(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRoomHandler_Join(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	g, err := f.rooms.Create(context.Background(), alice.ID, true)
	assert.NoError(t, err)

	t.Run("claims the open seat", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodPost, "/api/rooms/"+g.RoomID+"/join", "", bob.ID), "roomID", g.RoomID)
		f.roomHandler.HandleJoin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var view model.GameView
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
		assert.Equal(t, model.StatusActive, view.Status)
		assert.Equal(t, "O", view.YourSymbol)
		// The socket layer is told once, on the actual seat claim.
		assert.Equal(t, []string{g.RoomID}, f.realtime.joinedRooms)
	})

	t.Run("re-entry does not notify again", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodPost, "/api/rooms/"+g.RoomID+"/join", "", bob.ID), "roomID", g.RoomID)
		f.roomHandler.HandleJoin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, f.realtime.joinedRooms, 1)
	})

	t.Run("full room rejects a third player", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodPost, "/api/rooms/"+g.RoomID+"/join", "", carol.ID), "roomID", g.RoomID)
		f.roomHandler.HandleJoin(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestRoomHandler_List(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, err := f.rooms.Create(context.Background(), alice.ID, true)
	assert.NoError(t, err)
	_, err = f.rooms.Create(context.Background(), alice.ID, false)
	assert.NoError(t, err)

	rr := httptest.NewRecorder()
	f.roomHandler.HandleList(rr, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var views []model.GameView
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
	assert.Len(t, views, 1)
}

func TestRoomHandler_PlayMirror(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	t.Run("ready and unready", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.roomHandler.HandleReady(rr, authedRequest(http.MethodPost, "/api/play/ready", "", alice.ID))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{alice.ID}, f.realtime.readyUsers)

		rr = httptest.NewRecorder()
		f.roomHandler.HandleUnready(rr, authedRequest(http.MethodPost, "/api/play/unready", "", alice.ID))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{alice.ID}, f.realtime.unreadyUsers)
	})

	t.Run("available players", func(t *testing.T) {
		f.realtime.available = []model.PublicUser{{ID: bob.ID, Username: "bob"}}

		rr := httptest.NewRecorder()
		f.roomHandler.HandleAvailable(rr, authedRequest(http.MethodGet, "/api/play/available", "", alice.ID))

		assert.Equal(t, http.StatusOK, rr.Code)
		var players []model.PublicUser
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&players))
		assert.Len(t, players, 1)
		assert.Equal(t, "bob", players[0].Username)
	})

	t.Run("challenge", func(t *testing.T) {
		g, err := f.rooms.CreateDirect(context.Background(), alice.ID, bob.ID)
		assert.NoError(t, err)
		f.realtime.challengeGame = g

		rr := httptest.NewRecorder()
		f.roomHandler.HandleChallenge(rr, authedRequest(http.MethodPost, "/api/play/challenge",
			`{"opponentId":"`+bob.ID+`"}`, alice.ID))

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, [][2]string{{alice.ID, bob.ID}}, f.realtime.challenged)
		var view model.GameView
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
		assert.Equal(t, model.StatusActive, view.Status)
	})

	t.Run("challenge without opponent", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.roomHandler.HandleChallenge(rr, authedRequest(http.MethodPost, "/api/play/challenge", `{}`, alice.ID))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.roomHandler.HandleReady(rr, httptest.NewRequest(http.MethodPost, "/api/play/ready", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestFriendHandler_RequestFlow(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	var requestID string

	t.Run("send request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.friendHandler.HandleSendRequest(rr, authedRequest(http.MethodPost, "/api/friends/requests",
			`{"addresseeId":"`+bob.ID+`"}`, alice.ID))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var created model.Friendship
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
		assert.Equal(t, model.FriendshipPending, created.Status)
		requestID = created.ID

		// The addressee gets a realtime push.
		assert.Len(t, f.realtime.friendRequests, 1)
		assert.Equal(t, "alice", f.realtime.friendRequests[0].RequesterUsername)
	})

	t.Run("addressee sees it pending", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.friendHandler.HandleRequests(rr, authedRequest(http.MethodGet, "/api/friends/requests", "", bob.ID))

		assert.Equal(t, http.StatusOK, rr.Code)
		var reqs []model.FriendRequest
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&reqs))
		assert.Len(t, reqs, 1)
	})

	t.Run("accept", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodPost, "/api/friends/requests/"+requestID,
			`{"accept":true}`, bob.ID), "requestID", requestID)
		f.friendHandler.HandleRespond(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []string{alice.ID}, f.realtime.responses)
		assert.ElementsMatch(t, []string{alice.ID, bob.ID}, f.realtime.refreshedUsers)
	})

	t.Run("friend list shows the new friend", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.friendHandler.HandleList(rr, authedRequest(http.MethodGet, "/api/friends", "", alice.ID))

		assert.Equal(t, http.StatusOK, rr.Code)
		var friends []model.Friend
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&friends))
		assert.Len(t, friends, 1)
		assert.Equal(t, "bob", friends[0].Username)
		assert.False(t, friends[0].Online)
	})

	t.Run("stranger cannot respond", func(t *testing.T) {
		carol := f.register(t, "carol")
		g, _, err := f.friends.SendRequest(context.Background(), carol.ID, alice.ID)
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodPost, "/api/friends/requests/"+g.ID,
			`{"accept":true}`, bob.ID), "requestID", g.ID)
		f.friendHandler.HandleRespond(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestFriendHandler_Search(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	f.register(t, "alicia")
	f.register(t, "bob")

	rr := httptest.NewRecorder()
	f.friendHandler.HandleSearch(rr, authedRequest(http.MethodGet, "/api/users/search?q=ali", "", alice.ID))

	assert.Equal(t, http.StatusOK, rr.Code)
	var users []model.PublicUser
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&users))
	assert.Len(t, users, 1)
	assert.Equal(t, "alicia", users[0].Username)
}
