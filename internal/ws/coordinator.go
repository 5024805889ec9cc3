package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/game"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/repository"
	"github.com/rougue1/tictactoe-server/internal/service"
)

// Coordinator owns all realtime session state. Every command from every
// connection, plus every notification from the HTTP layer, is executed as a
// closure on a single event loop goroutine, so game transitions are strictly
// serialized: no lock juggling between the pool, the registry, the router,
// and the database.
type Coordinator struct {
	registry *Registry
	pool     *Pool
	router   *RoomRouter

	auth    *service.AuthService
	rooms   *service.RoomService
	friends *service.FriendService
	games   repository.GameRepository
	users   repository.UserRepository
	logger  *slog.Logger

	ops  chan func()
	done chan struct{}
}

// NewCoordinator wires the coordinator. Call Run to start the event loop
// before serving connections.
func NewCoordinator(
	registry *Registry,
	auth *service.AuthService,
	rooms *service.RoomService,
	friends *service.FriendService,
	games repository.GameRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		registry: registry,
		pool:     NewPool(),
		router:   NewRoomRouter(),
		auth:     auth,
		rooms:    rooms,
		friends:  friends,
		games:    games,
		users:    users,
		logger:   logger,
		ops:      make(chan func(), 512),
		done:     make(chan struct{}),
	}
}

// Registry exposes the connection registry, which doubles as the presence
// source for friend listings.
func (co *Coordinator) Registry() *Registry { return co.registry }

// Run executes the event loop until ctx is cancelled. Exactly one Run per
// coordinator.
func (co *Coordinator) Run(ctx context.Context) {
	defer close(co.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-co.ops:
			op()
		}
	}
}

// do queues an operation on the event loop, dropping it if the loop has
// stopped.
func (co *Coordinator) do(op func()) {
	select {
	case co.ops <- op:
	case <-co.done:
	}
}

// call runs op on the event loop and waits for it to finish. Used by the
// HTTP layer, which needs the result before it can respond.
func (co *Coordinator) call(op func()) {
	finished := make(chan struct{})
	co.do(func() {
		defer close(finished)
		op()
	})
	select {
	case <-finished:
	case <-co.done:
	}
}

// dispatch hands a decoded client command to the event loop. Called from
// each connection's readPump.
func (co *Coordinator) dispatch(c *Client, env Envelope) {
	co.do(func() { co.handle(c, env) })
}

// disconnect runs the teardown for a dead connection. Called from the
// readPump's deferred cleanup.
func (co *Coordinator) disconnect(c *Client) {
	co.do(func() { co.handleDisconnect(c) })
}

// sendError emits an error event to one client only.
func (co *Coordinator) sendError(c *Client, message string) {
	msg, err := marshalEvent(EvtError, errorPayload{Message: message})
	if err != nil {
		co.logger.Error("building error event", slog.String("error", err.Error()))
		return
	}
	c.enqueue(msg)
}

// sendEvent marshals and queues one event on one client.
func (co *Coordinator) sendEvent(c *Client, eventType string, payload any) {
	msg, err := marshalEvent(eventType, payload)
	if err != nil {
		co.logger.Error("building event",
			slog.String("event", eventType),
			slog.String("error", err.Error()))
		return
	}
	c.enqueue(msg)
}

// broadcastEvent marshals once and fans out to every subscriber of roomID.
func (co *Coordinator) broadcastEvent(roomID, eventType string, payload any) {
	msg, err := marshalEvent(eventType, payload)
	if err != nil {
		co.logger.Error("building event",
			slog.String("event", eventType),
			slog.String("error", err.Error()))
		return
	}
	co.router.Broadcast(roomID, msg)
}

// handle runs on the event loop.
func (co *Coordinator) handle(c *Client, env Envelope) {
	ctx := context.Background()

	if env.Type == CmdAuthenticate {
		co.handleAuthenticate(ctx, c, env.Payload)
		return
	}

	userID, ok := co.registry.Identity(c)
	if !ok {
		co.sendError(c, "not authenticated")
		return
	}

	switch env.Type {
	case CmdJoinGameRoom:
		co.handleJoinRoom(ctx, c, userID, env.Payload)
	case CmdMakeMove:
		co.handleMakeMove(ctx, c, userID, env.Payload)
	case CmdLeaveRoom:
		co.handleLeaveRoom(c, env.Payload)
	case CmdMarkReady:
		co.handleMarkReady(ctx, userID)
	case CmdMarkUnready:
		co.handleMarkUnready(ctx, userID)
	case CmdChallenge:
		co.handleChallenge(ctx, c, userID, env.Payload)
	default:
		co.sendError(c, "unknown command: "+env.Type)
	}
}

func (co *Coordinator) handleAuthenticate(ctx context.Context, c *Client, payload json.RawMessage) {
	var p authenticatePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Token == "" {
		co.sendError(c, "authenticate requires a token")
		return
	}

	userID, err := co.auth.ValidateToken(p.Token)
	if err != nil {
		co.sendError(c, "invalid or expired token")
		return
	}
	user, err := co.users.GetByID(ctx, userID)
	if err != nil {
		co.sendError(c, "unknown account")
		return
	}

	wasOnline := co.registry.IsOnline(userID)
	// Reconnect: the newest connection wins the registry entry. A stale
	// duplicate stays open but no addressed send reaches it anymore.
	co.registry.Register(userID, c)

	co.logger.Info("client authenticated",
		slog.String("userID", userID),
		slog.String("username", user.Username),
		slog.Bool("reconnect", wasOnline),
	)

	co.sendEvent(c, EvtAuthenticated, authenticatedPayload{
		UserID:   userID,
		Username: user.Username,
	})
	co.sendFriendList(ctx, userID, c)
	if !wasOnline {
		co.fanoutPresence(ctx, user, true)
	}
	co.sendAvailablePlayers(ctx, userID, c)
}

func (co *Coordinator) handleJoinRoom(ctx context.Context, c *Client, userID string, payload json.RawMessage) {
	var p joinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		co.sendError(c, "join_game_room requires a roomId")
		return
	}

	g, err := co.rooms.Get(ctx, p.RoomID)
	if err != nil {
		co.sendCommandError(c, err)
		return
	}

	claimed := false
	if !g.Seated(userID) {
		g, claimed, err = co.rooms.Join(ctx, p.RoomID, userID)
		if err != nil {
			co.sendCommandError(c, err)
			return
		}
	}

	co.router.Subscribe(p.RoomID, c)

	view, err := co.rooms.View(ctx, g, userID)
	if err != nil {
		co.sendCommandError(c, err)
		return
	}
	co.sendEvent(c, EvtGameJoined, gamePayload{Game: view})

	if claimed {
		// The second seat was just taken: the room went active, so both
		// players leave the matchmaking pool and everyone watching the
		// room sees the new state.
		co.broadcastUpdate(ctx, g)
		co.withdrawFromPool(ctx, g.PlayerXID, g.PlayerOID)
	}
}

func (co *Coordinator) handleMakeMove(ctx context.Context, c *Client, userID string, payload json.RawMessage) {
	var p makeMovePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		co.sendError(c, "make_move requires a roomId and index")
		return
	}

	g, err := co.games.GetByRoomID(ctx, p.RoomID)
	if err != nil {
		co.sendCommandError(c, err)
		return
	}

	outcome, err := game.ApplyMove(g, userID, p.Index)
	if err != nil {
		co.sendCommandError(c, err)
		return
	}
	if err := co.games.Update(ctx, g); err != nil {
		co.logger.Error("persisting move",
			slog.String("roomID", g.RoomID),
			slog.String("error", err.Error()))
		co.sendError(c, "could not save the move")
		return
	}

	co.broadcastUpdate(ctx, g)
	if outcome.Over {
		co.finishGame(ctx, g, outcome.WinnerID, outcome.Draw, "")
	}
}

func (co *Coordinator) handleLeaveRoom(c *Client, payload json.RawMessage) {
	var p joinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		co.sendError(c, "leave_game_room requires a roomId")
		return
	}

	// Leaving a room only stops the broadcasts. Abandoning an active game
	// is detected on transport disconnect, never here.
	co.router.Unsubscribe(p.RoomID, c)
}

func (co *Coordinator) handleMarkReady(ctx context.Context, userID string) {
	if co.pool.Add(userID) {
		co.logger.Info("player ready", slog.String("userID", userID))
		co.fanoutAvailablePlayers(ctx)
	}
}

func (co *Coordinator) handleMarkUnready(ctx context.Context, userID string) {
	if co.pool.Remove(userID) {
		co.logger.Info("player unready", slog.String("userID", userID))
		co.fanoutAvailablePlayers(ctx)
	}
}

func (co *Coordinator) handleChallenge(ctx context.Context, c *Client, userID string, payload json.RawMessage) {
	var p challengePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.OpponentID == "" {
		co.sendError(c, "challenge requires an opponentId")
		return
	}

	if _, err := co.startDirect(ctx, userID, p.OpponentID); err != nil {
		co.sendCommandError(c, err)
	}
}

// startDirect creates an already-active game between challenger and an
// online opponent, routes both connections into its room, invites the
// opponent, and confirms to the challenger. Runs on the event loop.
func (co *Coordinator) startDirect(ctx context.Context, challengerID, opponentID string) (*model.Game, error) {
	opponentConn, online := co.registry.Lookup(opponentID)
	if !online {
		return nil, apperror.InvalidState("player is not online")
	}
	if !co.pool.Contains(challengerID) && !co.pool.Contains(opponentID) {
		return nil, apperror.InvalidState("neither player is marked ready to play")
	}

	g, err := co.rooms.CreateDirect(ctx, challengerID, opponentID)
	if err != nil {
		return nil, err
	}

	// Both players land in the room immediately; the game is already
	// active with the challenger to move. The opponent gets an invite,
	// the challenger a started confirmation.
	co.router.Subscribe(g.RoomID, opponentConn)
	if view, err := co.rooms.View(ctx, g, opponentID); err != nil {
		co.logger.Error("building game view",
			slog.String("roomID", g.RoomID),
			slog.String("error", err.Error()))
	} else {
		challengerName := ""
		if challenger, err := co.users.GetByID(ctx, challengerID); err == nil {
			challengerName = challenger.Username
		}
		co.sendEvent(opponentConn, EvtGameInvite, gameInvitePayload{
			FromID:       challengerID,
			FromUsername: challengerName,
			Game:         view,
		})
	}

	if challengerConn, ok := co.registry.Lookup(challengerID); ok {
		co.router.Subscribe(g.RoomID, challengerConn)
		if view, err := co.rooms.View(ctx, g, challengerID); err != nil {
			co.logger.Error("building game view",
				slog.String("roomID", g.RoomID),
				slog.String("error", err.Error()))
		} else {
			co.sendEvent(challengerConn, EvtGameStartedDirect, gamePayload{Game: view})
		}
	}

	co.withdrawFromPool(ctx, challengerID, opponentID)
	return g, nil
}

// MarkReady mirrors the mark_ready socket command for the REST surface.
func (co *Coordinator) MarkReady(userID string) {
	co.call(func() { co.handleMarkReady(context.Background(), userID) })
}

// MarkUnready mirrors the mark_unready socket command for the REST surface.
func (co *Coordinator) MarkUnready(userID string) {
	co.call(func() { co.handleMarkUnready(context.Background(), userID) })
}

// AvailablePlayers returns the ready pool as seen by viewerID.
func (co *Coordinator) AvailablePlayers(viewerID string) []model.PublicUser {
	var players []model.PublicUser
	co.call(func() {
		players = co.availablePlayersFor(context.Background(), viewerID)
	})
	return players
}

// Challenge mirrors the challenge socket command for the REST surface. The
// opponent must be online and at least one side marked ready; the challenger
// need not hold a socket connection, they simply miss the
// game_started_direct push.
func (co *Coordinator) Challenge(challengerID, opponentID string) (*model.Game, error) {
	var (
		g   *model.Game
		err error
	)
	co.call(func() {
		g, err = co.startDirect(context.Background(), challengerID, opponentID)
	})
	return g, err
}

// handleDisconnect tears down all session state tied to c. Order matters:
// the registry first (so presence reads see the user offline), then the
// pool, then forfeits, so every fanout below reflects the final state.
func (co *Coordinator) handleDisconnect(c *Client) {
	ctx := context.Background()
	defer c.close()

	userID, ok := co.registry.Unregister(c)
	if !ok {
		// Never authenticated, or already displaced by a reconnect.
		co.router.UnsubscribeAll(c)
		return
	}

	co.logger.Info("client disconnected", slog.String("userID", userID))

	if co.pool.Remove(userID) {
		co.fanoutAvailablePlayers(ctx)
	}

	if user, err := co.users.GetByID(ctx, userID); err == nil {
		co.fanoutPresence(ctx, user, false)
	}

	active, err := co.games.ActiveGamesFor(ctx, userID)
	if err != nil {
		co.logger.Error("loading active games on disconnect",
			slog.String("userID", userID),
			slog.String("error", err.Error()))
	}
	for i := range active {
		co.forfeitIfActive(ctx, &active[i], userID)
	}

	co.router.UnsubscribeAll(c)
}

// NotifyRoomJoined is called by the HTTP join endpoint after a seat claim,
// so players already subscribed over the socket see the room go active.
func (co *Coordinator) NotifyRoomJoined(g *model.Game) {
	co.call(func() {
		ctx := context.Background()
		co.broadcastUpdate(ctx, g)
		co.withdrawFromPool(ctx, g.PlayerXID, g.PlayerOID)
	})
}

// NotifyFriendRequest pushes a friend_request_received event to the
// addressee, if they are online.
func (co *Coordinator) NotifyFriendRequest(addresseeID string, req model.FriendRequest) {
	co.do(func() {
		if c, ok := co.registry.Lookup(addresseeID); ok {
			co.sendEvent(c, EvtFriendReqReceived, req)
		}
	})
}

// NotifyFriendResponse tells the requester their request was answered and
// refreshes their friend list.
func (co *Coordinator) NotifyFriendResponse(requesterID, responderID, requestID string, accepted bool) {
	co.do(func() {
		ctx := context.Background()
		c, ok := co.registry.Lookup(requesterID)
		if !ok {
			return
		}
		responderName := ""
		if responder, err := co.users.GetByID(ctx, responderID); err == nil {
			responderName = responder.Username
		}
		co.sendEvent(c, EvtFriendReqResponded, friendRespondedPayload{
			RequestID: requestID,
			Responder: responderName,
			Accepted:  accepted,
		})
		co.sendFriendList(ctx, requesterID, c)
	})
}

// NotifyFriendListChanged refreshes the friend list of each given user that
// is online.
func (co *Coordinator) NotifyFriendListChanged(userIDs ...string) {
	co.do(func() {
		ctx := context.Background()
		for _, id := range userIDs {
			if c, ok := co.registry.Lookup(id); ok {
				co.sendFriendList(ctx, id, c)
			}
		}
	})
}

// broadcastUpdate sends the current game state to everyone in the room. The
// view is built without a viewer, so it carries no seat-specific fields.
func (co *Coordinator) broadcastUpdate(ctx context.Context, g *model.Game) {
	view, err := co.rooms.View(ctx, g, "")
	if err != nil {
		co.logger.Error("building game view",
			slog.String("roomID", g.RoomID),
			slog.String("error", err.Error()))
		return
	}
	co.broadcastEvent(g.RoomID, EvtGameUpdate, gamePayload{Game: view})
}

// finishGame emits exactly one game_over for a game that just reached a
// terminal state, crediting the winner's tally first. A failed tally update
// is logged and swallowed: the result already stands in the games table.
func (co *Coordinator) finishGame(ctx context.Context, g *model.Game, winnerID string, draw bool, reason string) {
	winnerName := ""
	if winnerID != "" {
		if err := co.users.IncrementWins(ctx, winnerID); err != nil {
			co.logger.Error("crediting win",
				slog.String("userID", winnerID),
				slog.String("error", err.Error()))
		}
		if winner, err := co.users.GetByID(ctx, winnerID); err == nil {
			winnerName = winner.Username
		}
	}

	view, err := co.rooms.View(ctx, g, "")
	if err != nil {
		co.logger.Error("building game view",
			slog.String("roomID", g.RoomID),
			slog.String("error", err.Error()))
		return
	}
	co.broadcastEvent(g.RoomID, EvtGameOver, gameOverPayload{
		Game:   view,
		Winner: winnerName,
		Draw:   draw,
		Reason: reason,
	})

	co.logger.Info("game over",
		slog.String("roomID", g.RoomID),
		slog.String("status", string(g.Status)),
	)
}

// forfeitIfActive forfeits g on behalf of leaverID if the game is active and
// they are seated. No-op otherwise.
func (co *Coordinator) forfeitIfActive(ctx context.Context, g *model.Game, leaverID string) {
	winnerID, ok := game.Forfeit(g, leaverID)
	if !ok {
		return
	}
	if err := co.games.Update(ctx, g); err != nil {
		co.logger.Error("persisting forfeit",
			slog.String("roomID", g.RoomID),
			slog.String("error", err.Error()))
		return
	}
	co.broadcastUpdate(ctx, g)
	co.finishGame(ctx, g, winnerID, false, "opponent left the game")
}

// withdrawFromPool removes the given users from the matchmaking pool and, if
// anything changed, re-broadcasts the available-players list.
func (co *Coordinator) withdrawFromPool(ctx context.Context, userIDs ...string) {
	changed := false
	for _, id := range userIDs {
		if id != "" && co.pool.Remove(id) {
			changed = true
		}
	}
	if changed {
		co.fanoutAvailablePlayers(ctx)
	}
}

// sendFriendList pushes userID's annotated friend list to c.
func (co *Coordinator) sendFriendList(ctx context.Context, userID string, c *Client) {
	friends, err := co.friends.ListFriends(ctx, userID)
	if err != nil {
		co.logger.Error("listing friends",
			slog.String("userID", userID),
			slog.String("error", err.Error()))
		return
	}
	co.sendEvent(c, EvtFriendList, friendListPayload{Friends: friends})
}

// fanoutPresence tells each of user's online friends that user came online
// or went offline, and refreshes their friend lists.
func (co *Coordinator) fanoutPresence(ctx context.Context, user *model.User, online bool) {
	friends, err := co.friends.ListFriends(ctx, user.ID)
	if err != nil {
		co.logger.Error("listing friends for presence fanout",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()))
		return
	}

	for _, f := range friends {
		c, ok := co.registry.Lookup(f.ID)
		if !ok {
			continue
		}
		co.sendEvent(c, EvtFriendStatus, friendStatusPayload{
			UserID:   user.ID,
			Username: user.Username,
			Online:   online,
		})
		co.sendFriendList(ctx, f.ID, c)
	}
}

// availablePlayersFor builds the ready-pool listing as seen by one viewer.
// Each viewer sees the pool without themselves.
func (co *Coordinator) availablePlayersFor(ctx context.Context, viewerID string) []model.PublicUser {
	players := []model.PublicUser{}
	for _, id := range co.pool.ListExcluding(viewerID) {
		u, err := co.users.GetByID(ctx, id)
		if err != nil {
			// A deleted account lingering in the pool; skip it.
			continue
		}
		players = append(players, model.PublicUser{ID: u.ID, Username: u.Username})
	}
	return players
}

// sendAvailablePlayers pushes the ready-pool listing to a single user.
func (co *Coordinator) sendAvailablePlayers(ctx context.Context, userID string, c *Client) {
	co.sendEvent(c, EvtAvailablePlayers, availablePlayersPayload{
		Players: co.availablePlayersFor(ctx, userID),
	})
}

// fanoutAvailablePlayers re-sends the pool listing to every connected user.
func (co *Coordinator) fanoutAvailablePlayers(ctx context.Context) {
	for _, userID := range co.registry.OnlineUsers() {
		if c, ok := co.registry.Lookup(userID); ok {
			co.sendAvailablePlayers(ctx, userID, c)
		}
	}
}

// sendCommandError maps a service-layer failure onto a client error event.
// Application errors carry a safe message; anything else is logged and
// reported generically.
func (co *Coordinator) sendCommandError(c *Client, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		co.sendError(c, appErr.Message)
		return
	}
	co.logger.Error("command failed", slog.String("error", err.Error()))
	co.sendError(c, "internal error")
}
