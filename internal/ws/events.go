// Package ws is the realtime layer: one websocket per player, a connection
// registry keyed by user, a ready-to-play matchmaking pool, and a per-room
// broadcast router. All game mutations funnel through the Coordinator's
// single event loop, so no two moves are ever applied concurrently.
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/rougue1/tictactoe-server/internal/model"
)

// Envelope is the wire format in both directions: a type tag and a
// type-specific JSON payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client commands.
const (
	CmdAuthenticate = "authenticate"
	CmdJoinGameRoom = "join_game_room"
	CmdMakeMove     = "make_move"
	CmdLeaveRoom    = "leave_game_room"
	CmdMarkReady    = "mark_ready"
	CmdMarkUnready  = "mark_unready"
	CmdChallenge    = "challenge"
)

// Server events.
const (
	EvtAuthenticated      = "authenticated"
	EvtError              = "error"
	EvtFriendStatus       = "friend_status_update"
	EvtFriendList         = "friend_list_update"
	EvtAvailablePlayers   = "available_players_update"
	EvtGameJoined         = "game_joined"
	EvtGameUpdate         = "game_update"
	EvtGameOver           = "game_over"
	EvtGameInvite         = "game_invite"
	EvtGameStartedDirect  = "game_started_direct"
	EvtFriendReqReceived  = "friend_request_received"
	EvtFriendReqResponded = "friend_request_responded"
)

// Command payloads.

type authenticatePayload struct {
	Token string `json:"token"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type makeMovePayload struct {
	RoomID string `json:"roomId"`
	Index  int    `json:"index"`
}

type challengePayload struct {
	OpponentID string `json:"opponentId"`
}

// Event payloads.

type authenticatedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type friendStatusPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type friendListPayload struct {
	Friends []model.Friend `json:"friends"`
}

type availablePlayersPayload struct {
	Players []model.PublicUser `json:"players"`
}

type gamePayload struct {
	Game *model.GameView `json:"game"`
}

type gameInvitePayload struct {
	FromID       string          `json:"fromUserId"`
	FromUsername string          `json:"fromUsername"`
	Game         *model.GameView `json:"game"`
}

type gameOverPayload struct {
	Game   *model.GameView `json:"game"`
	Winner string          `json:"winner,omitempty"`
	Draw   bool            `json:"draw"`
	Reason string          `json:"reason,omitempty"`
}

type friendRespondedPayload struct {
	RequestID string `json:"requestId"`
	Responder string `json:"responderUsername"`
	Accepted  bool   `json:"accepted"`
}

// marshalEvent builds the wire bytes for one server event. A marshal failure
// here is a programming error in the payload type, so it is returned rather
// than silently dropped.
func marshalEvent(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ws: marshaling %s payload: %w", eventType, err)
	}
	msg, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("ws: marshaling %s envelope: %w", eventType, err)
	}
	return msg, nil
}
