package handler

import "github.com/rougue1/tictactoe-server/internal/model"

// Realtime is the slice of the websocket coordinator the REST endpoints
// need: pushing room activity to subscribed sockets and mirroring the
// matchmaking commands. *ws.Coordinator implements it; tests substitute a
// fake.
type Realtime interface {
	NotifyRoomJoined(g *model.Game)
	MarkReady(userID string)
	MarkUnready(userID string)
	AvailablePlayers(viewerID string) []model.PublicUser
	Challenge(challengerID, opponentID string) (*model.Game, error)
}

// FriendNotifier delivers friend-graph events to connected users.
type FriendNotifier interface {
	NotifyFriendRequest(addresseeID string, req model.FriendRequest)
	NotifyFriendResponse(requesterID, responderID, requestID string, accepted bool)
	NotifyFriendListChanged(userIDs ...string)
}
