package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/auth"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/service"
)

// FriendHandler serves the social endpoints: search, the friend list, and
// the request/response flow.
type FriendHandler struct {
	friends  *service.FriendService
	notifier FriendNotifier
	logger   *slog.Logger
}

func NewFriendHandler(friends *service.FriendService, notifier FriendNotifier, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, notifier: notifier, logger: logger}
}

type sendRequestBody struct {
	AddresseeID string `json:"addresseeId"`
}

type respondRequestBody struct {
	Accept bool `json:"accept"`
}

// HandleList returns the caller's friends with live online flags.
//
// HTTP: GET /api/friends
func (h *FriendHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	friends, err := h.friends.ListFriends(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

// HandleRequests returns the requests waiting for the caller's answer.
//
// HTTP: GET /api/friends/requests
func (h *FriendHandler) HandleRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	reqs, err := h.friends.PendingRequests(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// HandleSearch finds users by username fragment.
//
// HTTP: GET /api/users/search?q=...
func (h *FriendHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	users, err := h.friends.SearchUsers(r.Context(), r.URL.Query().Get("q"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleSendRequest sends a friend request and pushes it to the addressee's
// socket if they are online.
//
// HTTP: POST /api/friends/requests
func (h *FriendHandler) HandleSendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var body sendRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.AddresseeID == "" {
		writeError(w, apperror.ValidationFailed("addresseeId", "addresseeId is required"))
		return
	}

	f, requester, err := h.friends.SendRequest(r.Context(), userID, body.AddresseeID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.notifier.NotifyFriendRequest(f.AddresseeID, model.FriendRequest{
		RequestID:         f.ID,
		RequesterID:       requester.ID,
		RequesterUsername: requester.Username,
	})

	writeJSON(w, http.StatusCreated, f)
}

// HandleRespond accepts or declines a pending request, then notifies the
// requester and refreshes both friend lists.
//
// HTTP: POST /api/friends/requests/{requestID}
func (h *FriendHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var body respondRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	f, err := h.friends.Respond(r.Context(), userID, chi.URLParam(r, "requestID"), body.Accept)
	if err != nil {
		writeError(w, err)
		return
	}

	h.notifier.NotifyFriendResponse(f.RequesterID, f.AddresseeID, f.ID, body.Accept)
	if body.Accept {
		h.notifier.NotifyFriendListChanged(f.RequesterID, f.AddresseeID)
	}

	writeJSON(w, http.StatusOK, f)
}
