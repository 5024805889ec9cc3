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

// RoomHandler serves the room lifecycle endpoints and the REST mirror of
// the matchmaking commands.
type RoomHandler struct {
	rooms    *service.RoomService
	realtime Realtime
	logger   *slog.Logger
}

func NewRoomHandler(rooms *service.RoomService, realtime Realtime, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, realtime: realtime, logger: logger}
}

type createRoomRequest struct {
	Public bool `json:"public"`
}

type challengeRequest struct {
	OpponentID string `json:"opponentId"`
}

// HandleCreate opens a new room with the caller seated as X.
//
// HTTP: POST /api/rooms
func (h *RoomHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	req := createRoomRequest{Public: true}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	g, err := h.rooms.Create(r.Context(), userID, req.Public)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.rooms.View(r.Context(), g, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleList returns all public rooms with an open seat.
//
// HTTP: GET /api/rooms
func (h *RoomHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	games, err := h.rooms.ListPublic(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]*model.GameView, 0, len(games))
	for i := range games {
		view, err := h.rooms.View(r.Context(), &games[i], "")
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleGet returns one room by its code.
//
// HTTP: GET /api/rooms/{roomID}
func (h *RoomHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	g, err := h.rooms.Get(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.rooms.View(r.Context(), g, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleJoin claims the open seat in a room. Idempotent for players already
// seated. On a successful claim the realtime layer tells the room.
//
// HTTP: POST /api/rooms/{roomID}/join
func (h *RoomHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	g, claimed, err := h.rooms.Join(r.Context(), chi.URLParam(r, "roomID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if claimed {
		h.realtime.NotifyRoomJoined(g)
	}

	view, err := h.rooms.View(r.Context(), g, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleReady enters the caller into the matchmaking pool.
//
// HTTP: POST /api/play/ready
func (h *RoomHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	h.realtime.MarkReady(userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleUnready removes the caller from the matchmaking pool.
//
// HTTP: POST /api/play/unready
func (h *RoomHandler) HandleUnready(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	h.realtime.MarkUnready(userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "not ready"})
}

// HandleAvailable lists the matchmaking pool, excluding the caller.
//
// HTTP: GET /api/play/available
func (h *RoomHandler) HandleAvailable(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, h.realtime.AvailablePlayers(userID))
}

// HandleChallenge starts an immediate game against an online opponent.
//
// HTTP: POST /api/play/challenge
func (h *RoomHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.OpponentID == "" {
		writeError(w, apperror.ValidationFailed("opponentId", "opponentId is required"))
		return
	}

	g, err := h.realtime.Challenge(userID, req.OpponentID)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.rooms.View(r.Context(), g, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}
