package handler

import (
	"log/slog"
	"net/http"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/auth"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/service"
)

// AuthHandler serves registration, login, logout, the current-user profile,
// and the scoreboard.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

// HandleRegister creates an account and immediately logs it in.
//
// HTTP: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, authResponse{
		Token: result.Token,
		User:  model.PublicUser{ID: user.ID, Username: user.Username},
	})
}

// HandleLogin verifies credentials and issues a JWT, both in the body and as
// an HttpOnly cookie.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	setTokenCookie(w, result.Token)
	writeJSON(w, http.StatusOK, authResponse{
		Token: result.Token,
		User:  model.PublicUser{ID: result.User.ID, Username: result.User.Username},
	})
}

// HandleLogout clears the token cookie. The JWT itself stays valid until it
// expires; the server keeps no session state to invalidate.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleScoreboard returns the top players by win count. Public.
//
// HTTP: GET /api/scoreboard
func (h *AuthHandler) HandleScoreboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.auth.Scoreboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
