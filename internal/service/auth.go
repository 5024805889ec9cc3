// Package service holds the business logic between the HTTP/websocket
// boundary and the repositories. Services validate, orchestrate, and return
// apperror-typed failures; they never touch HTTP status codes or socket
// frames.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/auth"
	"github.com/rougue1/tictactoe-server/internal/model"
	"github.com/rougue1/tictactoe-server/internal/repository"
)

// AuthService handles registration, login, and profile lookups.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a new account. The username must be non-empty and not yet
// taken; the password is stored only as a bcrypt hash.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", apperror.ValidationFailed("password", err.Error()))
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %q: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login verifies the credentials and issues a JWT. A missing user and a
// wrong password produce the same Unauthorized error, so login responses
// don't leak which usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", apperror.Unauthorized("bad username or password"))
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, fmt.Errorf("service/auth: %w", apperror.Unauthorized("bad username or password"))
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID. Used by /auth/me
// after the middleware resolves the token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

// Scoreboard returns the top players by win count.
func (s *AuthService) Scoreboard(ctx context.Context) ([]model.ScoreboardEntry, error) {
	entries, err := s.users.TopByWins(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching scoreboard: %w", err)
	}
	return entries, nil
}

// ValidateToken validates a JWT string and returns the userID it encodes.
// The websocket authenticate command goes through here, so the coordinator
// never handles raw tokens itself.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", apperror.Unauthorized("invalid or expired token"))
	}
	return userID, nil
}
