// Package server wires the application together: database, services, the
// websocket coordinator, and the route table. main.go stays minimal; every
// dependency is assembled here.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rougue1/tictactoe-server/internal/auth"
	"github.com/rougue1/tictactoe-server/internal/handler"
	"github.com/rougue1/tictactoe-server/internal/middleware"
	sqliteRepo "github.com/rougue1/tictactoe-server/internal/repository/sqlite"
	"github.com/rougue1/tictactoe-server/internal/service"
	"github.com/rougue1/tictactoe-server/internal/ws"
)

// Config holds server configuration.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
}

// Server owns the HTTP router, the coordinator, and the database connection.
// Start runs until a shutdown signal arrives, then closes everything in
// order: HTTP first, then the coordinator loop, then the database.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	coord  *ws.Coordinator
}

// New assembles the full dependency chain:
// database → repositories → services → coordinator → handlers → routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring tokens: %w", err)
	}

	authSvc := service.NewAuthService(db.Users(), tokens, auth.NewPasswordService(), logger)
	roomSvc := service.NewRoomService(db.Games(), db.Users(), logger)
	friendSvc := service.NewFriendService(db.Friendships(), db.Users(), logger)

	registry := ws.NewRegistry()
	friendSvc.SetPresence(registry)
	coord := ws.NewCoordinator(registry, authSvc, roomSvc, friendSvc, db.Games(), db.Users(), logger)

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		coord:  coord,
	}
	s.setupRoutes(tokens, authSvc, roomSvc, friendSvc)

	return s, nil
}

func (s *Server) setupRoutes(
	tokens *auth.TokenService,
	authSvc *service.AuthService,
	roomSvc *service.RoomService,
	friendSvc *service.FriendService,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	authHandler := handler.NewAuthHandler(authSvc, s.logger)
	roomHandler := handler.NewRoomHandler(roomSvc, s.coord, s.logger)
	friendHandler := handler.NewFriendHandler(friendSvc, s.coord, s.logger)
	wsHandler := ws.NewHandler(s.coord, s.logger)

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Get("/scoreboard", authHandler.HandleScoreboard)
		r.Get("/rooms", roomHandler.HandleList)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/auth/me", authHandler.HandleMe)

			r.Post("/rooms", roomHandler.HandleCreate)
			r.Get("/rooms/{roomID}", roomHandler.HandleGet)
			r.Post("/rooms/{roomID}/join", roomHandler.HandleJoin)

			r.Post("/play/ready", roomHandler.HandleReady)
			r.Post("/play/unready", roomHandler.HandleUnready)
			r.Get("/play/available", roomHandler.HandleAvailable)
			r.Post("/play/challenge", roomHandler.HandleChallenge)

			r.Get("/friends", friendHandler.HandleList)
			r.Get("/friends/requests", friendHandler.HandleRequests)
			r.Post("/friends/requests", friendHandler.HandleSendRequest)
			r.Post("/friends/requests/{requestID}", friendHandler.HandleRespond)
			r.Get("/users/search", friendHandler.HandleSearch)
		})
	})

	// The socket authenticates itself with the authenticate command, so the
	// endpoint carries no HTTP auth.
	s.router.Handle("/ws", wsHandler)
}

// Start runs the coordinator and the HTTP server, blocking until a shutdown
// signal or a fatal server error.
func (s *Server) Start() error {
	defer s.db.Close()

	coordCtx, stopCoord := context.WithCancel(context.Background())
	defer stopCoord()
	go s.coord.Run(coordCtx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
		// No WriteTimeout: it would sever long-lived websocket
		// connections mid-session.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
