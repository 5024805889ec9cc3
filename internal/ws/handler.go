package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to websocket connections and hands them to
// the coordinator. Authentication happens after the upgrade, via the
// authenticate command, so the endpoint itself is public.
type Handler struct {
	coord    *Coordinator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(coord *Coordinator, logger *slog.Logger) *Handler {
	return &Handler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser client is served from arbitrary dev origins;
			// identity is established by the JWT, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP implements http.Handler for the /ws endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := newClient(h.coord, conn, h.logger)
	go client.writePump()
	go client.readPump()
}
