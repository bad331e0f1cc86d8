package ws

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"connect4r/internal/broadcast"
	"connect4r/internal/game"
)

// EventGameState is sent once on connect with the current record.
const EventGameState = "game-state"

// Handler handles WebSocket connections for real-time game updates.
// Connections only receive; moves go through the JSON API.
type Handler struct {
	gameService *game.Service
	hub         *broadcast.Hub
	upgrader    websocket.Upgrader
	log         *zap.SugaredLogger
}

// NewHandler creates a new WebSocket handler. origin "*" accepts any origin.
func NewHandler(gameService *game.Service, hub *broadcast.Hub, origin string, log *zap.SugaredLogger) *Handler {
	return &Handler{
		gameService: gameService,
		hub:         hub,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return origin == "*" || r.Header.Get("Origin") == origin
			},
		},
	}
}

// RegisterRoutes sets up the WebSocket routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/{gameID}", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debugw("websocket upgrade failed", "game_id", gameID, "error", err)
		return
	}
	defer conn.Close()

	client := h.hub.RegisterWS(gameID, conn)
	defer h.hub.UnregisterWS(gameID, client)
	h.log.Debugw("websocket subscribed", "game_id", gameID, "subscribers", h.hub.Subscribers(gameID))

	// Send current game state
	g, err := h.gameService.GetState(r.Context(), gameID)
	switch {
	case err == nil:
		if env, err := broadcast.NewEnvelope(gameID, EventGameState, g); err == nil {
			if msg, err := env.Frame(); err == nil {
				client.Send(msg)
			}
		}
	case errors.Is(err, game.ErrGameNotFound):
	default:
		h.log.Warnw("load game for websocket", "game_id", gameID, "error", err)
	}

	// drain until the peer goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
