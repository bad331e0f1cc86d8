package htmx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"connect4r/internal/broadcast"
	"connect4r/internal/game"
	"connect4r/internal/models"
)

const sseBuffer = 10

// Handler serves a read-only spectator board with SSE for real-time updates.
type Handler struct {
	gameService *game.Service
	hub         *broadcast.Hub
	log         *zap.SugaredLogger
}

// NewHandler creates a new HTMX handler.
func NewHandler(gameService *game.Service, hub *broadcast.Hub, log *zap.SugaredLogger) *Handler {
	return &Handler{
		gameService: gameService,
		hub:         hub,
		log:         log,
	}
}

// RegisterRoutes sets up the HTMX routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /htmx/game/{gameID}", h.handleGetGame)
	mux.HandleFunc("GET /htmx/sse/{gameID}", h.handleSSE)
}

func (h *Handler) handleGetGame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	g, err := h.gameService.GetState(r.Context(), r.PathValue("gameID"))
	if err != nil {
		if !errors.Is(err, game.ErrGameNotFound) {
			h.log.Warnw("load game for spectator", "game_id", r.PathValue("gameID"), "error", err)
			err = errors.New("game unavailable")
		}
		ErrorStatus(err.Error()).Render(r.Context(), w)
		return
	}
	GameWrapper(g).Render(r.Context(), w)
}

func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan *broadcast.Envelope, sseBuffer)
	h.hub.RegisterSSE(gameID, ch)
	defer h.hub.UnregisterSSE(gameID, ch)
	h.log.Debugw("sse subscribed", "game_id", gameID, "subscribers", h.hub.Subscribers(gameID))

	// Send initial state
	if g, err := h.gameService.GetState(r.Context(), gameID); err == nil {
		writeEvent(w, renderToString(r.Context(), GameContent(g)))
		flusher.Flush()
	}
	for {
		select {
		case env := <-ch:
			writeEvent(w, h.renderEnvelope(r.Context(), env))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// renderEnvelope turns an event into board HTML. The stored record is
// re-read so every event kind renders the same way.
func (h *Handler) renderEnvelope(ctx context.Context, env *broadcast.Envelope) string {
	if env.Event == models.EventPlayerLeft {
		return renderToString(ctx, ErrorStatus("a player left the game"))
	}
	g, err := h.gameService.GetState(ctx, env.GameID)
	if err != nil {
		return renderToString(ctx, ErrorStatus("game is no longer available"))
	}
	return renderToString(ctx, GameContent(g))
}

func writeEvent(w http.ResponseWriter, html string) {
	fmt.Fprintf(w, "event: game-update\ndata: %s\n\n", strings.ReplaceAll(html, "\n", ""))
}

func renderToString(ctx context.Context, component templ.Component) string {
	var buf bytes.Buffer
	component.Render(ctx, &buf)
	return buf.String()
}
