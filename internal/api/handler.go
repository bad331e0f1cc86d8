package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"connect4r/internal/game"
	"connect4r/internal/matchmaking"
	"connect4r/internal/models"
	"connect4r/internal/ranking"
	"connect4r/internal/store"
)

const defaultRankingLimit = 10

// Handler serves the JSON game API.
type Handler struct {
	matches  *matchmaking.Coordinator
	games    *game.Service
	rankings ranking.Recorder
	log      *zap.SugaredLogger
}

// NewHandler creates a new handler
func NewHandler(matches *matchmaking.Coordinator, games *game.Service, rankings ranking.Recorder, log *zap.SugaredLogger) *Handler {
	if rankings == nil {
		rankings = ranking.NopRecorder{}
	}
	return &Handler{matches: matches, games: games, rankings: rankings, log: log}
}

// RegisterRoutes sets up the routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/game/find-match", h.handleFindMatch)
	mux.HandleFunc("POST /api/game/ready-match", h.handleReadyMatch)
	mux.HandleFunc("POST /api/game/confirm-match", h.handleConfirmMatch)
	mux.HandleFunc("POST /api/game/make-move", h.handleMakeMove)
	mux.HandleFunc("POST /api/game/rotate-board", h.handleRotateBoard)
	mux.HandleFunc("GET /api/game/state", h.handleGetState)
	mux.HandleFunc("POST /api/game/leave", h.handleLeave)
	mux.HandleFunc("GET /api/ranking", h.handleRanking)
	mux.HandleFunc("GET /health", h.handleHealth)
}

type request struct {
	GameID       string `json:"game_id"`
	PlayerID     string `json:"player_id"`
	PlayerName   string `json:"player_name"`
	OpponentID   string `json:"opponent_id"`
	OpponentName string `json:"opponent_name"`
	Column       *int   `json:"column"`
	Direction    string `json:"direction"`
}

func decode(r *http.Request) (*request, error) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &models.ValidationError{Msg: "invalid request body"}
	}
	return &req, nil
}

func (h *Handler) handleFindMatch(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.matches.FindMatch(r.Context(), req.PlayerID, req.PlayerName)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"status":        res.Status,
		"game_id":       res.GameID,
		"player_id":     res.PlayerID,
		"opponent_id":   res.OpponentID,
		"opponent_name": res.OpponentName,
	})
}

func (h *Handler) handleReadyMatch(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	g, err := h.matches.ReadyMatch(r.Context(), matchmaking.ReadyRequest{
		GameID:       req.GameID,
		PlayerID:     req.PlayerID,
		PlayerName:   req.PlayerName,
		OpponentID:   req.OpponentID,
		OpponentName: req.OpponentName,
	})
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.log.Debugw("ready-match abandoned by client", "game_id", req.GameID, "error", err)
		h.respondJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"status":  "timeout",
			"message": "request cancelled before the opponent confirmed",
		})
	case errors.Is(err, matchmaking.ErrRendezvousTimeout), errors.Is(err, matchmaking.ErrMatchCancelled):
		h.respondJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"status":  "timeout",
			"message": err.Error(),
		})
	case err != nil:
		h.respondError(w, err)
	default:
		h.respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"status":  g.Status,
			"game":    g,
		})
	}
}

func (h *Handler) handleConfirmMatch(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.matches.ConfirmMatch(r.Context(), req.GameID, req.PlayerID); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleMakeMove(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if req.Column == nil {
		h.respondError(w, models.Missing("column"))
		return
	}
	res, err := h.games.MakeMove(r.Context(), req.GameID, req.PlayerID, *req.Column)
	h.respondMove(w, res, err)
}

func (h *Handler) handleRotateBoard(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.games.RotateBoard(r.Context(), req.GameID, req.PlayerID, req.Direction)
	h.respondMove(w, res, err)
}

func (h *Handler) respondMove(w http.ResponseWriter, res *game.MoveResult, err error) {
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"game":    res.Game,
		"move":    res.Move,
	})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	g, err := h.games.GetState(r.Context(), r.URL.Query().Get("game_id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"success": true, "game": g})
}

// handleLeave always reports success; cleanup failures are logged by the
// coordinator.
func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req request
	_ = json.NewDecoder(r.Body).Decode(&req)
	h.matches.Leave(context.WithoutCancel(r.Context()), req.GameID, req.PlayerID)
	h.respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	limit := defaultRankingLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			h.respondError(w, &models.ValidationError{Msg: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}
	rows, err := h.rankings.Top(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if rows == nil {
		rows = []ranking.PlayerRanking{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"success": true, "rankings": rows})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, matchmaking.ErrGameExists):
		return http.StatusConflict
	case game.IsIllegalMove(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		h.log.Warnw("store unavailable", "error", err)
		msg = "game store is temporarily unavailable, try again"
	case http.StatusInternalServerError:
		h.log.Errorw("request failed", "error", err)
		msg = "internal error"
	}
	h.respondJSON(w, status, map[string]any{"success": false, "message": msg})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debugw("write response", "error", err)
	}
}

// CORSMiddleware allows browser clients served from origin.
func CORSMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
