package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"connect4r/internal/broadcast"
	"connect4r/internal/game"
	"connect4r/internal/matchmaking"
	"connect4r/internal/models"
	"connect4r/internal/ranking"
	"connect4r/internal/repository"
	"connect4r/internal/store"
)

type stubRankings struct {
	ranking.NopRecorder
	rows []ranking.PlayerRanking
	err  error
}

func (s stubRankings) Top(context.Context, int) ([]ranking.PlayerRanking, error) {
	return s.rows, s.err
}

type server struct {
	mux  http.Handler
	repo *repository.Repository
	mem  *store.Memory
}

func newServer(t *testing.T, rankings ranking.Recorder) *server {
	t.Helper()
	log := zap.NewNop().Sugar()
	mem := store.NewMemory(nil)
	repo := repository.New(mem)
	hub := broadcast.NewHub(log)
	matches := matchmaking.NewCoordinator(repo, hub,
		matchmaking.WithLogger(log),
		matchmaking.WithPolling(2*time.Millisecond, 3),
	)
	games := game.NewService(repo, hub, rankings, game.WithLogger(log))

	mux := http.NewServeMux()
	NewHandler(matches, games, rankings, log).RegisterRoutes(mux)
	return &server{mux: CORSMiddleware("*")(mux), repo: repo, mem: mem}
}

func (s *server) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (s *server) startGame(t *testing.T) {
	t.Helper()
	g := models.NewGame("g1", models.Player{ID: "alice", Name: "Alice"}, models.Player{ID: "bob", Name: "Bob"}, time.Now())
	g.Status = models.StatusPlaying
	require.NoError(t, s.repo.SaveGame(context.Background(), g))
}

func TestFindMatchFlow(t *testing.T) {
	s := newServer(t, nil)

	code, body := s.do(t, http.MethodPost, "/api/game/find-match", map[string]string{"player_id": "alice", "player_name": "Alice"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "waiting", body["status"])
	gameID := body["game_id"]

	code, body = s.do(t, http.MethodPost, "/api/game/find-match", map[string]string{"player_id": "bob", "player_name": "Bob"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tentative", body["status"])
	assert.Equal(t, gameID, body["game_id"])
	assert.Equal(t, "alice", body["opponent_id"])
	assert.Equal(t, "Alice", body["opponent_name"])
}

func TestFindMatchMissingPlayer(t *testing.T) {
	s := newServer(t, nil)
	code, body := s.do(t, http.MethodPost, "/api/game/find-match", map[string]string{"player_name": "Alice"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "player_id")
}

func TestMalformedBody(t *testing.T) {
	s := newServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/game/make-move", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadyMatchTimeout(t *testing.T) {
	s := newServer(t, nil)
	code, body := s.do(t, http.MethodPost, "/api/game/ready-match", map[string]string{
		"game_id": "g9", "player_id": "bob", "player_name": "Bob",
		"opponent_id": "alice", "opponent_name": "Alice",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "timeout", body["status"])

	code, _ = s.do(t, http.MethodGet, "/api/game/state?game_id=g9", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReadyMatchExistingGameConflicts(t *testing.T) {
	s := newServer(t, nil)
	s.startGame(t)

	code, body := s.do(t, http.MethodPost, "/api/game/ready-match", map[string]string{
		"game_id": "g1", "player_id": "bob", "player_name": "Bob",
		"opponent_id": "alice", "opponent_name": "Alice",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])

	code, body = s.do(t, http.MethodGet, "/api/game/state?game_id=g1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "playing", body["game"].(map[string]any)["status"])
}

func TestReadyMatchClientGoneIsNotAnError(t *testing.T) {
	s := newServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payload := `{"game_id":"g9","player_id":"bob","player_name":"Bob","opponent_id":"alice","opponent_name":"Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/game/ready-match", bytes.NewBufferString(payload)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "timeout", body["status"])

	_, err := s.repo.Game(context.Background(), "g9")
	assert.ErrorIs(t, err, repository.ErrGameNotFound)
}

func TestConfirmMatch(t *testing.T) {
	s := newServer(t, nil)
	code, body := s.do(t, http.MethodPost, "/api/game/confirm-match", map[string]string{"game_id": "g1", "player_id": "alice"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, _ = s.do(t, http.MethodPost, "/api/game/confirm-match", map[string]string{"game_id": "g1"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMakeMoveAndState(t *testing.T) {
	s := newServer(t, nil)
	s.startGame(t)

	code, body := s.do(t, http.MethodPost, "/api/game/make-move", map[string]any{"game_id": "g1", "player_id": "alice", "column": 2})
	require.Equal(t, http.StatusOK, code)
	move := body["move"].(map[string]any)
	assert.EqualValues(t, 2, move["column"])
	assert.EqualValues(t, 6, move["row"])
	assert.Equal(t, "red", move["color"])

	code, body = s.do(t, http.MethodGet, "/api/game/state?game_id=g1", nil)
	require.Equal(t, http.StatusOK, code)
	g := body["game"].(map[string]any)
	assert.Equal(t, "yellow", g["current_player"])
}

func TestMakeMoveErrors(t *testing.T) {
	s := newServer(t, nil)
	s.startGame(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing column", map[string]any{"game_id": "g1", "player_id": "alice"}, http.StatusBadRequest},
		{"not your turn", map[string]any{"game_id": "g1", "player_id": "bob", "column": 0}, http.StatusBadRequest},
		{"bad column", map[string]any{"game_id": "g1", "player_id": "alice", "column": 9}, http.StatusBadRequest},
		{"unknown game", map[string]any{"game_id": "nope", "player_id": "alice", "column": 0}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, "/api/game/make-move", tt.body)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestRotateBoard(t *testing.T) {
	s := newServer(t, nil)
	s.startGame(t)

	code, body := s.do(t, http.MethodPost, "/api/game/rotate-board", map[string]any{"game_id": "g1", "player_id": "alice", "direction": "left"})
	require.Equal(t, http.StatusOK, code)
	move := body["move"].(map[string]any)
	assert.Equal(t, true, move["rotated"])
	assert.Equal(t, "left", move["direction"])

	code, _ = s.do(t, http.MethodPost, "/api/game/rotate-board", map[string]any{"game_id": "g1", "player_id": "bob", "direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStoreOutageIs503(t *testing.T) {
	s := newServer(t, nil)
	s.mem.SetUnavailable(true)

	code, body := s.do(t, http.MethodGet, "/api/game/state?game_id=g1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body["message"], "unavailable")
}

func TestLeaveAlwaysSucceeds(t *testing.T) {
	s := newServer(t, nil)
	s.startGame(t)

	code, body := s.do(t, http.MethodPost, "/api/game/leave", map[string]string{"game_id": "g1", "player_id": "alice"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	_, err := s.repo.Game(context.Background(), "g1")
	assert.ErrorIs(t, err, repository.ErrGameNotFound)

	code, _ = s.do(t, http.MethodPost, "/api/game/leave", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRanking(t *testing.T) {
	s := newServer(t, stubRankings{rows: []ranking.PlayerRanking{{Name: "Alice", Wins: 3}}})
	code, body := s.do(t, http.MethodGet, "/api/ranking?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	rows := body["rankings"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0].(map[string]any)["name"])

	code, _ = s.do(t, http.MethodGet, "/api/ranking?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	failing := newServer(t, stubRankings{err: errors.New("db down")})
	code, _ = failing.do(t, http.MethodGet, "/api/ranking", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestHealthAndCORS(t *testing.T) {
	s := newServer(t, nil)
	code, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodOptions, "/api/game/find-match", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
