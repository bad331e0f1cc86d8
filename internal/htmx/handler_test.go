package htmx

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"connect4r/internal/board"
	"connect4r/internal/broadcast"
	"connect4r/internal/game"
	"connect4r/internal/models"
	"connect4r/internal/repository"
	"connect4r/internal/store"
)

func setup(t *testing.T) (*httptest.Server, *broadcast.Hub, *repository.Repository) {
	t.Helper()
	log := zap.NewNop().Sugar()
	repo := repository.New(store.NewMemory(nil))
	hub := broadcast.NewHub(log)
	svc := game.NewService(repo, hub, nil)
	mux := http.NewServeMux()
	NewHandler(svc, hub, log).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hub, repo
}

func saveGame(t *testing.T, repo *repository.Repository, name string) *models.Game {
	t.Helper()
	g := models.NewGame("g1", models.Player{ID: "a", Name: name}, models.Player{ID: "b", Name: "Bob"}, time.Now())
	g.Status = models.StatusPlaying
	require.NoError(t, repo.SaveGame(context.Background(), g))
	return g
}

func TestGamePageRendersBoard(t *testing.T) {
	srv, _, repo := setup(t)
	saveGame(t, repo, "<Ann>")

	resp, err := http.Get(srv.URL + "/htmx/game/g1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	html := string(body)
	assert.Contains(t, html, `sse-connect="/htmx/sse/g1"`)
	assert.Equal(t, board.Size*board.Size, strings.Count(html, `class="cell`))
	assert.Contains(t, html, "&lt;Ann&gt; (red)")
	assert.NotContains(t, html, "<Ann>")
}

func TestGamePageUnknownGame(t *testing.T) {
	srv, _, _ := setup(t)
	resp, err := http.Get(srv.URL + "/htmx/game/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "error: game not found")
}

func TestSSEStreamsUpdates(t *testing.T) {
	srv, hub, repo := setup(t)
	g := saveGame(t, repo, "Ann")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/htmx/sse/g1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	nextData := func() string {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				return data
			}
		}
		t.Fatal("stream ended")
		return ""
	}

	assert.Contains(t, nextData(), "to move: Ann (red)")

	_, err = g.Board.Place(3, board.Red)
	require.NoError(t, err)
	g.CurrentPlayer = board.Yellow
	require.NoError(t, repo.SaveGame(context.Background(), g))
	require.NoError(t, hub.Publish(context.Background(), "g1", models.EventGameMove, models.GameMoveEvent{Game: g}))
	update := nextData()
	assert.Contains(t, update, "to move: Bob (yellow)")
	assert.Contains(t, update, `class="cell red"`)

	require.NoError(t, hub.Publish(context.Background(), "g1", models.EventPlayerLeft, models.PlayerLeftEvent{GameID: "g1"}))
	assert.Contains(t, nextData(), "a player left")
}

func TestGameContentMarksStones(t *testing.T) {
	g := models.NewGame("g<1>", models.Player{ID: "a", Name: "Ann"}, models.Player{ID: "b", Name: "Bob"}, time.Now())
	g.Status = models.StatusWon
	g.Winner = board.Yellow
	_, err := g.Board.Place(0, board.Red)
	require.NoError(t, err)
	_, err = g.Board.Place(1, board.Yellow)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, GameContent(g).Render(context.Background(), &sb))
	html := sb.String()
	assert.Equal(t, 1, strings.Count(html, `class="cell red"`))
	assert.Equal(t, 1, strings.Count(html, `class="cell yellow"`))
	assert.Equal(t, board.Size*board.Size-2, strings.Count(html, `class="cell"`))
	assert.Contains(t, html, "&gt; winner: Bob (yellow)")
	assert.Contains(t, html, "session: g&lt;1&gt;")
}
