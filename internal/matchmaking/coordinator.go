// Package matchmaking pairs players through the shared waiting queue and runs
// the confirmation handshake that turns a tentative pairing into a game.
//
// The proposer (the player who found a waiter) and the confirmer (the
// waiter) are separate requests that share nothing but the store, so the
// handshake is a bounded poll on a confirmation flag:
//
//	tentative --flag seen--> playing
//	tentative --attempts exhausted--> deleted (timeout)
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"connect4r/internal/broadcast"
	"connect4r/internal/metrics"
	"connect4r/internal/models"
	"connect4r/internal/repository"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollAttempts = 10
	// MaxWaitAge is how long a queue entry stays eligible for pairing.
	MaxWaitAge        = 30 * time.Second
	DefaultPlayerName = "Player"
)

var (
	ErrRendezvousTimeout = errors.New("opponent did not confirm the match in time")
	ErrMatchCancelled    = errors.New("match was cancelled before it started")
	ErrGameExists        = repository.ErrGameExists
)

// FindResult is the outcome of a matchmaking request.
type FindResult struct {
	Status       models.Status `json:"status"`
	GameID       string        `json:"game_id"`
	PlayerID     string        `json:"player_id"`
	OpponentID   string        `json:"opponent_id,omitempty"`
	OpponentName string        `json:"opponent_name,omitempty"`
}

// ReadyRequest is sent by the proposer after FindMatch returned tentative.
type ReadyRequest struct {
	GameID       string
	PlayerID     string
	PlayerName   string
	OpponentID   string
	OpponentName string
}

// Coordinator runs the matchmaking protocol against the shared store.
type Coordinator struct {
	repo      *repository.Repository
	publisher broadcast.Publisher
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
	clock     clock.Clock
	newID     func() string

	pollInterval time.Duration
	pollAttempts int

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Coordinator)

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithRand sets the source of the color coin flip.
func WithRand(rng *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = rng }
}

func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Coordinator) {
		c.pollInterval = interval
		c.pollAttempts = attempts
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Coordinator) { c.log = log }
}

// NewCoordinator creates a coordinator with production defaults.
func NewCoordinator(repo *repository.Repository, publisher broadcast.Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:         repo,
		publisher:    publisher,
		clock:        clock.New(),
		newID:        uuid.NewString,
		pollInterval: DefaultPollInterval,
		pollAttempts: DefaultPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	return c
}

// FindMatch pairs playerID with the oldest live waiter, or queues it.
func (c *Coordinator) FindMatch(ctx context.Context, playerID, playerName string) (*FindResult, error) {
	if err := models.RequireFields("player_id", playerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(playerName) == "" {
		playerName = DefaultPlayerName
	}

	now := c.clock.Now()
	gameID := c.newID()
	var result *FindResult

	err := c.repo.UpdateQueue(ctx, func(queue []models.WaitingEntry) ([]models.WaitingEntry, error) {
		queue = withoutPlayer(pruneExpired(queue, now), playerID)
		if len(queue) > 0 {
			opponent := queue[0]
			result = &FindResult{
				Status:       models.StatusTentative,
				GameID:       opponent.GameID,
				PlayerID:     playerID,
				OpponentID:   opponent.PlayerID,
				OpponentName: opponent.PlayerName,
			}
			return queue[1:], nil
		}
		result = &FindResult{
			Status:   models.StatusWaiting,
			GameID:   gameID,
			PlayerID: playerID,
		}
		return append(queue, models.WaitingEntry{
			PlayerID:   playerID,
			PlayerName: playerName,
			GameID:     gameID,
			JoinedAt:   now,
		}), nil
	})
	if err != nil {
		return nil, fmt.Errorf("update waiting queue: %w", err)
	}

	if result.Status == models.StatusTentative {
		c.metrics.MatchesProposed.Inc()
		c.log.Infow("tentative match", "game_id", result.GameID, "player_id", playerID, "opponent_id", result.OpponentID)
	} else {
		c.metrics.QueueJoins.Inc()
		c.log.Infow("player queued", "game_id", result.GameID, "player_id", playerID)
	}
	return result, nil
}

// ReadyMatch creates the tentative game, notifies the waiter and waits for
// its confirmation. It returns the started game or ErrRendezvousTimeout, in
// which case the game record no longer exists.
func (c *Coordinator) ReadyMatch(ctx context.Context, req ReadyRequest) (*models.Game, error) {
	err := models.RequireFields(
		"game_id", req.GameID,
		"player_id", req.PlayerID,
		"player_name", req.PlayerName,
		"opponent_id", req.OpponentID,
		"opponent_name", req.OpponentName,
	)
	if err != nil {
		return nil, err
	}

	red := models.Player{ID: req.OpponentID, Name: req.OpponentName}
	yellow := models.Player{ID: req.PlayerID, Name: req.PlayerName}
	if c.coinFlip() {
		red, yellow = yellow, red
	}
	game := models.NewGame(req.GameID, red, yellow, c.clock.Now())
	if err := c.repo.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("create tentative game: %w", err)
	}

	c.publish(ctx, req.GameID, models.EventTentativeMatch, models.TentativeMatchEvent{
		GameID:     req.GameID,
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
	})

	confirmed, err := c.awaitConfirmation(ctx, req.GameID, req.OpponentID)
	if err != nil {
		c.discard(ctx, req.GameID)
		return nil, err
	}
	if !confirmed {
		c.discard(ctx, req.GameID)
		c.metrics.MatchTimeouts.Inc()
		c.log.Infow("rendezvous timed out", "game_id", req.GameID, "opponent_id", req.OpponentID)
		return nil, ErrRendezvousTimeout
	}

	err = c.repo.UpdateQueue(ctx, func(queue []models.WaitingEntry) ([]models.WaitingEntry, error) {
		return withoutPlayer(withoutPlayer(queue, req.PlayerID), req.OpponentID), nil
	})
	if err != nil {
		c.discard(ctx, req.GameID)
		return nil, fmt.Errorf("remove matched players from queue: %w", err)
	}

	started, err := c.repo.UpdateGame(ctx, req.GameID, func(g *models.Game) error {
		if g.Status != models.StatusTentative {
			return fmt.Errorf("%w: game %s is %s", ErrMatchCancelled, g.ID, g.Status)
		}
		g.Status = models.StatusPlaying
		return nil
	})
	if errors.Is(err, repository.ErrGameNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrMatchCancelled, err)
	}
	if err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}

	c.publish(ctx, req.GameID, models.EventGameStart, models.GameStartEvent{Game: started})
	c.metrics.MatchesStarted.Inc()
	c.log.Infow("game started", "game_id", started.ID, "red", red.ID, "yellow", yellow.ID)
	return started, nil
}

// awaitConfirmation polls for the opponent's flag. A failed read counts as
// "not yet confirmed"; only context cancellation ends the wait early.
func (c *Coordinator) awaitConfirmation(ctx context.Context, gameID, opponentID string) (bool, error) {
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-c.clock.After(c.pollInterval):
		}

		ok, err := c.repo.TakeConfirmation(ctx, gameID, opponentID)
		if err != nil {
			c.log.Warnw("confirmation poll failed", "game_id", gameID, "attempt", attempt, "error", err)
		}
		if ok {
			c.log.Debugw("confirmation received", "game_id", gameID, "attempt", attempt)
			return true, nil
		}
	}
	return false, nil
}

// ConfirmMatch is called by the waiter when it receives tentative-match.
func (c *Coordinator) ConfirmMatch(ctx context.Context, gameID, playerID string) error {
	if err := models.RequireFields("game_id", gameID, "player_id", playerID); err != nil {
		return err
	}
	if err := c.repo.Confirm(ctx, gameID, playerID); err != nil {
		return fmt.Errorf("store confirmation: %w", err)
	}
	c.log.Infow("match confirmed", "game_id", gameID, "player_id", playerID)
	return nil
}

// Leave tears down the player's game, if any, and removes it from the
// queue. Failures are logged and never reach the caller.
func (c *Coordinator) Leave(ctx context.Context, gameID, playerID string) {
	if gameID != "" {
		switch _, err := c.repo.Game(ctx, gameID); {
		case err == nil:
			c.publish(ctx, gameID, models.EventPlayerLeft, models.PlayerLeftEvent{GameID: gameID, PlayerID: playerID})
			if _, err := c.repo.DeleteGame(ctx, gameID); err != nil {
				c.log.Warnw("delete game on leave", "game_id", gameID, "error", err)
			} else {
				c.metrics.PlayersLeft.Inc()
				c.log.Infow("player left game", "game_id", gameID, "player_id", playerID)
			}
		case errors.Is(err, repository.ErrGameNotFound):
		default:
			c.log.Warnw("load game on leave", "game_id", gameID, "error", err)
		}
	}

	if playerID == "" {
		return
	}
	err := c.repo.UpdateQueue(ctx, func(queue []models.WaitingEntry) ([]models.WaitingEntry, error) {
		return withoutPlayer(queue, playerID), nil
	})
	if err != nil {
		c.log.Warnw("remove player from queue", "player_id", playerID, "error", err)
	}
}

// QueueLength counts the players currently eligible for pairing.
func (c *Coordinator) QueueLength(ctx context.Context) (int, error) {
	queue, err := c.repo.Queue(ctx)
	if err != nil {
		return 0, err
	}
	return len(pruneExpired(queue, c.clock.Now())), nil
}

func (c *Coordinator) coinFlip() bool {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.IntN(2) == 1
}

// discard deletes an abandoned game while it is still tentative, even when
// ctx is done.
func (c *Coordinator) discard(ctx context.Context, gameID string) {
	_, err := c.repo.DeleteGameIf(context.WithoutCancel(ctx), gameID, func(g *models.Game) bool {
		return g.Status == models.StatusTentative
	})
	if err != nil {
		c.log.Warnw("discard tentative game", "game_id", gameID, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, gameID, event string, payload any) {
	if err := c.publisher.Publish(ctx, gameID, event, payload); err != nil {
		c.log.Warnw("publish failed", "game_id", gameID, "event", event, "error", err)
	}
}

func pruneExpired(queue []models.WaitingEntry, now time.Time) []models.WaitingEntry {
	live := queue[:0:0]
	for _, e := range queue {
		if now.Sub(e.JoinedAt) < MaxWaitAge {
			live = append(live, e)
		}
	}
	return live
}

func withoutPlayer(queue []models.WaitingEntry, playerID string) []models.WaitingEntry {
	out := queue[:0:0]
	for _, e := range queue {
		if e.PlayerID != playerID {
			out = append(out, e)
		}
	}
	return out
}
