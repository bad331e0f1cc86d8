package game

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"connect4r/internal/board"
	"connect4r/internal/broadcast"
	"connect4r/internal/metrics"
	"connect4r/internal/models"
	"connect4r/internal/ranking"
	"connect4r/internal/repository"
)

var (
	ErrGameNotFound  = repository.ErrGameNotFound
	ErrNotYourTurn   = errors.New("not your turn")
	ErrGameNotActive = errors.New("game is not in progress")
)

// IsIllegalMove reports whether err rejects a move without touching state.
func IsIllegalMove(err error) bool {
	return errors.Is(err, ErrNotYourTurn) ||
		errors.Is(err, ErrGameNotActive) ||
		errors.Is(err, board.ErrColumnFull) ||
		errors.Is(err, board.ErrInvalidColumn) ||
		errors.Is(err, board.ErrInvalidDirection)
}

// MoveResult is the record after a move together with the move itself.
type MoveResult struct {
	Game *models.Game `json:"game"`
	Move models.Move  `json:"move"`
}

// Service applies moves and rotations to stored games
type Service struct {
	repo      *repository.Repository
	publisher broadcast.Publisher
	rankings  ranking.Recorder
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a new game service
func NewService(repo *repository.Repository, publisher broadcast.Publisher, rankings ranking.Recorder, opts ...Option) *Service {
	s := &Service{repo: repo, publisher: publisher, rankings: rankings}
	for _, opt := range opts {
		opt(s)
	}
	if s.rankings == nil {
		s.rankings = ranking.NopRecorder{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	return s
}

// GetState returns the current record of gameID.
func (s *Service) GetState(ctx context.Context, gameID string) (*models.Game, error) {
	if err := models.RequireFields("game_id", gameID); err != nil {
		return nil, err
	}
	return s.repo.Game(ctx, gameID)
}

// MakeMove drops the player's stone into column.
func (s *Service) MakeMove(ctx context.Context, gameID, playerID string, column int) (*MoveResult, error) {
	if err := models.RequireFields("game_id", gameID, "player_id", playerID); err != nil {
		return nil, err
	}

	var move models.Move
	game, err := s.repo.UpdateGame(ctx, gameID, func(g *models.Game) error {
		color, err := turnOf(g, playerID)
		if err != nil {
			return err
		}
		row, err := g.Board.Place(column, color)
		if err != nil {
			return err
		}
		col := column
		move = models.Move{Column: &col, Row: &row, Color: color, PlayerID: playerID}

		if g.Board.CheckWin(row, column, color) {
			g.Status = models.StatusWon
			g.Winner = color
		} else {
			advance(g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Moves.WithLabelValues("drop").Inc()
	s.afterMove(ctx, game, move)
	return &MoveResult{Game: game, Move: move}, nil
}

// RotateBoard turns the board a quarter in direction and lets the stones
// fall. Any four-in-a-row on the settled board ends the game.
func (s *Service) RotateBoard(ctx context.Context, gameID, playerID, direction string) (*MoveResult, error) {
	if err := models.RequireFields("game_id", gameID, "player_id", playerID, "direction", direction); err != nil {
		return nil, err
	}
	dir, err := board.ParseDirection(direction)
	if err != nil {
		return nil, err
	}

	var move models.Move
	game, err := s.repo.UpdateGame(ctx, gameID, func(g *models.Game) error {
		color, err := turnOf(g, playerID)
		if err != nil {
			return err
		}
		g.Board = g.Board.Rotate(dir).Settle()
		move = models.Move{Color: color, PlayerID: playerID, Rotated: true, Direction: dir}

		if winner, ok := g.Board.FindWinner(); ok {
			g.Status = models.StatusWon
			g.Winner = winner
		} else {
			advance(g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Moves.WithLabelValues("rotate").Inc()
	s.afterMove(ctx, game, move)
	return &MoveResult{Game: game, Move: move}, nil
}

// turnOf returns the mover's color if playerID may move now.
func turnOf(g *models.Game, playerID string) (board.Color, error) {
	if g.Status.Finished() {
		return board.Empty, fmt.Errorf("%w: game is over (%s)", ErrGameNotActive, g.Status)
	}
	if g.Status != models.StatusPlaying {
		return board.Empty, fmt.Errorf("%w: status %s", ErrGameNotActive, g.Status)
	}
	color := g.ColorOf(playerID)
	if color == board.Empty || color != g.CurrentPlayer {
		return board.Empty, ErrNotYourTurn
	}
	return color, nil
}

// advance ends the game in a draw or hands the turn over. currentPlayer is
// left alone once the game is over.
func advance(g *models.Game) {
	if g.Board.CheckDraw() {
		g.Status = models.StatusDraw
		return
	}
	g.CurrentPlayer = g.CurrentPlayer.Opponent()
}

func (s *Service) afterMove(ctx context.Context, g *models.Game, move models.Move) {
	if err := s.publisher.Publish(ctx, g.ID, models.EventGameMove, models.GameMoveEvent{Game: g, Move: move}); err != nil {
		s.log.Warnw("publish failed", "game_id", g.ID, "event", models.EventGameMove, "error", err)
	}

	switch g.Status {
	case models.StatusWon:
		s.metrics.GamesFinished.WithLabelValues(string(models.StatusWon)).Inc()
		winner, _ := g.PlayerByColor(g.Winner)
		s.log.Infow("game won", "game_id", g.ID, "winner", winner.ID, "color", g.Winner)
		if err := s.rankings.RecordWin(ctx, winner.Name); err != nil {
			s.log.Errorw("ranking update failed", "game_id", g.ID, "player", winner.Name, "error", err)
		}
	case models.StatusDraw:
		s.metrics.GamesFinished.WithLabelValues(string(models.StatusDraw)).Inc()
		s.log.Infow("game drawn", "game_id", g.ID)
	}
}
