package models

import (
	"time"

	"connect4r/internal/board"
)

// Status is the lifecycle state of a game record.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusTentative Status = "tentative"
	StatusPlaying   Status = "playing"
	StatusWon       Status = "won"
	StatusDraw      Status = "draw"
)

// Finished reports whether no further moves are accepted.
func (s Status) Finished() bool {
	return s == StatusWon || s == StatusDraw
}

// Player is one of the two participants of a game.
type Player struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Color board.Color `json:"color"`
}

// Game is the authoritative record of a match.
type Game struct {
	ID            string            `json:"id"`
	Players       map[string]Player `json:"players"`
	Board         board.Board       `json:"board"`
	CurrentPlayer board.Color       `json:"current_player"`
	Status        Status            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	Winner        board.Color       `json:"winner,omitempty"`
}

// NewGame creates a tentative game between two players. red moves first.
func NewGame(id string, red, yellow Player, now time.Time) *Game {
	red.Color = board.Red
	yellow.Color = board.Yellow
	return &Game{
		ID: id,
		Players: map[string]Player{
			red.ID:    red,
			yellow.ID: yellow,
		},
		Board:         board.New(),
		CurrentPlayer: board.Red,
		Status:        StatusTentative,
		CreatedAt:     now,
	}
}

// ColorOf returns the color of playerID, or board.Empty if the player is not
// part of the game.
func (g *Game) ColorOf(playerID string) board.Color {
	if p, ok := g.Players[playerID]; ok {
		return p.Color
	}
	return board.Empty
}

// PlayerByColor returns the participant holding color c.
func (g *Game) PlayerByColor(c board.Color) (Player, bool) {
	for _, p := range g.Players {
		if p.Color == c {
			return p, true
		}
	}
	return Player{}, false
}

// WaitingEntry is a player sitting in the matchmaking queue.
type WaitingEntry struct {
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	GameID     string    `json:"game_id"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Move describes a drop or a rotation applied to a game.
type Move struct {
	Column    *int            `json:"column"`
	Row       *int            `json:"row"`
	Color     board.Color     `json:"color"`
	PlayerID  string          `json:"player_id"`
	Rotated   bool            `json:"rotated"`
	Direction board.Direction `json:"direction,omitempty"`
}
