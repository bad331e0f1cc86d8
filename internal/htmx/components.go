package htmx

//go:generate templ generate

import (
	"fmt"

	"connect4r/internal/board"
	"connect4r/internal/models"
)

func statusLine(g *models.Game) string {
	name := func(c board.Color) string {
		if p, ok := g.PlayerByColor(c); ok {
			return fmt.Sprintf("%s (%s)", p.Name, c)
		}
		return string(c)
	}
	switch g.Status {
	case models.StatusWon:
		return "> winner: " + name(g.Winner)
	case models.StatusDraw:
		return "> result: draw"
	case models.StatusPlaying:
		return "> to move: " + name(g.CurrentPlayer)
	default:
		return "> waiting for players..."
	}
}
