package models

// Event names published on a game's channel.
const (
	EventTentativeMatch = "tentative-match"
	EventGameStart      = "game-start"
	EventGameMove       = "game-move"
	EventPlayerLeft     = "player-left"
)

type TentativeMatchEvent struct {
	GameID     string `json:"game_id"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

type GameStartEvent struct {
	Game *Game `json:"game"`
}

// GameMoveEvent carries the full record plus the move that produced it.
type GameMoveEvent struct {
	Game *Game `json:"game"`
	Move
}

type PlayerLeftEvent struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
}
