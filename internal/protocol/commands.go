package protocol

import "encoding/json"

// Command is an outbound client message. Commands marshal to a flat JSON
// object with a "type" discriminant, mirroring the inbound event shape.
type Command struct {
	Type string `json:"type"`

	// init
	JWT      string `json:"jwt,omitempty"`
	ClientID string `json:"clientId,omitempty"`

	// find_match
	Mode       string `json:"mode,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`

	// make_move
	Column *int `json:"column,omitempty"`

	// watch_game / leave_spectate
	GameID string `json:"gameId,omitempty"`

	// rematch_response
	Response string `json:"response,omitempty"`
}

// Encode marshals the command for the wire.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Game modes accepted by find_match.
const (
	ModePvP = "pvp"
	ModeBot = "bot"
)

// Bot difficulties accepted by find_match in bot mode.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Rematch responses accepted by rematch_response.
const (
	RematchAccept  = "accept"
	RematchDecline = "decline"
)

// InitCommand authenticates the connection. It must be the first frame sent
// after the websocket opens; clientID lets the server re-bind a previous
// session to the fresh connection.
func InitCommand(jwt, clientID string) Command {
	return Command{Type: "init", JWT: jwt, ClientID: clientID}
}

// FindMatchCommand requests matchmaking. Difficulty is ignored by the server
// unless mode is ModeBot.
func FindMatchCommand(mode, difficulty string) Command {
	cmd := Command{Type: "find_match", Mode: mode}
	if mode == ModeBot {
		cmd.Difficulty = difficulty
	}
	return cmd
}

// CancelSearchCommand withdraws a pending matchmaking request.
func CancelSearchCommand() Command {
	return Command{Type: "cancel_search"}
}

// MakeMoveCommand drops a disc into the given column (0..6).
func MakeMoveCommand(column int) Command {
	return Command{Type: "make_move", Column: &column}
}

// AbandonGameCommand forfeits the current game.
func AbandonGameCommand() Command {
	return Command{Type: "abandon_game"}
}

// WatchGameCommand joins a running game as a spectator.
func WatchGameCommand(gameID string) Command {
	return Command{Type: "watch_game", GameID: gameID}
}

// LeaveSpectateCommand leaves the spectated game.
func LeaveSpectateCommand(gameID string) Command {
	return Command{Type: "leave_spectate", GameID: gameID}
}

// RequestRematchCommand asks the opponent for a rematch after game over.
func RequestRematchCommand() Command {
	return Command{Type: "request_rematch"}
}

// RematchResponseCommand answers an opponent's rematch request.
func RematchResponseCommand(accept bool) Command {
	resp := RematchDecline
	if accept {
		resp = RematchAccept
	}
	return Command{Type: "rematch_response", Response: resp}
}
