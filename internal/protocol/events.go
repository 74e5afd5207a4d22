// Package protocol defines the wire format of the game server connection:
// inbound server events as a closed tagged union keyed by "type", and the
// outbound command set. One JSON object per websocket text frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind identifies an inbound server event.
type EventKind string

const (
	KindQueueJoined          EventKind = "queue_joined"
	KindQueueTimeout         EventKind = "queue_timeout"
	KindGameStart            EventKind = "game_start"
	KindSpectateStart        EventKind = "spectate_start"
	KindMoveMade             EventKind = "move_made"
	KindGameState            EventKind = "game_state"
	KindGameOver             EventKind = "game_over"
	KindNoActiveGame         EventKind = "no_active_game"
	KindRematchRequest       EventKind = "rematch_request"
	KindRematchAccepted      EventKind = "rematch_accepted"
	KindRematchDeclined      EventKind = "rematch_declined"
	KindRematchTimeout       EventKind = "rematch_timeout"
	KindRematchCancelled     EventKind = "rematch_cancelled"
	KindOpponentDisconnected EventKind = "opponent_disconnected"
	KindOpponentReconnected  EventKind = "opponent_reconnected"
	KindError                EventKind = "error"
)

// ErrUnknownEvent is returned for event kinds outside the closed set.
// Callers drop these frames instead of treating them as fatal so the
// client stays compatible with server-side additions.
var ErrUnknownEvent = errors.New("unknown event type")

// ServerEvent is implemented by every inbound event.
type ServerEvent interface {
	Kind() EventKind
}

// LastMove describes the most recent placement, for transient UI emphasis.
type LastMove struct {
	Column int `json:"column"`
	Row    int `json:"row"`
	Player int `json:"player"`
}

// QueueJoinedEvent confirms the server accepted a matchmaking request.
type QueueJoinedEvent struct {
	Mode       string `json:"mode,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

func (*QueueJoinedEvent) Kind() EventKind { return KindQueueJoined }

// QueueTimeoutEvent reports that matchmaking gave up without an opponent.
type QueueTimeoutEvent struct {
	Message string `json:"message,omitempty"`
}

func (*QueueTimeoutEvent) Kind() EventKind { return KindQueueTimeout }

// GameStartEvent begins a new game, including rematch games (new gameId).
type GameStartEvent struct {
	GameID      string  `json:"gameId"`
	Board       [][]int `json:"board"`
	CurrentTurn int     `json:"currentTurn"`
	YourPlayer  int     `json:"yourPlayer"`
	Opponent    string  `json:"opponent"`
	Mode        string  `json:"mode,omitempty"`
	Difficulty  string  `json:"difficulty,omitempty"`
}

func (*GameStartEvent) Kind() EventKind { return KindGameStart }

// SpectateStartEvent begins spectating a running game. Player labels replace
// the myPlayer/opponent pair a participant would get.
type SpectateStartEvent struct {
	GameID         string  `json:"gameId"`
	Board          [][]int `json:"board"`
	CurrentTurn    int     `json:"currentTurn"`
	Player1        string  `json:"player1"`
	Player2        string  `json:"player2"`
	SpectatorCount int     `json:"spectatorCount,omitempty"`
}

func (*SpectateStartEvent) Kind() EventKind { return KindSpectateStart }

// MoveMadeEvent carries an authoritative board snapshot after a placement.
type MoveMadeEvent struct {
	Board    [][]int   `json:"board"`
	LastMove *LastMove `json:"lastMove"`
	NextTurn int       `json:"nextTurn"`
}

func (*MoveMadeEvent) Kind() EventKind { return KindMoveMade }

// GameStateEvent is the dual-purpose sync message. With gameId and yourPlayer
// set it is a full reinit (the reconnection recovery path); without them it
// is a lightweight board/turn refresh. A winner value cascades into game over.
type GameStateEvent struct {
	GameID         string  `json:"gameId,omitempty"`
	YourPlayer     int     `json:"yourPlayer,omitempty"`
	Board          [][]int `json:"board"`
	CurrentTurn    int     `json:"currentTurn"`
	Opponent       string  `json:"opponent,omitempty"`
	Mode           string  `json:"mode,omitempty"`
	Difficulty     string  `json:"difficulty,omitempty"`
	Winner         string  `json:"winner,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	SpectatorCount int     `json:"spectatorCount,omitempty"`
}

func (*GameStateEvent) Kind() EventKind { return KindGameState }

// GameOverEvent ends the current game.
type GameOverEvent struct {
	Winner       string  `json:"winner"`
	Reason       string  `json:"reason"`
	Board        [][]int `json:"board,omitempty"`
	WinningCells [][]int `json:"winningCells,omitempty"`
	AllowRematch *bool   `json:"allowRematch,omitempty"`
}

func (*GameOverEvent) Kind() EventKind { return KindGameOver }

// Rematch returns whether the server offers a rematch for this game.
func (e *GameOverEvent) Rematch() bool {
	return e.AllowRematch != nil && *e.AllowRematch
}

// NoActiveGameEvent means the server has no record of the client's game.
// It is authoritative: the session resets, nothing is retried.
type NoActiveGameEvent struct {
	Message string `json:"message,omitempty"`
}

func (*NoActiveGameEvent) Kind() EventKind { return KindNoActiveGame }

// RematchRequestEvent is the opponent asking for a rematch.
type RematchRequestEvent struct {
	From           string `json:"rematchRequester,omitempty"`
	TimeoutSeconds int    `json:"rematchTimeout,omitempty"`
}

func (*RematchRequestEvent) Kind() EventKind { return KindRematchRequest }

// RematchAcceptedEvent confirms a rematch; a fresh game_start follows.
type RematchAcceptedEvent struct {
	Message string `json:"message,omitempty"`
}

func (*RematchAcceptedEvent) Kind() EventKind { return KindRematchAccepted }

// RematchDeclinedEvent ends the rematch negotiation negatively.
type RematchDeclinedEvent struct {
	Message string `json:"message,omitempty"`
}

func (*RematchDeclinedEvent) Kind() EventKind { return KindRematchDeclined }

// RematchTimeoutEvent reports the server-side rematch window expired.
type RematchTimeoutEvent struct {
	Message string `json:"message,omitempty"`
}

func (*RematchTimeoutEvent) Kind() EventKind { return KindRematchTimeout }

// RematchCancelledEvent reports the requester withdrew the request.
type RematchCancelledEvent struct {
	Message string `json:"message,omitempty"`
}

func (*RematchCancelledEvent) Kind() EventKind { return KindRematchCancelled }

// OpponentDisconnectedEvent starts the disconnection grace period.
type OpponentDisconnectedEvent struct {
	DisconnectTimeout int `json:"disconnectTimeout"`
}

func (*OpponentDisconnectedEvent) Kind() EventKind { return KindOpponentDisconnected }

// OpponentReconnectedEvent ends the disconnection grace period.
type OpponentReconnectedEvent struct{}

func (*OpponentReconnectedEvent) Kind() EventKind { return KindOpponentReconnected }

// ErrorEvent is a server-reported error. Codes in the session-invalidation
// family force a token refresh; everything else surfaces as a notice.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (*ErrorEvent) Kind() EventKind { return KindError }

// SessionInvalid reports whether this error invalidates the auth session.
func (e *ErrorEvent) SessionInvalid() bool {
	switch e.Code {
	case "invalid_token", "token_expired", "session_expired", "unauthorized":
		return true
	}
	return false
}

// envelope extracts only the discriminant before the second-stage decode.
type envelope struct {
	Type EventKind `json:"type"`
}

// DecodeServerEvent parses one inbound frame into its concrete event type,
// validating required fields. Unknown kinds return ErrUnknownEvent (wrapped);
// malformed payloads return a descriptive error. Either way the caller drops
// the frame and the session is untouched.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("frame has no type discriminant")
	}

	var ev ServerEvent
	switch env.Type {
	case KindQueueJoined:
		ev = &QueueJoinedEvent{}
	case KindQueueTimeout:
		ev = &QueueTimeoutEvent{}
	case KindGameStart:
		ev = &GameStartEvent{}
	case KindSpectateStart:
		ev = &SpectateStartEvent{}
	case KindMoveMade:
		ev = &MoveMadeEvent{}
	case KindGameState:
		ev = &GameStateEvent{}
	case KindGameOver:
		ev = &GameOverEvent{}
	case KindNoActiveGame:
		ev = &NoActiveGameEvent{}
	case KindRematchRequest:
		ev = &RematchRequestEvent{}
	case KindRematchAccepted:
		ev = &RematchAcceptedEvent{}
	case KindRematchDeclined:
		ev = &RematchDeclinedEvent{}
	case KindRematchTimeout:
		ev = &RematchTimeoutEvent{}
	case KindRematchCancelled:
		ev = &RematchCancelledEvent{}
	case KindOpponentDisconnected:
		ev = &OpponentDisconnectedEvent{}
	case KindOpponentReconnected:
		ev = &OpponentReconnectedEvent{}
	case KindError:
		ev = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
	}
	if err := validateEvent(ev); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", env.Type, err)
	}
	return ev, nil
}

// validateEvent checks per-kind required fields before dispatch.
func validateEvent(ev ServerEvent) error {
	switch e := ev.(type) {
	case *GameStartEvent:
		if e.GameID == "" {
			return errors.New("missing gameId")
		}
		if e.YourPlayer != 1 && e.YourPlayer != 2 {
			return fmt.Errorf("yourPlayer must be 1 or 2, got %d", e.YourPlayer)
		}
		return validateGrid(e.Board)
	case *SpectateStartEvent:
		if e.GameID == "" {
			return errors.New("missing gameId")
		}
		return validateGrid(e.Board)
	case *MoveMadeEvent:
		if e.LastMove == nil {
			return errors.New("missing lastMove")
		}
		if err := validateTurn(e.NextTurn); err != nil {
			return err
		}
		return validateGrid(e.Board)
	case *GameStateEvent:
		return validateGrid(e.Board)
	case *GameOverEvent:
		if e.Winner == "" {
			return errors.New("missing winner")
		}
		if e.Board != nil {
			return validateGrid(e.Board)
		}
	case *OpponentDisconnectedEvent:
		if e.DisconnectTimeout <= 0 {
			return fmt.Errorf("disconnectTimeout must be positive, got %d", e.DisconnectTimeout)
		}
	case *ErrorEvent:
		if e.Message == "" {
			return errors.New("missing message")
		}
	}
	return nil
}

func validateTurn(turn int) error {
	if turn != 1 && turn != 2 {
		return fmt.Errorf("turn must be 1 or 2, got %d", turn)
	}
	return nil
}

// validateGrid checks the 6x7 shape and the cell value range of a board
// payload. The board is required on every board-carrying event: the server
// pushes whole snapshots, never cell patches.
func validateGrid(grid [][]int) error {
	if len(grid) != 6 {
		return fmt.Errorf("board must have 6 rows, got %d", len(grid))
	}
	for r, row := range grid {
		if len(row) != 7 {
			return fmt.Errorf("board row %d must have 7 columns, got %d", r, len(row))
		}
		for c, v := range row {
			if v < 0 || v > 2 {
				return fmt.Errorf("board cell (%d,%d) out of range: %d", r, c, v)
			}
		}
	}
	return nil
}
