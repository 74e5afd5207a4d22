// Package events defines the publish-subscribe bus and the event vocabulary
// that carries session outcomes to consumers (API, CLI, telemetry).
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection events
	EventConnectionStatus EventType = "connection_status"

	// Session lifecycle events
	EventQueueJoined   EventType = "queue_joined"
	EventQueueTimeout  EventType = "queue_timeout"
	EventGameStarted   EventType = "game_started"
	EventSpectateStart EventType = "spectate_start"
	EventBoardUpdated  EventType = "board_updated"
	EventGameOver      EventType = "game_over"
	EventSessionReset  EventType = "session_reset"

	// Opponent presence events
	EventOpponentDisconnected EventType = "opponent_disconnected"
	EventOpponentReconnected  EventType = "opponent_reconnected"
	EventDisconnectCountdown  EventType = "disconnect_countdown"

	// Rematch events
	EventRematchUpdated EventType = "rematch_updated"

	// Notices are transient, user-visible messages (e.g. a rejected move).
	EventNotice EventType = "notice"

	// System events
	EventShutdown EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ConnectionStatusPayload reports a transport status change.
type ConnectionStatusPayload struct {
	Status  string `json:"status"`
	Attempt uint64 `json:"attempt"`
	LastErr string `json:"last_error,omitempty"`
}

// GameStartedPayload is emitted when a game (or spectate) begins.
type GameStartedPayload struct {
	GameID    string `json:"game_id"`
	Mode      string `json:"mode"`
	Opponent  string `json:"opponent,omitempty"`
	MyPlayer  int    `json:"my_player"`
	Spectator bool   `json:"spectator"`
	Rematch   bool   `json:"rematch"`
}

// BoardUpdatedPayload is emitted after an authoritative board snapshot lands.
type BoardUpdatedPayload struct {
	GameID      string `json:"game_id"`
	Column      int    `json:"column"`
	Row         int    `json:"row"`
	Player      int    `json:"player"`
	CurrentTurn int    `json:"current_turn"`
}

// GameOverPayload is emitted when the server declares the game finished.
// MyPlayer is zero when the local client was spectating.
type GameOverPayload struct {
	GameID       string `json:"game_id"`
	Winner       string `json:"winner"`
	Reason       string `json:"reason"`
	AllowRematch bool   `json:"allow_rematch"`
	MyPlayer     int    `json:"my_player,omitempty"`
}

// DisconnectPayload reports opponent disconnect/reconnect and countdown ticks.
type DisconnectPayload struct {
	GameID           string `json:"game_id"`
	Disconnected     bool   `json:"disconnected"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// RematchPayload reports rematch negotiation state changes.
type RematchPayload struct {
	GameID string `json:"game_id"`
	State  string `json:"state"`
	From   string `json:"from,omitempty"`
}

// NoticePayload carries a transient user-visible message.
type NoticePayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
