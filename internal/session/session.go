package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/protocol"
	"github.com/fourline-project/fourline/internal/util"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusQueuing  Status = "queuing"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Sender writes commands to the game server. The transport adapter satisfies
// it; tests substitute a recorder.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Settings are the timing knobs of the session.
type Settings struct {
	// BotMoveDelay holds back the presentation of a bot's reply move so it
	// does not land in the same instant as the player's own move.
	BotMoveDelay time.Duration

	// RematchWindow is how long an incoming rematch request stays open
	// before it is declined automatically.
	RematchWindow time.Duration
}

// DefaultSettings returns the standard timing values.
func DefaultSettings() Settings {
	return Settings{
		BotMoveDelay:  800 * time.Millisecond,
		RematchWindow: 10 * time.Second,
	}
}

// Session is the authoritative client-side view of one player's game state.
// All state is guarded by one mutex; timers capture the generation counter
// and re-check it under the lock when they fire, so a timer that outlives
// the game it was armed in does nothing.
type Session struct {
	mu sync.Mutex

	sender   Sender
	bus      *events.EventBus
	settings Settings
	logger   zerolog.Logger

	generation uint64

	status      Status
	gameID      string
	board       Board
	myPlayer    int
	currentTurn int
	opponent    string
	mode        string
	difficulty  string
	lastMove    *protocol.LastMove

	spectating     bool
	player1        string
	player2        string
	spectatorCount int

	winner       string
	reason       string
	winningCells [][]int
	allowRematch bool

	// Move presentation (reconcile.go)
	pendingMove     *protocol.MoveMadeEvent
	pendingGameOver *protocol.GameOverEvent
	presentTimer    *time.Timer

	// Opponent disconnect countdown (tracker.go)
	opponentGone   bool
	graceRemaining int
	graceTicker    *time.Ticker
	graceStop      chan struct{}

	// Rematch negotiation (rematch.go)
	rematchState   RematchState
	rematchFrom    string
	rematchGameID  string
	rematchSpent   bool
	rematchTimer   *time.Timer
	rematchPending bool
}

// New creates an idle session.
func New(sender Sender, bus *events.EventBus, settings Settings) *Session {
	return &Session{
		sender:   sender,
		bus:      bus,
		settings: settings,
		logger:   util.ComponentLogger("session"),
		status:   StatusIdle,
	}
}

// Snapshot is a point-in-time copy of the session for the API and CLI.
type Snapshot struct {
	Status      Status             `json:"status"`
	GameID      string             `json:"game_id,omitempty"`
	Board       [][]int            `json:"board,omitempty"`
	MyPlayer    int                `json:"my_player,omitempty"`
	CurrentTurn int                `json:"current_turn,omitempty"`
	Opponent    string             `json:"opponent,omitempty"`
	Mode        string             `json:"mode,omitempty"`
	Difficulty  string             `json:"difficulty,omitempty"`
	LastMove    *protocol.LastMove `json:"last_move,omitempty"`
	MyTurn      bool               `json:"my_turn"`

	Spectating     bool   `json:"spectating,omitempty"`
	Player1        string `json:"player1,omitempty"`
	Player2        string `json:"player2,omitempty"`
	SpectatorCount int    `json:"spectator_count,omitempty"`

	Winner       string  `json:"winner,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	WinningCells [][]int `json:"winning_cells,omitempty"`
	AllowRematch bool    `json:"allow_rematch,omitempty"`
	RematchState string  `json:"rematch_state,omitempty"`

	OpponentDisconnected bool `json:"opponent_disconnected,omitempty"`
	GraceRemaining       int  `json:"grace_remaining,omitempty"`
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Status:      s.status,
		GameID:      s.gameID,
		MyPlayer:    s.myPlayer,
		CurrentTurn: s.currentTurn,
		Opponent:    s.opponent,
		Mode:        s.mode,
		Difficulty:  s.difficulty,
		LastMove:    s.lastMove,
		MyTurn:      s.isMyTurnLocked(),

		Spectating:     s.spectating,
		Player1:        s.player1,
		Player2:        s.player2,
		SpectatorCount: s.spectatorCount,

		Winner:       s.winner,
		Reason:       s.reason,
		WinningCells: s.winningCells,
		AllowRematch: s.allowRematch,

		OpponentDisconnected: s.opponentGone,
		GraceRemaining:       s.graceRemaining,
	}
	if s.status == StatusPlaying || s.status == StatusFinished {
		snap.Board = s.board.Grid()
	}
	if s.rematchState != RematchIdle {
		snap.RematchState = string(s.rematchState)
	}
	return snap
}

// Apply feeds one decoded server event through the state machine.
func (s *Session) Apply(ctx context.Context, ev protocol.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug().Str("event", string(ev.Kind())).Str("status", string(s.status)).
		Msg("applying server event")

	switch e := ev.(type) {
	case *protocol.QueueJoinedEvent:
		s.applyQueueJoined(ctx, e)
	case *protocol.QueueTimeoutEvent:
		s.applyQueueTimeout(ctx, e)
	case *protocol.GameStartEvent:
		s.applyGameStart(ctx, e)
	case *protocol.SpectateStartEvent:
		s.applySpectateStart(ctx, e)
	case *protocol.MoveMadeEvent:
		s.applyMoveMade(ctx, e)
	case *protocol.GameStateEvent:
		s.applyGameState(ctx, e)
	case *protocol.GameOverEvent:
		s.applyGameOver(ctx, e)
	case *protocol.NoActiveGameEvent:
		s.applyNoActiveGame(ctx, e)
	case *protocol.RematchRequestEvent:
		s.applyRematchRequest(ctx, e)
	case *protocol.RematchAcceptedEvent:
		s.applyRematchAccepted(ctx)
	case *protocol.RematchDeclinedEvent:
		s.applyRematchDeclined(ctx)
	case *protocol.RematchTimeoutEvent:
		s.applyRematchTimeout(ctx)
	case *protocol.RematchCancelledEvent:
		s.applyRematchCancelled(ctx)
	case *protocol.OpponentDisconnectedEvent:
		s.applyOpponentDisconnected(ctx, e)
	case *protocol.OpponentReconnectedEvent:
		s.applyOpponentReconnected(ctx)
	case *protocol.ErrorEvent:
		s.emit(ctx, events.EventNotice, events.NoticePayload{Message: e.Message, Code: e.Code})
	}
}

// StartQueuing moves the session into matchmaking the moment the request is
// sent. The queue_joined that follows from the server only confirms it.
func (s *Session) StartQueuing(ctx context.Context, mode, difficulty string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPlaying || s.status == StatusQueuing {
		return
	}
	s.resetLocked()
	s.status = StatusQueuing
	s.mode = mode
	s.difficulty = difficulty
	s.emit(ctx, events.EventQueueJoined, nil)
}

func (s *Session) applyQueueJoined(ctx context.Context, e *protocol.QueueJoinedEvent) {
	if s.status == StatusPlaying {
		s.logger.Warn().Msg("queue_joined while playing, ignored")
		return
	}
	if s.status == StatusQueuing {
		// Confirmation of a request this client already recorded.
		if e.Mode != "" {
			s.mode = e.Mode
		}
		if e.Difficulty != "" {
			s.difficulty = e.Difficulty
		}
		return
	}
	s.resetLocked()
	s.status = StatusQueuing
	s.mode = e.Mode
	s.difficulty = e.Difficulty
	s.emit(ctx, events.EventQueueJoined, nil)
}

func (s *Session) applyQueueTimeout(ctx context.Context, e *protocol.QueueTimeoutEvent) {
	if s.status != StatusQueuing {
		return
	}
	s.resetLocked()
	s.emit(ctx, events.EventQueueTimeout, nil)
	msg := e.Message
	if msg == "" {
		msg = "no opponent found, matchmaking timed out"
	}
	s.emit(ctx, events.EventNotice, events.NoticePayload{Message: msg, Code: "queue_timeout"})
}

func (s *Session) applyGameStart(ctx context.Context, e *protocol.GameStartEvent) {
	isRematch := s.rematchPending

	s.resetLocked()
	s.status = StatusPlaying
	s.gameID = e.GameID
	s.board = BoardFromGrid(e.Board)
	s.myPlayer = e.YourPlayer
	s.currentTurn = e.CurrentTurn
	s.opponent = e.Opponent
	if e.Mode != "" {
		s.mode = e.Mode
	}
	if e.Difficulty != "" {
		s.difficulty = e.Difficulty
	}

	s.logger.Info().Str("game_id", e.GameID).Int("my_player", e.YourPlayer).
		Str("opponent", e.Opponent).Bool("rematch", isRematch).Msg("game started")

	s.emit(ctx, events.EventGameStarted, events.GameStartedPayload{
		GameID:   e.GameID,
		Mode:     s.mode,
		Opponent: e.Opponent,
		MyPlayer: e.YourPlayer,
		Rematch:  isRematch,
	})
}

func (s *Session) applySpectateStart(ctx context.Context, e *protocol.SpectateStartEvent) {
	s.resetLocked()
	s.status = StatusPlaying
	s.spectating = true
	s.gameID = e.GameID
	s.board = BoardFromGrid(e.Board)
	s.currentTurn = e.CurrentTurn
	s.player1 = e.Player1
	s.player2 = e.Player2
	s.spectatorCount = e.SpectatorCount

	s.logger.Info().Str("game_id", e.GameID).Msg("spectating game")

	s.emit(ctx, events.EventSpectateStart, events.GameStartedPayload{
		GameID:    e.GameID,
		Spectator: true,
	})
}

func (s *Session) applyGameState(ctx context.Context, e *protocol.GameStateEvent) {
	reinit := e.GameID != "" && e.YourPlayer != 0
	sameGame := s.status == StatusPlaying && !s.spectating &&
		e.GameID == s.gameID && e.YourPlayer == s.myPlayer

	switch {
	case reinit && !sameGame:
		// Full reinit, the recovery path after a reconnect.
		s.resetLocked()
		s.status = StatusPlaying
		s.gameID = e.GameID
		s.myPlayer = e.YourPlayer
		s.opponent = e.Opponent
		if e.Mode != "" {
			s.mode = e.Mode
		}
		if e.Difficulty != "" {
			s.difficulty = e.Difficulty
		}
		s.board = BoardFromGrid(e.Board)
		s.currentTurn = e.CurrentTurn
		s.spectatorCount = e.SpectatorCount

		s.logger.Info().Str("game_id", e.GameID).Msg("session restored from game state")
		s.emit(ctx, events.EventGameStarted, events.GameStartedPayload{
			GameID:   e.GameID,
			Mode:     s.mode,
			Opponent: e.Opponent,
			MyPlayer: e.YourPlayer,
		})
	case reinit:
		// Replayed sync for the game already in progress, not a new game.
		// Applied as a refresh so the game starts exactly once.
		s.logger.Debug().Str("game_id", e.GameID).Msg("game_state for the active game, refreshing")
		s.refreshLocked(ctx, e)
	default:
		if s.status != StatusPlaying {
			return
		}
		s.refreshLocked(ctx, e)
	}

	if e.Winner != "" {
		s.finishLocked(ctx, &protocol.GameOverEvent{
			Winner: e.Winner,
			Reason: e.Reason,
		})
	}
}

// refreshLocked overlays a sync snapshot on the live game without touching its
// identity. The snapshot is newer than anything held back for presentation,
// so a pending bot move is dropped and a queued result is settled right after.
func (s *Session) refreshLocked(ctx context.Context, e *protocol.GameStateEvent) {
	if s.presentTimer != nil {
		s.presentTimer.Stop()
		s.presentTimer = nil
	}
	s.pendingMove = nil
	pendingOver := s.pendingGameOver
	s.pendingGameOver = nil

	s.board = BoardFromGrid(e.Board)
	s.currentTurn = e.CurrentTurn
	if e.SpectatorCount != 0 {
		s.spectatorCount = e.SpectatorCount
	}
	s.emit(ctx, events.EventBoardUpdated, events.BoardUpdatedPayload{
		GameID:      s.gameID,
		CurrentTurn: s.currentTurn,
	})

	if pendingOver != nil {
		s.finishLocked(ctx, pendingOver)
	}
}

func (s *Session) applyNoActiveGame(ctx context.Context, e *protocol.NoActiveGameEvent) {
	s.logger.Info().Msg("server reports no active game, resetting session")
	s.resetLocked()
	s.emit(ctx, events.EventSessionReset, nil)
	msg := e.Message
	if msg == "" {
		msg = "no active game to resume"
	}
	s.emit(ctx, events.EventNotice, events.NoticePayload{Message: msg, Code: "no_active_game"})
}

// resetLocked returns the session to idle and invalidates every armed timer
// by bumping the generation.
func (s *Session) resetLocked() {
	s.generation++

	s.cancelPresentationLocked()
	s.stopGraceLocked()
	s.resetRematchLocked()

	s.status = StatusIdle
	s.gameID = ""
	s.board = Board{}
	s.myPlayer = 0
	s.currentTurn = 0
	s.opponent = ""
	s.mode = ""
	s.difficulty = ""
	s.lastMove = nil
	s.spectating = false
	s.player1 = ""
	s.player2 = ""
	s.spectatorCount = 0
	s.winner = ""
	s.reason = ""
	s.winningCells = nil
	s.allowRematch = false
}

// Reset forces the session back to idle. Used when the user abandons or the
// transport gives up permanently.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusIdle {
		return
	}
	s.resetLocked()
	s.emit(ctx, events.EventSessionReset, nil)
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// GameID returns the active game id, if any.
func (s *Session) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

// IsMyTurn reports whether the local player may move right now.
func (s *Session) IsMyTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isMyTurnLocked()
}

func (s *Session) isMyTurnLocked() bool {
	return s.status == StatusPlaying && !s.spectating &&
		s.myPlayer != 0 && s.currentTurn == s.myPlayer
}

// CanDropInColumn reports whether a move in the column would be accepted.
func (s *Session) CanDropInColumn(col int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isMyTurnLocked() && s.board.CanDrop(col)
}

// Close releases timers. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// emit publishes on the bus without holding up the state machine.
func (s *Session) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, events.Event{Type: t, Source: "session", Payload: payload})
}
