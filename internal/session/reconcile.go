package session

import (
	"context"
	"time"

	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/protocol"
)

// Move presentation. A bot answers instantly, which reads as the board
// jumping two discs at once. Bot replies are therefore held back for the
// configured delay before they land in the visible state. A game_over that
// arrives while a move is held is queued behind it and flushed in order.

func (s *Session) applyMoveMade(ctx context.Context, e *protocol.MoveMadeEvent) {
	if s.status != StatusPlaying {
		s.logger.Debug().Msg("move_made outside a game, dropped")
		return
	}

	if s.shouldDelayLocked(e) {
		// Latest snapshot wins if another delayed move is already held.
		s.pendingMove = e
		if s.presentTimer == nil {
			gen := s.generation
			s.presentTimer = time.AfterFunc(s.settings.BotMoveDelay, func() {
				s.flushPresentation(gen)
			})
		}
		return
	}

	s.presentMoveLocked(ctx, e)
}

// shouldDelayLocked reports whether this move is a bot reply that gets the
// presentation delay. Spectated games and pvp games present immediately.
func (s *Session) shouldDelayLocked(e *protocol.MoveMadeEvent) bool {
	if s.settings.BotMoveDelay <= 0 || s.spectating || s.mode != protocol.ModeBot {
		return false
	}
	return e.LastMove.Player != s.myPlayer
}

func (s *Session) presentMoveLocked(ctx context.Context, e *protocol.MoveMadeEvent) {
	s.board = BoardFromGrid(e.Board)
	s.currentTurn = e.NextTurn
	s.lastMove = e.LastMove

	s.emit(ctx, events.EventBoardUpdated, events.BoardUpdatedPayload{
		GameID:      s.gameID,
		Column:      e.LastMove.Column,
		Row:         e.LastMove.Row,
		Player:      e.LastMove.Player,
		CurrentTurn: e.NextTurn,
	})
}

// flushPresentation runs when the delay elapses. The generation stamp guards
// against the game having been torn down while the timer was armed.
func (s *Session) flushPresentation(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return
	}
	s.presentTimer = nil

	ctx := context.Background()
	if s.pendingMove != nil {
		move := s.pendingMove
		s.pendingMove = nil
		s.presentMoveLocked(ctx, move)
	}
	if s.pendingGameOver != nil {
		over := s.pendingGameOver
		s.pendingGameOver = nil
		s.finishLocked(ctx, over)
	}
}

func (s *Session) applyGameOver(ctx context.Context, e *protocol.GameOverEvent) {
	if s.status != StatusPlaying {
		s.logger.Debug().Msg("game_over outside a game, dropped")
		return
	}

	if s.pendingMove != nil {
		// The final move is still held; the result waits its turn.
		s.pendingGameOver = e
		return
	}

	s.finishLocked(ctx, e)
}

func (s *Session) finishLocked(ctx context.Context, e *protocol.GameOverEvent) {
	if s.status != StatusPlaying {
		return
	}

	s.cancelPresentationLocked()
	s.stopGraceLocked()

	s.status = StatusFinished
	s.winner = e.Winner
	s.reason = e.Reason
	s.winningCells = e.WinningCells
	s.allowRematch = e.Rematch() && !s.spectating
	if e.Board != nil {
		s.board = BoardFromGrid(e.Board)
	}
	s.currentTurn = 0

	// One rematch cycle is available for this finished game.
	s.rematchGameID = s.gameID
	s.rematchSpent = false
	s.rematchState = RematchIdle

	s.logger.Info().Str("game_id", s.gameID).Str("winner", e.Winner).
		Str("reason", e.Reason).Bool("rematch", s.allowRematch).Msg("game over")

	myPlayer := s.myPlayer
	if s.spectating {
		myPlayer = 0
	}
	s.emit(ctx, events.EventGameOver, events.GameOverPayload{
		GameID:       s.gameID,
		Winner:       e.Winner,
		Reason:       e.Reason,
		AllowRematch: s.allowRematch,
		MyPlayer:     myPlayer,
	})
}

// cancelPresentationLocked drops any held move and queued result.
func (s *Session) cancelPresentationLocked() {
	if s.presentTimer != nil {
		s.presentTimer.Stop()
		s.presentTimer = nil
	}
	s.pendingMove = nil
	s.pendingGameOver = nil
}
