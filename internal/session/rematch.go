package session

import (
	"context"
	"errors"
	"time"

	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/protocol"
)

// Rematch negotiation. One cycle per finished game: a request is either sent
// or received, resolves to accepted, declined, expired, or cancelled, and
// cannot restart for the same game id. An incoming request left unanswered
// for the rematch window is declined automatically so the opponent is not
// stuck waiting.

// RematchState is the negotiation sub-state after a game finishes.
type RematchState string

const (
	RematchIdle     RematchState = "idle"
	RematchSent     RematchState = "sent"
	RematchReceived RematchState = "received"
	RematchAccepted RematchState = "accepted"
	RematchDeclined RematchState = "declined"
	RematchExpired  RematchState = "expired"
)

var (
	ErrNoRematchAvailable = errors.New("session: no rematch available")
	ErrRematchSpent       = errors.New("session: rematch already negotiated for this game")
	ErrNoRematchRequest   = errors.New("session: no pending rematch request")
)

// RequestRematch asks the opponent for a rematch of the finished game.
func (s *Session) RequestRematch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusFinished || !s.allowRematch {
		return ErrNoRematchAvailable
	}
	if s.rematchSpent || s.rematchState != RematchIdle {
		return ErrRematchSpent
	}

	if err := s.sender.Send(protocol.RequestRematchCommand()); err != nil {
		return err
	}

	s.rematchState = RematchSent
	s.rematchSpent = true
	s.emitRematchLocked(ctx)
	return nil
}

// RespondRematch answers the opponent's pending rematch request.
func (s *Session) RespondRematch(ctx context.Context, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rematchState != RematchReceived {
		return ErrNoRematchRequest
	}

	if err := s.sender.Send(protocol.RematchResponseCommand(accept)); err != nil {
		return err
	}

	s.stopRematchTimerLocked()
	if accept {
		// Accepted locally; the game restarts when game_start arrives.
		s.rematchState = RematchAccepted
		s.rematchPending = true
	} else {
		s.rematchState = RematchDeclined
	}
	s.rematchSpent = true
	s.emitRematchLocked(ctx)
	return nil
}

func (s *Session) applyRematchRequest(ctx context.Context, e *protocol.RematchRequestEvent) {
	if s.status != StatusFinished || s.rematchSpent {
		s.logger.Debug().Msg("rematch_request not applicable, dropped")
		return
	}

	s.rematchState = RematchReceived
	s.rematchFrom = e.From

	window := s.settings.RematchWindow
	if e.TimeoutSeconds > 0 {
		window = time.Duration(e.TimeoutSeconds) * time.Second
	}

	gen := s.generation
	s.rematchTimer = time.AfterFunc(window, func() {
		s.autoDeclineRematch(gen)
	})

	s.logger.Info().Str("from", e.From).Dur("window", window).Msg("rematch requested by opponent")
	s.emitRematchLocked(ctx)
}

// autoDeclineRematch fires when an incoming request is left unanswered.
func (s *Session) autoDeclineRematch(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen || s.rematchState != RematchReceived {
		return
	}

	s.rematchTimer = nil
	s.rematchState = RematchDeclined
	s.rematchSpent = true

	if err := s.sender.Send(protocol.RematchResponseCommand(false)); err != nil {
		s.logger.Warn().Err(err).Msg("auto-decline send failed")
	}

	s.logger.Info().Msg("rematch request expired, declined automatically")
	s.emitRematchLocked(context.Background())
}

func (s *Session) applyRematchAccepted(ctx context.Context) {
	if s.rematchState != RematchSent {
		return
	}
	// Stay finished until the fresh game_start lands.
	s.rematchState = RematchAccepted
	s.rematchPending = true
	s.emitRematchLocked(ctx)
}

func (s *Session) applyRematchDeclined(ctx context.Context) {
	if s.rematchState != RematchSent {
		return
	}
	s.rematchState = RematchDeclined
	s.emitRematchLocked(ctx)
	s.emit(ctx, events.EventNotice, events.NoticePayload{
		Message: "opponent declined the rematch", Code: "rematch_declined",
	})
}

func (s *Session) applyRematchTimeout(ctx context.Context) {
	if s.rematchState != RematchSent && s.rematchState != RematchReceived {
		return
	}
	s.stopRematchTimerLocked()
	s.rematchState = RematchExpired
	s.rematchSpent = true
	s.emitRematchLocked(ctx)
}

func (s *Session) applyRematchCancelled(ctx context.Context) {
	if s.rematchState != RematchReceived {
		return
	}
	s.stopRematchTimerLocked()
	s.rematchState = RematchIdle
	s.rematchFrom = ""
	s.emitRematchLocked(ctx)
	s.emit(ctx, events.EventNotice, events.NoticePayload{
		Message: "opponent withdrew the rematch request", Code: "rematch_cancelled",
	})
}

func (s *Session) emitRematchLocked(ctx context.Context) {
	s.emit(ctx, events.EventRematchUpdated, events.RematchPayload{
		GameID: s.rematchGameID,
		State:  string(s.rematchState),
		From:   s.rematchFrom,
	})
}

func (s *Session) stopRematchTimerLocked() {
	if s.rematchTimer != nil {
		s.rematchTimer.Stop()
		s.rematchTimer = nil
	}
}

func (s *Session) resetRematchLocked() {
	s.stopRematchTimerLocked()
	s.rematchState = RematchIdle
	s.rematchFrom = ""
	s.rematchGameID = ""
	s.rematchSpent = false
	s.rematchPending = false
}
