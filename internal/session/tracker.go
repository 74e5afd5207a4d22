package session

import (
	"context"
	"time"

	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/protocol"
)

// Opponent disconnect countdown. The server starts a grace period when the
// opponent drops; the client counts it down for display only. The countdown
// clamps at zero and never ends the game itself: the authoritative game_over
// comes from the server, and a reconnect can arrive after the display hits
// zero.

func (s *Session) applyOpponentDisconnected(ctx context.Context, e *protocol.OpponentDisconnectedEvent) {
	if s.status != StatusPlaying || s.spectating {
		return
	}

	s.stopGraceLocked()
	s.opponentGone = true
	s.graceRemaining = e.DisconnectTimeout
	s.startGraceLocked()

	s.logger.Info().Int("grace_seconds", e.DisconnectTimeout).Msg("opponent disconnected")
	s.emit(ctx, events.EventOpponentDisconnected, events.DisconnectPayload{
		GameID:           s.gameID,
		Disconnected:     true,
		RemainingSeconds: e.DisconnectTimeout,
	})
}

func (s *Session) applyOpponentReconnected(ctx context.Context) {
	if !s.opponentGone {
		return
	}

	s.stopGraceLocked()
	s.logger.Info().Msg("opponent reconnected")
	s.emit(ctx, events.EventOpponentReconnected, events.DisconnectPayload{
		GameID:       s.gameID,
		Disconnected: false,
	})
}

func (s *Session) startGraceLocked() {
	gen := s.generation
	stop := make(chan struct{})
	ticker := time.NewTicker(time.Second)
	s.graceTicker = ticker
	s.graceStop = stop

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !s.graceTick(gen) {
					return
				}
			}
		}
	}()
}

// graceTick decrements the displayed countdown. Returns false once the
// goroutine should exit.
func (s *Session) graceTick(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen || !s.opponentGone {
		return false
	}
	if s.graceRemaining == 0 {
		// Clamped. Stay alive and wait for the server's verdict.
		return true
	}
	s.graceRemaining--

	s.emit(context.Background(), events.EventDisconnectCountdown, events.DisconnectPayload{
		GameID:           s.gameID,
		Disconnected:     true,
		RemainingSeconds: s.graceRemaining,
	})
	return true
}

func (s *Session) stopGraceLocked() {
	if s.graceStop != nil {
		close(s.graceStop)
		s.graceStop = nil
	}
	s.graceTicker = nil
	s.opponentGone = false
	s.graceRemaining = 0
}
