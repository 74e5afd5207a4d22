package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fourline-project/fourline/internal/events"
)

// StatsRecorder listens for finished games and keeps the local lifetime
// counters current. Spectated games are not recorded.
type StatsRecorder struct {
	db       *Database
	username string
}

// NewStatsRecorder attaches the recorder to the event bus. The profile row is
// created up front so the counter updates always have a target.
func NewStatsRecorder(database *Database, bus *events.EventBus, username, displayName string) (*StatsRecorder, error) {
	if err := database.UpsertProfile(username, displayName); err != nil {
		return nil, err
	}

	r := &StatsRecorder{db: database, username: username}
	bus.Subscribe(events.EventGameOver, "db.stats", r.onGameOver)
	return r, nil
}

func (r *StatsRecorder) onGameOver(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.GameOverPayload)
	if !ok {
		return fmt.Errorf("unexpected game over payload type %T", event.Payload)
	}
	if payload.MyPlayer == 0 {
		return nil
	}

	result := classifyResult(payload)
	if err := r.db.RecordResult(r.username, result); err != nil {
		return err
	}

	log.Debug().Str("result", string(result)).Str("game_id", payload.GameID).
		Msg("lifetime counters updated")
	return nil
}

func classifyResult(p events.GameOverPayload) Result {
	if p.Winner == "draw" {
		return ResultDraw
	}
	if p.Winner == fmt.Sprintf("player%d", p.MyPlayer) {
		return ResultWin
	}
	if p.Reason == "abandon" {
		return ResultAbandon
	}
	return ResultLoss
}
