// Package client wires the transport, codec, and session together and exposes
// the intents the API and CLI act through.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fourline-project/fourline/internal/auth"
	"github.com/fourline-project/fourline/internal/config"
	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/protocol"
	"github.com/fourline-project/fourline/internal/session"
	"github.com/fourline-project/fourline/internal/transport"
	"github.com/fourline-project/fourline/internal/util"
)

var (
	ErrNotYourTurn   = errors.New("client: not your turn")
	ErrColumnFull    = errors.New("client: column is full or out of range")
	ErrBusy          = errors.New("client: a game or queue is already active")
	ErrNoActiveGame  = errors.New("client: no active game")
	ErrNotSpectating = errors.New("client: not spectating a game")
)

// Client owns the connection and the session on behalf of the surfaces.
type Client struct {
	cfg    *config.Config
	bus    *events.EventBus
	logger zerolog.Logger

	tokens    *auth.TokenClient
	adapter   *transport.Adapter
	sess      *session.Session
	frames    <-chan transport.Frame
	lastSeq   uint64
	startedAt time.Time

	mu     sync.Mutex
	status transport.Status
}

// New assembles the client stack.
func New(cfg *config.Config, bus *events.EventBus) *Client {
	app := cfg.GetApplicationData()

	tokens := auth.NewTokenClient(cfg)
	adapter := transport.NewAdapter(cfg, tokens)
	sess := session.New(adapter, bus, session.Settings{
		BotMoveDelay:  time.Duration(app.Session.BotMoveDelayMS) * time.Millisecond,
		RematchWindow: time.Duration(app.Session.RematchWindowSec) * time.Second,
	})

	c := &Client{
		cfg:       cfg,
		bus:       bus,
		logger:    util.ComponentLogger("client"),
		tokens:    tokens,
		adapter:   adapter,
		sess:      sess,
		frames:    adapter.Subscribe(),
		startedAt: time.Now(),
		status:    transport.StatusDisconnected,
	}

	adapter.OnStatus(c.onStatus)
	return c
}

// Run drives the connection and the inbound frame pump until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	go c.pump(ctx)
	err := c.adapter.Run(ctx)
	if err != nil {
		// The transport gave up for good; the session cannot continue.
		c.sess.Reset(context.Background())
	}
	return err
}

// Close shuts the connection down deliberately.
func (c *Client) Close() {
	c.adapter.Close()
	c.sess.Close()
}

// pump decodes inbound frames and feeds the session. Frames at or below the
// last processed sequence are duplicates from a reconnect race and dropped.
func (c *Client) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.frames:
			if !ok {
				return
			}
			if frame.Seq <= c.lastSeq {
				c.logger.Debug().Uint64("seq", frame.Seq).Msg("duplicate frame dropped")
				continue
			}
			c.lastSeq = frame.Seq
			c.handleFrame(ctx, frame.Data)
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	ev, err := protocol.DecodeServerEvent(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownEvent) {
			c.logger.Debug().Err(err).Msg("unknown event kind, frame dropped")
		} else {
			c.logger.Warn().Err(err).Msg("bad frame dropped")
		}
		return
	}

	if errEv, ok := ev.(*protocol.ErrorEvent); ok && errEv.SessionInvalid() {
		// The server rejected our token; the next reconnect fetches a new one.
		c.logger.Warn().Str("code", errEv.Code).Msg("auth session invalidated by server")
		c.tokens.Invalidate()
	}

	c.sess.Apply(ctx, ev)
}

func (c *Client) onStatus(status transport.Status, attempt uint64, err error) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	payload := events.ConnectionStatusPayload{Status: string(status), Attempt: attempt}
	if err != nil {
		payload.LastErr = err.Error()
	}
	c.bus.Emit(context.Background(), events.Event{
		Type: events.EventConnectionStatus, Source: "client", Payload: payload,
	})
}

// ConnectionStatus returns the transport state.
func (c *Client) ConnectionStatus() transport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Uptime returns how long the client has been running.
func (c *Client) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// Snapshot merges the session state with connection info.
type Snapshot struct {
	Connection    string           `json:"connection"`
	ConnectionErr string           `json:"connection_error,omitempty"`
	Session       session.Snapshot `json:"session"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Snapshot returns the combined client state.
func (c *Client) Snapshot() Snapshot {
	snap := Snapshot{
		Connection:    string(c.ConnectionStatus()),
		Session:       c.sess.Snapshot(),
		UptimeSeconds: int64(c.Uptime().Seconds()),
	}
	if err := c.adapter.LastError(); err != nil {
		snap.ConnectionErr = err.Error()
	}
	return snap
}

// FindMatch requests matchmaking in the given mode.
func (c *Client) FindMatch(mode, difficulty string) error {
	if mode != protocol.ModePvP && mode != protocol.ModeBot {
		return fmt.Errorf("client: unknown mode %q", mode)
	}
	if mode == protocol.ModeBot {
		switch difficulty {
		case protocol.DifficultyEasy, protocol.DifficultyMedium, protocol.DifficultyHard:
		case "":
			difficulty = protocol.DifficultyMedium
		default:
			return fmt.Errorf("client: unknown difficulty %q", difficulty)
		}
	}
	if st := c.sess.Status(); st == session.StatusQueuing || st == session.StatusPlaying {
		return ErrBusy
	}
	if err := c.adapter.Send(protocol.FindMatchCommand(mode, difficulty)); err != nil {
		return err
	}
	// Queuing starts when the request goes out; queue_joined only confirms it.
	c.sess.StartQueuing(context.Background(), mode, difficulty)
	return nil
}

// CancelSearch withdraws a pending matchmaking request.
func (c *Client) CancelSearch() error {
	if c.sess.Status() != session.StatusQueuing {
		return ErrNoActiveGame
	}
	if err := c.adapter.Send(protocol.CancelSearchCommand()); err != nil {
		return err
	}
	c.sess.Reset(context.Background())
	return nil
}

// MakeMove drops a disc in the column after local validation. The server
// remains authoritative; the board only changes when its snapshot returns.
func (c *Client) MakeMove(column int) error {
	if !c.sess.IsMyTurn() {
		return ErrNotYourTurn
	}
	if !c.sess.CanDropInColumn(column) {
		return ErrColumnFull
	}
	return c.adapter.Send(protocol.MakeMoveCommand(column))
}

// Abandon forfeits the current game.
func (c *Client) Abandon() error {
	if c.sess.Status() != session.StatusPlaying {
		return ErrNoActiveGame
	}
	return c.adapter.Send(protocol.AbandonGameCommand())
}

// Watch joins a running game as a spectator.
func (c *Client) Watch(gameID string) error {
	if gameID == "" {
		return fmt.Errorf("client: game id required")
	}
	if st := c.sess.Status(); st == session.StatusQueuing || st == session.StatusPlaying {
		return ErrBusy
	}
	return c.adapter.Send(protocol.WatchGameCommand(gameID))
}

// LeaveSpectate leaves the spectated game and resets the session.
func (c *Client) LeaveSpectate() error {
	snap := c.sess.Snapshot()
	if !snap.Spectating {
		return ErrNotSpectating
	}
	if err := c.adapter.Send(protocol.LeaveSpectateCommand(snap.GameID)); err != nil {
		return err
	}
	c.sess.Reset(context.Background())
	return nil
}

// RequestRematch asks the opponent for a rematch.
func (c *Client) RequestRematch(ctx context.Context) error {
	return c.sess.RequestRematch(ctx)
}

// RespondRematch answers a pending rematch request.
func (c *Client) RespondRematch(ctx context.Context, accept bool) error {
	return c.sess.RespondRematch(ctx, accept)
}

// Session exposes the session for read-only consumers.
func (c *Client) Session() *session.Session {
	return c.sess
}
