// Package transport maintains the websocket connection to the game server:
// dial, authentication handshake, reconnect with exponential backoff, and
// frame fan-out to subscribers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/fourline-project/fourline/internal/config"
	"github.com/fourline-project/fourline/internal/protocol"
	"github.com/fourline-project/fourline/internal/util"
)

const (
	dialTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second

	// Subscriber channels are buffered; a subscriber that falls this far
	// behind starts losing frames.
	subscriberBuffer = 64
)

// ErrNotConnected is returned by Send when no connection is established.
var ErrNotConnected = errors.New("transport: not connected")

// errStaleAttempt aborts a connect attempt that was superseded while it was
// blocked on the token fetch or the dial.
var errStaleAttempt = errors.New("transport: connect attempt superseded")

// Status is the externally visible connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Frame is one inbound websocket text message. Seq increases monotonically
// across reconnects so consumers can discard anything at or below the last
// sequence they processed.
type Frame struct {
	Seq  uint64
	Data []byte
}

// StatusFunc receives connection status transitions.
type StatusFunc func(status Status, attempt uint64, err error)

// TokenSource supplies the JWT for the init handshake.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Adapter owns the websocket connection lifecycle. Run drives the connect,
// read, reconnect cycle; Send writes commands; subscribers receive inbound
// frames. Every connect attempt carries an attempt id, and the id is
// re-checked after each blocking step so an attempt that was overtaken by a
// Close or a newer attempt abandons itself instead of clobbering state.
type Adapter struct {
	mu sync.Mutex

	cfg      *config.Config
	tokens   TokenSource
	clientID string
	logger   zerolog.Logger

	conn    *websocket.Conn
	status  Status
	attempt uint64
	lastErr error
	closed  bool

	seq         uint64
	subscribers []chan Frame

	onStatus StatusFunc
}

// NewAdapter creates a transport adapter. The generated client id persists for
// the process lifetime so the server can re-bind the session on reconnect.
func NewAdapter(cfg *config.Config, tokens TokenSource) *Adapter {
	return &Adapter{
		cfg:      cfg,
		tokens:   tokens,
		clientID: uuid.NewString(),
		logger:   util.ComponentLogger("transport"),
		status:   StatusDisconnected,
	}
}

// OnStatus registers the status callback. Must be called before Run.
func (a *Adapter) OnStatus(fn StatusFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStatus = fn
}

// Subscribe returns a channel of inbound frames. Must be called before Run.
func (a *Adapter) Subscribe() <-chan Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan Frame, subscriberBuffer)
	a.subscribers = append(a.subscribers, ch)
	return ch
}

// ClientID returns the stable per-process client identifier.
func (a *Adapter) ClientID() string {
	return a.clientID
}

// Status returns the current connection status.
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// LastError returns the most recent connection error, if any.
func (a *Adapter) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Run maintains the connection until ctx is cancelled, Close is called, or
// the reconnect budget is exhausted. Reconnect delays follow exponential
// backoff with jitter; the budget resets after every successful connection.
func (a *Adapter) Run(ctx context.Context) error {
	session := a.cfg.GetApplicationData().Session

	b := &backoff.Backoff{
		Min:    time.Duration(session.ReconnectBaseMS) * time.Millisecond,
		Max:    time.Duration(session.ReconnectMaxMS) * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}
	failures := 0

	for {
		select {
		case <-ctx.Done():
			a.teardown(nil)
			return nil
		default:
		}

		if a.isClosed() {
			return nil
		}

		err := a.connectOnce(ctx)
		if err != nil {
			if errors.Is(err, errStaleAttempt) {
				// A newer attempt or a Close owns the connection now.
				return nil
			}
			failures++
			a.setStatus(StatusError, err)
			if failures >= session.ReconnectMaxAttempts {
				a.logger.Error().Err(err).Int("attempts", failures).
					Msg("reconnect budget exhausted, giving up")
				return fmt.Errorf("transport: giving up after %d attempts: %w", failures, err)
			}

			delay := b.Duration()
			a.logger.Warn().Err(err).Int("attempt", failures).Dur("retry_in", delay).
				Msg("connect failed, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		failures = 0
		b.Reset()

		// Blocks until the connection drops.
		a.readLoop(ctx)

		if a.isClosed() || ctx.Err() != nil {
			return nil
		}
		a.logger.Warn().Msg("connection lost, reconnecting")
	}
}

// connectOnce performs one full connect attempt: token fetch, dial, init
// handshake. The attempt id taken at the start is verified after every
// blocking step.
func (a *Adapter) connectOnce(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errStaleAttempt
	}
	a.attempt++
	myAttempt := a.attempt
	a.status = StatusConnecting
	socketURL := a.cfg.GetServerData().GameSocketURL
	a.mu.Unlock()
	a.notifyStatus(StatusConnecting, myAttempt, nil)

	token, err := a.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("token fetch failed: %w", err)
	}
	if !a.attemptCurrent(myAttempt) {
		return errStaleAttempt
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s failed: %w", socketURL, err)
	}

	a.mu.Lock()
	if a.closed || a.attempt != myAttempt {
		a.mu.Unlock()
		conn.Close()
		return errStaleAttempt
	}
	a.conn = conn
	a.status = StatusConnected
	a.lastErr = nil
	a.mu.Unlock()

	if err := a.Send(protocol.InitCommand(token, a.clientID)); err != nil {
		a.teardown(err)
		return fmt.Errorf("init handshake failed: %w", err)
	}

	a.logger.Info().Str("url", socketURL).Uint64("attempt", myAttempt).Msg("connected")
	a.notifyStatus(StatusConnected, myAttempt, nil)
	return nil
}

// readLoop pumps inbound frames to subscribers until the connection drops.
func (a *Adapter) readLoop(ctx context.Context) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !a.isClosed() && ctx.Err() == nil {
				a.teardown(err)
				a.notifyStatus(StatusDisconnected, a.currentAttempt(), err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		a.mu.Lock()
		a.seq++
		frame := Frame{Seq: a.seq, Data: data}
		subs := a.subscribers
		a.mu.Unlock()

		for _, ch := range subs {
			select {
			case ch <- frame:
			default:
				a.logger.Warn().Uint64("seq", frame.Seq).Msg("subscriber lagging, frame dropped")
			}
		}
	}
}

// Send writes one command frame. Writes are serialized under the adapter lock.
func (a *Adapter) Send(cmd protocol.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode %s failed: %w", cmd.Type, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil || a.status != StatusConnected {
		return ErrNotConnected
	}

	a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := a.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s failed: %w", cmd.Type, err)
	}
	a.logger.Trace().Str("command", cmd.Type).Msg("command sent")
	return nil
}

// Close shuts the connection down deliberately. Any in-flight connect attempt
// is invalidated and no reconnect follows.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.attempt++
	conn := a.conn
	a.conn = nil
	a.status = StatusDisconnected
	a.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	a.logger.Info().Msg("transport closed")
	a.notifyStatus(StatusDisconnected, 0, nil)
}

func (a *Adapter) teardown(err error) {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	if a.status == StatusConnected {
		a.status = StatusDisconnected
	}
	if err != nil {
		a.lastErr = err
	}
	a.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (a *Adapter) attemptCurrent(id uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.closed && a.attempt == id
}

func (a *Adapter) currentAttempt() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempt
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Adapter) setStatus(s Status, err error) {
	a.mu.Lock()
	a.status = s
	if err != nil {
		a.lastErr = err
	}
	attempt := a.attempt
	a.mu.Unlock()
	a.notifyStatus(s, attempt, err)
}

func (a *Adapter) notifyStatus(s Status, attempt uint64, err error) {
	a.mu.Lock()
	fn := a.onStatus
	a.mu.Unlock()
	if fn != nil {
		fn(s, attempt, err)
	}
}
