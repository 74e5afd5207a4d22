package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fourline-project/fourline/internal/config"
	"github.com/fourline-project/fourline/internal/protocol"
)

type staticTokens struct {
	invalidated int32
}

func (s *staticTokens) Token(ctx context.Context) (string, error) { return "test-jwt", nil }
func (s *staticTokens) Invalidate()                               { atomic.AddInt32(&s.invalidated, 1) }

// gameServer is a minimal in-process websocket peer. Each accepted connection
// is pushed on conns after its init frame arrives.
type gameServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	inits chan protocol.Command
}

func newGameServer(t *testing.T) *gameServer {
	t.Helper()
	gs := &gameServer{
		conns: make(chan *websocket.Conn, 4),
		inits: make(chan protocol.Command, 4),
	}
	upgrader := websocket.Upgrader{}
	gs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		var cmd protocol.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			t.Errorf("bad init frame: %v", err)
		}
		gs.inits <- cmd
		gs.conns <- conn
	}))
	t.Cleanup(gs.srv.Close)
	return gs
}

func (gs *gameServer) wsURL() string {
	return "ws" + strings.TrimPrefix(gs.srv.URL, "http")
}

func (gs *gameServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-gs.conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func newTestAdapter(t *testing.T, gs *gameServer) *Adapter {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServerData.GameSocketURL = gs.wsURL()
	cfg.ApplicationData.Session.ReconnectBaseMS = 100
	cfg.ApplicationData.Session.ReconnectMaxMS = 200
	cfg.ApplicationData.Session.ReconnectMaxAttempts = 3
	return NewAdapter(cfg, &staticTokens{})
}

func recvFrame(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestConnectSendsInitHandshake(t *testing.T) {
	gs := newGameServer(t)
	a := newTestAdapter(t, gs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	defer a.Close()

	gs.accept(t)
	select {
	case init := <-gs.inits:
		if init.Type != "init" {
			t.Errorf("first frame type = %q, want init", init.Type)
		}
		if init.JWT != "test-jwt" {
			t.Errorf("jwt = %q, want test-jwt", init.JWT)
		}
		if init.ClientID != a.ClientID() {
			t.Errorf("clientId = %q, want %q", init.ClientID, a.ClientID())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no init frame received")
	}

	if a.Status() != StatusConnected {
		t.Errorf("status = %q, want connected", a.Status())
	}
}

func TestFramesCarryIncreasingSeq(t *testing.T) {
	gs := newGameServer(t)
	a := newTestAdapter(t, gs)
	frames := a.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	defer a.Close()

	server := gs.accept(t)
	server.WriteMessage(websocket.TextMessage, []byte(`{"type":"queue_joined"}`))
	server.WriteMessage(websocket.TextMessage, []byte(`{"type":"queue_timeout"}`))

	first := recvFrame(t, frames)
	second := recvFrame(t, frames)
	if second.Seq <= first.Seq {
		t.Errorf("seq not increasing: %d then %d", first.Seq, second.Seq)
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	gs := newGameServer(t)
	a := newTestAdapter(t, gs)
	frames := a.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	defer a.Close()

	first := gs.accept(t)
	<-gs.inits
	first.Close()

	// A second connection with a fresh handshake proves the reconnect.
	second := gs.accept(t)
	select {
	case init := <-gs.inits:
		if init.ClientID != a.ClientID() {
			t.Errorf("reconnect clientId = %q, want %q", init.ClientID, a.ClientID())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no init frame on reconnect")
	}

	second.WriteMessage(websocket.TextMessage, []byte(`{"type":"queue_joined"}`))
	f := recvFrame(t, frames)
	if f.Seq == 0 {
		t.Error("frame after reconnect has zero seq")
	}
}

func TestCloseSuppressesReconnect(t *testing.T) {
	gs := newGameServer(t)
	a := newTestAdapter(t, gs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	gs.accept(t)
	<-gs.inits
	a.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error after deliberate close: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	select {
	case <-gs.conns:
		t.Error("adapter reconnected after deliberate close")
	case <-time.After(500 * time.Millisecond):
	}
	if a.Status() != StatusDisconnected {
		t.Errorf("status = %q, want disconnected", a.Status())
	}
}

// blockingTokens parks the token fetch until the test releases it, so a Close
// can land while the connect attempt is suspended.
type blockingTokens struct {
	fetching chan struct{}
	release  chan struct{}
}

func (b *blockingTokens) Token(ctx context.Context) (string, error) {
	b.fetching <- struct{}{}
	<-b.release
	return "test-jwt", nil
}

func (b *blockingTokens) Invalidate() {}

func TestCloseDuringTokenFetch(t *testing.T) {
	gs := newGameServer(t)
	cfg := config.DefaultConfig()
	cfg.ServerData.GameSocketURL = gs.wsURL()
	cfg.ApplicationData.Session.ReconnectBaseMS = 100
	cfg.ApplicationData.Session.ReconnectMaxMS = 200
	cfg.ApplicationData.Session.ReconnectMaxAttempts = 3

	bt := &blockingTokens{
		fetching: make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	a := NewAdapter(cfg, bt)

	var mu sync.Mutex
	var seen []Status
	a.OnStatus(func(s Status, attempt uint64, err error) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case <-bt.fetching:
	case <-time.After(3 * time.Second):
		t.Fatal("token fetch never started")
	}

	a.Close()
	close(bt.release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error for a superseded attempt: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	if a.Status() != StatusDisconnected {
		t.Errorf("status = %q, want disconnected", a.Status())
	}
	mu.Lock()
	for _, s := range seen {
		if s == StatusConnected {
			t.Error("stale attempt reported connected after Close")
		}
	}
	mu.Unlock()

	// The stale attempt must not have dialed the server either.
	select {
	case <-gs.conns:
		t.Error("stale attempt reached the server after Close")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSendWithoutConnection(t *testing.T) {
	cfg := config.DefaultConfig()
	a := NewAdapter(cfg, &staticTokens{})

	err := a.Send(protocol.AbandonGameCommand())
	if err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestGiveUpAfterReconnectBudget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ServerData.GameSocketURL = "ws://127.0.0.1:1" // nothing listens here
	cfg.ApplicationData.Session.ReconnectBaseMS = 100
	cfg.ApplicationData.Session.ReconnectMaxMS = 100
	cfg.ApplicationData.Session.ReconnectMaxAttempts = 2
	a := NewAdapter(cfg, &staticTokens{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Run(ctx); err == nil {
		t.Fatal("expected error after exhausting the reconnect budget")
	}
	if a.Status() != StatusError {
		t.Errorf("status = %q, want error", a.Status())
	}
}
