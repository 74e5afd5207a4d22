package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fourline-project/fourline/internal/config"
	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/session"
)

// testServer stands in for the game backend: one endpoint issues tokens, the
// other accepts the websocket and hands the connection to the test.
type testServer struct {
	ws    *httptest.Server
	auth  *httptest.Server
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *websocket.Conn, 4)}

	ts.auth = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"token": "tok", "expiresIn": 600})
	}))
	t.Cleanup(ts.auth.Close)

	upgrader := websocket.Upgrader{}
	ts.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Swallow the init frame.
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.ws.Close)
	return ts
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func newTestClient(t *testing.T, ts *testServer) (*Client, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServerData.GameSocketURL = "ws" + strings.TrimPrefix(ts.ws.URL, "http")
	cfg.ServerData.AuthTokenURL = ts.auth.URL
	cfg.ServerData.Username = "tester"
	cfg.ServerData.Password = "secret"
	cfg.ApplicationData.Session.BotMoveDelayMS = 10
	cfg.ApplicationData.Session.RematchWindowSec = 1

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	return New(cfg, bus), bus
}

func emptyGridJSON() string {
	row := "[0,0,0,0,0,0,0]"
	rows := make([]string, 6)
	for i := range rows {
		rows[i] = row
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func waitForStatus(t *testing.T, c *Client, want session.Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Session().Status() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session never reached %q, still %q", want, c.Session().Status())
}

func TestEndToEndGameFlow(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	server := ts.accept(t)

	server.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"game_start","gameId":"g-1","board":`+emptyGridJSON()+
			`,"currentTurn":1,"yourPlayer":1,"opponent":"rival","mode":"pvp"}`))
	waitForStatus(t, c, session.StatusPlaying)

	if err := c.MakeMove(3); err != nil {
		t.Fatalf("move rejected: %v", err)
	}

	// The server echoes the move back as the authoritative snapshot.
	var cmd map[string]interface{}
	if err := server.ReadJSON(&cmd); err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if cmd["type"] != "make_move" || cmd["column"].(float64) != 3 {
		t.Fatalf("unexpected command: %v", cmd)
	}

	grid := strings.Replace(emptyGridJSON(), "[0,0,0,0,0,0,0]]", "[0,0,0,1,0,0,0]]", 1)
	server.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"move_made","board":`+grid+
			`,"lastMove":{"column":3,"row":5,"player":1},"nextTurn":2}`))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if snap := c.Snapshot(); snap.Session.LastMove != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap := c.Snapshot()
	if snap.Session.LastMove == nil || snap.Session.LastMove.Column != 3 {
		t.Fatalf("move never applied: %+v", snap.Session)
	}
	if snap.Session.MyTurn {
		t.Error("still my turn after moving")
	}

	server.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"game_over","winner":"player1","reason":"connect_four","allowRematch":true}`))
	waitForStatus(t, c, session.StatusFinished)

	snap = c.Snapshot()
	if snap.Session.Winner != "player1" || !snap.Session.AllowRematch {
		t.Errorf("final snapshot wrong: %+v", snap.Session)
	}
}

func TestMakeMoveOutOfTurn(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	server := ts.accept(t)
	server.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"game_start","gameId":"g-1","board":`+emptyGridJSON()+
			`,"currentTurn":2,"yourPlayer":1,"opponent":"rival","mode":"pvp"}`))
	waitForStatus(t, c, session.StatusPlaying)

	if err := c.MakeMove(3); err != ErrNotYourTurn {
		t.Errorf("err = %v, want ErrNotYourTurn", err)
	}
}

func TestFindMatchEntersQueueImmediately(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	server := ts.accept(t)

	if err := c.FindMatch("pvp", ""); err != nil {
		t.Fatalf("find match failed: %v", err)
	}
	if st := c.Session().Status(); st != session.StatusQueuing {
		t.Fatalf("status = %q right after the request, want queuing", st)
	}

	var cmd struct {
		Type string `json:"type"`
	}
	if err := server.ReadJSON(&cmd); err != nil || cmd.Type != "find_match" {
		t.Fatalf("command = %+v, err = %v", cmd, err)
	}

	// Cancelling must work before the server has confirmed the queue entry.
	if err := c.CancelSearch(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if err := server.ReadJSON(&cmd); err != nil || cmd.Type != "cancel_search" {
		t.Fatalf("command = %+v, err = %v", cmd, err)
	}
	waitForStatus(t, c, session.StatusIdle)
}

func TestFindMatchValidation(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts)

	if err := c.FindMatch("tournament", ""); err == nil {
		t.Error("unknown mode accepted")
	}
	if err := c.FindMatch("bot", "impossible"); err == nil {
		t.Error("unknown difficulty accepted")
	}
	// Valid but disconnected: the transport error surfaces, not a panic.
	if err := c.FindMatch("pvp", ""); err == nil {
		t.Error("find_match succeeded without a connection")
	}
}

func TestBadFramesDropped(t *testing.T) {
	ts := newTestServer(t)
	c, _ := newTestClient(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	server := ts.accept(t)
	server.WriteMessage(websocket.TextMessage, []byte(`{"type":"something_new","x":1}`))
	server.WriteMessage(websocket.TextMessage, []byte(`not even json`))
	server.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"game_start","gameId":"g-1","board":`+emptyGridJSON()+
			`,"currentTurn":1,"yourPlayer":1,"opponent":"rival"}`))

	// The garbage before it did not take the session down.
	waitForStatus(t, c, session.StatusPlaying)
}
