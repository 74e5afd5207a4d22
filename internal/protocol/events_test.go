package protocol

import (
	"errors"
	"strings"
	"testing"
)

func validGrid() string {
	row := "[0,0,0,0,0,0,0]"
	rows := make([]string, 6)
	for i := range rows {
		rows[i] = row
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func TestDecodeGameStart(t *testing.T) {
	data := `{"type":"game_start","gameId":"g-123","board":` + validGrid() +
		`,"currentTurn":1,"yourPlayer":2,"opponent":"alice","mode":"pvp"}`

	ev, err := DecodeServerEvent([]byte(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	start, ok := ev.(*GameStartEvent)
	if !ok {
		t.Fatalf("expected *GameStartEvent, got %T", ev)
	}
	if start.GameID != "g-123" {
		t.Errorf("gameId = %q, want g-123", start.GameID)
	}
	if start.YourPlayer != 2 {
		t.Errorf("yourPlayer = %d, want 2", start.YourPlayer)
	}
	if start.Opponent != "alice" {
		t.Errorf("opponent = %q, want alice", start.Opponent)
	}
	if ev.Kind() != KindGameStart {
		t.Errorf("kind = %q, want %q", ev.Kind(), KindGameStart)
	}
}

func TestDecodeMoveMade(t *testing.T) {
	data := `{"type":"move_made","board":` + validGrid() +
		`,"lastMove":{"column":3,"row":5,"player":1},"nextTurn":2}`

	ev, err := DecodeServerEvent([]byte(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	move := ev.(*MoveMadeEvent)
	if move.LastMove.Column != 3 || move.LastMove.Row != 5 || move.LastMove.Player != 1 {
		t.Errorf("lastMove = %+v, want {3 5 1}", *move.LastMove)
	}
	if move.NextTurn != 2 {
		t.Errorf("nextTurn = %d, want 2", move.NextTurn)
	}
}

func TestDecodeMoveMadeMissingLastMove(t *testing.T) {
	data := `{"type":"move_made","board":` + validGrid() + `,"nextTurn":2}`

	if _, err := DecodeServerEvent([]byte(data)); err == nil {
		t.Fatal("expected error for missing lastMove")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := DecodeServerEvent([]byte(`{"type":"server_announcement","message":"hi"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	if _, err := DecodeServerEvent([]byte(`{"type":"game_over",`)); err == nil {
		t.Fatal("expected error for truncated frame")
	}
	if _, err := DecodeServerEvent([]byte(`{"message":"no type"}`)); err == nil {
		t.Fatal("expected error for missing discriminant")
	}
}

func TestDecodeBadBoardShape(t *testing.T) {
	cases := []struct {
		name  string
		board string
	}{
		{"too few rows", `[[0,0,0,0,0,0,0]]`},
		{"short row", `[[0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0],[0,0,0,0,0,0,0]]`},
		{"bad cell value", strings.Replace(validGrid(), "[0,0,0,0,0,0,0]", "[0,0,0,9,0,0,0]", 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := `{"type":"game_state","board":` + tc.board + `,"currentTurn":1}`
			if _, err := DecodeServerEvent([]byte(data)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDecodeGameStateRefreshVersusReinit(t *testing.T) {
	refresh := `{"type":"game_state","board":` + validGrid() + `,"currentTurn":2}`
	ev, err := DecodeServerEvent([]byte(refresh))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st := ev.(*GameStateEvent); st.GameID != "" || st.YourPlayer != 0 {
		t.Errorf("refresh frame should carry no identity, got %+v", st)
	}

	reinit := `{"type":"game_state","gameId":"g-9","yourPlayer":1,"board":` + validGrid() +
		`,"currentTurn":1,"opponent":"bob"}`
	ev, err = DecodeServerEvent([]byte(reinit))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st := ev.(*GameStateEvent); st.GameID != "g-9" || st.YourPlayer != 1 {
		t.Errorf("reinit frame lost identity: %+v", st)
	}
}

func TestDecodeGameStateWithWinner(t *testing.T) {
	data := `{"type":"game_state","board":` + validGrid() +
		`,"currentTurn":1,"winner":"draw","reason":"board_full"}`

	ev, err := DecodeServerEvent([]byte(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if st := ev.(*GameStateEvent); st.Winner != "draw" {
		t.Errorf("winner = %q, want draw", st.Winner)
	}
}

func TestDecodeGameOver(t *testing.T) {
	data := `{"type":"game_over","winner":"player1","reason":"connect_four","allowRematch":true}`

	ev, err := DecodeServerEvent([]byte(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	over := ev.(*GameOverEvent)
	if over.Winner != "player1" || over.Reason != "connect_four" {
		t.Errorf("unexpected payload: %+v", over)
	}
	if !over.Rematch() {
		t.Error("allowRematch=true should report Rematch()")
	}

	noFlag := `{"type":"game_over","winner":"player2","reason":"opponent_abandoned"}`
	ev, err = DecodeServerEvent([]byte(noFlag))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.(*GameOverEvent).Rematch() {
		t.Error("absent allowRematch should not report Rematch()")
	}
}

func TestDecodeOpponentDisconnected(t *testing.T) {
	ev, err := DecodeServerEvent([]byte(`{"type":"opponent_disconnected","disconnectTimeout":30}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if d := ev.(*OpponentDisconnectedEvent); d.DisconnectTimeout != 30 {
		t.Errorf("disconnectTimeout = %d, want 30", d.DisconnectTimeout)
	}

	if _, err := DecodeServerEvent([]byte(`{"type":"opponent_disconnected","disconnectTimeout":0}`)); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}
}

func TestErrorEventSessionInvalid(t *testing.T) {
	cases := map[string]bool{
		"invalid_token":   true,
		"token_expired":   true,
		"session_expired": true,
		"unauthorized":    true,
		"invalid_move":    false,
		"":                false,
	}
	for code, want := range cases {
		e := &ErrorEvent{Message: "x", Code: code}
		if got := e.SessionInvalid(); got != want {
			t.Errorf("SessionInvalid(%q) = %v, want %v", code, got, want)
		}
	}
}
