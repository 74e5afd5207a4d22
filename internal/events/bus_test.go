package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitForCount(t *testing.T, counter *int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("handler count = %d, want %d", atomic.LoadInt32(counter), want)
}

func TestEmitReachesAllHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls int32
	bus.Subscribe(EventNotice, "first", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	bus.Subscribe(EventNotice, "second", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventNotice, Source: "test"})
	waitForCount(t, &calls, 2)
}

func TestEmitIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls int32
	bus.Subscribe(EventGameOver, "counter", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventNotice, Source: "test"})
	bus.Emit(context.Background(), Event{Type: EventGameOver, Source: "test"})
	waitForCount(t, &calls, 1)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls int32
	bus.Subscribe(EventNotice, "gone", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if bus.HandlerCount(EventNotice) != 1 {
		t.Fatalf("handler count = %d", bus.HandlerCount(EventNotice))
	}

	bus.Unsubscribe(EventNotice, "gone")
	if bus.HandlerCount(EventNotice) != 0 {
		t.Fatalf("handler count after unsubscribe = %d", bus.HandlerCount(EventNotice))
	}

	bus.Emit(context.Background(), Event{Type: EventNotice, Source: "test"})
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("unsubscribed handler was still called")
	}
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	wantErr := errors.New("handler failed")
	bus.Subscribe(EventNotice, "ok", func(ctx context.Context, e Event) error {
		return nil
	})
	bus.Subscribe(EventNotice, "failing", func(ctx context.Context, e Event) error {
		return wantErr
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventNotice}); !errors.Is(err, wantErr) {
		t.Errorf("EmitSync error = %v, want %v", err, wantErr)
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls int32
	bus.Subscribe(EventNotice, "panics", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe(EventNotice, "survives", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventNotice}); err != nil {
		t.Errorf("EmitSync error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Error("panic in one handler starved the other")
	}
}

func TestStopDropsNewEvents(t *testing.T) {
	bus := NewEventBus()

	var calls int32
	bus.Subscribe(EventNotice, "counter", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	bus.Stop()

	select {
	case <-bus.StopCh():
	default:
		t.Error("StopCh not closed after Stop")
	}

	bus.Emit(context.Background(), Event{Type: EventNotice})
	if err := bus.EmitSync(context.Background(), Event{Type: EventNotice}); err != nil {
		t.Errorf("EmitSync after Stop = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("event delivered after Stop")
	}

	// Stop is idempotent.
	bus.Stop()
}

func TestEventPayloadDelivered(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	got := make(chan Event, 1)
	bus.Subscribe(EventGameOver, "capture", func(ctx context.Context, e Event) error {
		got <- e
		return nil
	})

	payload := GameOverPayload{GameID: "g-1", Winner: "player1", Reason: "connect4", MyPlayer: 1}
	bus.Emit(context.Background(), Event{Type: EventGameOver, Source: "session", Payload: payload})

	select {
	case e := <-got:
		p, ok := e.Payload.(GameOverPayload)
		if !ok {
			t.Fatalf("payload type = %T", e.Payload)
		}
		if p.GameID != "g-1" || p.Winner != "player1" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
