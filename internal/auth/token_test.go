package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fourline-project/fourline/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*TokenClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.ServerData.AuthTokenURL = srv.URL
	cfg.ServerData.Username = "tester"
	cfg.ServerData.Password = "secret"

	return NewTokenClient(cfg), srv
}

func TestTokenFetchAndCache(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Username != "tester" || req.Password != "secret" {
			t.Errorf("credentials not forwarded: %+v", req)
		}

		json.NewEncoder(w).Encode(tokenResponse{Token: "jwt-abc", ExpiresIn: 600})
	})

	ctx := context.Background()

	tok, err := client.Token(ctx)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if tok != "jwt-abc" {
		t.Errorf("token = %q, want jwt-abc", tok)
	}

	if _, err := client.Token(ctx); err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 endpoint call, got %d", n)
	}
}

func TestTokenInvalidateForcesRefetch(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(tokenResponse{Token: "jwt-" + string(rune('0'+n)), ExpiresIn: 600})
	})

	ctx := context.Background()
	first, err := client.Token(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	client.Invalidate()

	second, err := client.Token(ctx)
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if first == second {
		t.Error("invalidate did not force a fresh token")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 endpoint calls, got %d", n)
	}
}

func TestTokenEndpointError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	if _, err := client.Token(context.Background()); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestTokenEmptyBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{})
	})

	if _, err := client.Token(context.Background()); err == nil {
		t.Fatal("expected error on empty token")
	}
}
