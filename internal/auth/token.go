// Package auth implements the HTTP token client used to authenticate the
// game socket connection.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fourline-project/fourline/internal/config"
)

const (
	requestTimeout = 15 * time.Second

	// Cached tokens are discarded this long before their stated expiry so a
	// token never goes stale mid-handshake.
	expirySlack = 30 * time.Second
)

// TokenClient fetches and caches short-lived JWTs from the auth endpoint.
// A cached token is reused across reconnect attempts until it expires or a
// server-side auth error invalidates it.
type TokenClient struct {
	mu sync.Mutex

	cfg    *config.Config
	client *http.Client

	token   string
	expires time.Time
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// NewTokenClient creates a token client bound to the configured auth endpoint.
func NewTokenClient(cfg *config.Config) *TokenClient {
	return &TokenClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Token returns a valid JWT, fetching a fresh one if the cache is empty or
// within the expiry slack.
func (c *TokenClient) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expires) > expirySlack {
		return c.token, nil
	}
	return c.fetchLocked(ctx)
}

// Invalidate drops the cached token. The next Token call hits the endpoint.
// Called when the server rejects the session (expired or revoked token).
func (c *TokenClient) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		log.Debug().Msg("auth token invalidated")
	}
	c.token = ""
	c.expires = time.Time{}
}

func (c *TokenClient) fetchLocked(ctx context.Context) (string, error) {
	server := c.cfg.GetServerData()

	payload, err := json.Marshal(tokenRequest{
		Username: server.Username,
		Password: server.Password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.AuthTokenURL,
		bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d: %s",
			resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}

	c.token = tr.Token
	if tr.ExpiresIn > 0 {
		c.expires = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	} else {
		// No expiry hint, assume a short-lived token.
		c.expires = time.Now().Add(5 * time.Minute)
	}

	log.Debug().Time("expires", c.expires).Msg("auth token fetched")
	return c.token, nil
}
