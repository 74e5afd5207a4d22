// Package history reads the public leaderboard and recent-game feeds of the
// game backend. Read-only; game records are never written from here.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fourline-project/fourline/internal/config"
)

// ErrUnavailable means no history API endpoint is configured.
var ErrUnavailable = errors.New("history: no API endpoint configured")

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Rank    int     `json:"rank"`
	Player  string  `json:"player"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Draws   int     `json:"draws"`
	WinRate float64 `json:"winRate"`
}

// GameRecord is one finished game in the recent feed.
type GameRecord struct {
	GameID  string    `json:"gameId"`
	Player1 string    `json:"player1"`
	Player2 string    `json:"player2"`
	Winner  string    `json:"winner"`
	Reason  string    `json:"reason"`
	Mode    string    `json:"mode"`
	Moves   int       `json:"moves"`
	EndedAt time.Time `json:"endedAt"`
}

// Client fetches leaderboard and history data.
type Client struct {
	cfg    *config.Config
	client *http.Client
}

// NewClient creates a history API client.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Leaderboard fetches the top players, at most limit entries.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []LeaderboardEntry
	err := c.get(ctx, fmt.Sprintf("/leaderboard?limit=%d", limit), &entries)
	return entries, err
}

// RecentGames fetches a player's recent finished games.
func (c *Client) RecentGames(ctx context.Context, player string, limit int) ([]GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	path := fmt.Sprintf("/games?limit=%d", limit)
	if player != "" {
		path += "&player=" + url.QueryEscape(player)
	}
	var games []GameRecord
	err := c.get(ctx, path, &games)
	return games, err
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	base := strings.TrimRight(c.cfg.GetServerData().HistoryAPIURL, "/")
	if base == "" {
		return ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return fmt.Errorf("history: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("history: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("history: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history: endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("history: failed to parse response: %w", err)
	}
	return nil
}
