package db

import (
	"database/sql"
	"fmt"
)

// Result is the local player's outcome of one finished game.
type Result string

const (
	ResultWin     Result = "win"
	ResultLoss    Result = "loss"
	ResultDraw    Result = "draw"
	ResultAbandon Result = "abandon"
)

// Profile is the locally tracked record for one account.
type Profile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
	Draws       int    `json:"draws"`
	Abandons    int    `json:"abandons"`
	UpdatedAt   string `json:"updated_at"`
}

// Games returns the total number of recorded games.
func (p *Profile) Games() int {
	return p.Wins + p.Losses + p.Draws + p.Abandons
}

// UpsertProfile creates the profile row or refreshes its display name.
func (d *Database) UpsertProfile(username, displayName string) error {
	_, err := d.Exec(`
		INSERT INTO profiles (username, display_name) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at = datetime('now')`,
		username, displayName)
	if err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", username, err)
	}
	return nil
}

// GetProfile loads the profile row for an account.
func (d *Database) GetProfile(username string) (*Profile, error) {
	p := &Profile{}
	err := d.QueryRow(`
		SELECT username, display_name, wins, losses, draws, abandons, updated_at
		FROM profiles WHERE username = ?`, username).
		Scan(&p.Username, &p.DisplayName, &p.Wins, &p.Losses, &p.Draws, &p.Abandons, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", username, err)
	}
	return p, nil
}

// RecordResult increments the lifetime counter for one finished game.
func (d *Database) RecordResult(username string, result Result) error {
	var column string
	switch result {
	case ResultWin:
		column = "wins"
	case ResultLoss:
		column = "losses"
	case ResultDraw:
		column = "draws"
	case ResultAbandon:
		column = "abandons"
	default:
		return fmt.Errorf("unknown result %q", result)
	}

	res, err := d.Exec(fmt.Sprintf(`
		UPDATE profiles SET %s = %s + 1, updated_at = datetime('now')
		WHERE username = ?`, column, column), username)
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", result, username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no profile for %s", username)
	}
	return nil
}

// GetSetting reads one settings value; ok is false when the key is absent.
func (d *Database) GetSetting(key string) (value string, ok bool, err error) {
	err = d.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting writes one settings value.
func (d *Database) SetSetting(key, value string) error {
	_, err := d.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
