// Package config handles configuration loading, validation, and persistence
// for the Fourline session client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5600
)

// Config is the root configuration structure for Fourline.
type Config struct {
	mu   sync.RWMutex
	path string

	ServerData      ServerData      `json:"server_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerData contains the backend endpoints and the player identity.
type ServerData struct {
	// Endpoints
	GameSocketURL string `json:"game_socket_url"` // ws(s):// endpoint carrying game frames
	AuthTokenURL  string `json:"auth_token_url"`  // token-issuing endpoint
	HistoryAPIURL string `json:"history_api_url"` // read-only history/leaderboard API

	// Credentials
	Username string `json:"username"`
	Password string `json:"password"`

	// Identity
	DisplayName string `json:"display_name"`
}

// ApplicationData contains client application configuration.
type ApplicationData struct {
	Session SessionConfig `json:"session"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
}

// SessionConfig holds reconnect and presentation timing settings.
type SessionConfig struct {
	ReconnectBaseMS      int `json:"reconnect_base_ms"`
	ReconnectMaxMS       int `json:"reconnect_max_ms"`
	ReconnectMaxAttempts int `json:"reconnect_max_attempts"`
	BotMoveDelayMS       int `json:"bot_move_delay_ms"`
	RematchWindowSec     int `json:"rematch_window_sec"`
}

// APIConfig holds the local HTTP API settings.
type APIConfig struct {
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	ClientID  string `json:"client_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerData: ServerData{
			GameSocketURL: "wss://play.fourline.gg/ws",
			AuthTokenURL:  "https://play.fourline.gg/api/auth/token",
			HistoryAPIURL: "https://play.fourline.gg/api",
		},
		ApplicationData: ApplicationData{
			Session: SessionConfig{
				ReconnectBaseMS:      1000,
				ReconnectMaxMS:       30000,
				ReconnectMaxAttempts: 10,
				BotMoveDelayMS:       800,
				RematchWindowSec:     10,
			},
			API: APIConfig{
				Port: DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file, overlaying defaults, and applies
// environment overrides for credentials.
func Load(configDir string) (*Config, error) {
	// Credentials may live in a .env next to the binary instead of config.json.
	_ = godotenv.Load()

	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			cfg.applyEnvOverrides()
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	cfg.applyEnvOverrides()
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// applyEnvOverrides lets credentials and endpoints be supplied via environment
// variables so they never have to be written to config.json.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FOURLINE_USERNAME"); v != "" {
		c.ServerData.Username = v
	}
	if v := os.Getenv("FOURLINE_PASSWORD"); v != "" {
		c.ServerData.Password = v
	}
	if v := os.Getenv("FOURLINE_SOCKET_URL"); v != "" {
		c.ServerData.GameSocketURL = v
	}
	if v := os.Getenv("FOURLINE_AUTH_URL"); v != "" {
		c.ServerData.AuthTokenURL = v
	}
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServerData returns a copy of the server data configuration.
func (c *Config) GetServerData() ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerData
}

// SetServerData updates the server data configuration.
func (c *Config) SetServerData(data ServerData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerData.Username == "" || c.ServerData.DisplayName == ""
}
