package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServerData(&cfg.ServerData, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateServerData(data *ServerData, result *ValidationResult) {
	if strings.TrimSpace(data.Username) == "" {
		result.AddError("server_data.username", "username is required")
	}
	if strings.TrimSpace(data.Password) == "" {
		result.AddError("server_data.password", "password is required")
	}
	if strings.TrimSpace(data.DisplayName) == "" {
		result.AddWarning("server_data.display_name", "display name is empty, the username will be shown to opponents")
	}

	validateURL(data.GameSocketURL, "server_data.game_socket_url", []string{"ws", "wss"}, result)
	validateURL(data.AuthTokenURL, "server_data.auth_token_url", []string{"http", "https"}, result)

	if strings.TrimSpace(data.HistoryAPIURL) == "" {
		result.AddWarning("server_data.history_api_url", "history API URL is empty, leaderboard and history commands will be unavailable")
	} else {
		validateURL(data.HistoryAPIURL, "server_data.history_api_url", []string{"http", "https"}, result)
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	s := data.Session
	if s.ReconnectBaseMS < 100 {
		result.AddError("application_data.session.reconnect_base_ms", "reconnect base must be at least 100ms")
	}
	if s.ReconnectMaxMS < s.ReconnectBaseMS {
		result.AddError("application_data.session.reconnect_max_ms", "reconnect cap must be >= reconnect base")
	}
	if s.ReconnectMaxAttempts < 1 {
		result.AddError("application_data.session.reconnect_max_attempts", "at least one reconnect attempt is required")
	}
	if s.BotMoveDelayMS < 0 {
		result.AddError("application_data.session.bot_move_delay_ms", "bot move delay cannot be negative")
	}
	if s.BotMoveDelayMS > 5000 {
		result.AddWarning("application_data.session.bot_move_delay_ms",
			fmt.Sprintf("bot move delay of %dms will feel unresponsive", s.BotMoveDelayMS))
	}
	if s.RematchWindowSec < 1 {
		result.AddError("application_data.session.rematch_window_sec", "rematch window must be at least 1 second")
	}

	if data.API.Port < 1 || data.API.Port > 65535 {
		result.AddError("application_data.api.port", fmt.Sprintf("invalid port %d", data.API.Port))
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "broker URL is required when MQTT is enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", fmt.Sprintf("invalid port %d", data.MQTT.Port))
		}
		if data.MQTT.UseTLS && (data.MQTT.CertFile == "") != (data.MQTT.KeyFile == "") {
			result.AddError("application_data.mqtt", "cert_file and key_file must be set together")
		}
	}

	switch data.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		result.AddWarning("application_data.logging.level",
			fmt.Sprintf("unknown log level %q, falling back to info", data.Logging.Level))
	}
}

func validateURL(raw, field string, schemes []string, result *ValidationResult) {
	if strings.TrimSpace(raw) == "" {
		result.AddError(field, "URL is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid URL: %v", err))
		return
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return
		}
	}
	result.AddError(field, fmt.Sprintf("URL scheme must be one of %v, got %q", schemes, u.Scheme))
}
