package config

import "testing"

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.ServerData.Username = "tester"
	cfg.ServerData.Password = "secret"
	cfg.ServerData.DisplayName = "Tester"
	return cfg
}

func hasError(r *ValidationResult, field string) bool {
	for _, e := range r.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidConfigPasses(t *testing.T) {
	result := Validate(validConfig())
	if !result.IsValid() {
		t.Fatalf("default config with credentials should be valid: %+v", result.Errors)
	}
}

func TestMissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.ServerData.Username = ""
	cfg.ServerData.Password = " "

	result := Validate(cfg)
	if result.IsValid() {
		t.Fatal("missing credentials passed validation")
	}
	if !hasError(result, "server_data.username") || !hasError(result, "server_data.password") {
		t.Errorf("errors = %+v", result.Errors)
	}
}

func TestSocketURLScheme(t *testing.T) {
	cfg := validConfig()
	cfg.ServerData.GameSocketURL = "https://play.example.com/ws"

	result := Validate(cfg)
	if !hasError(result, "server_data.game_socket_url") {
		t.Error("http scheme accepted for the websocket URL")
	}

	cfg.ServerData.GameSocketURL = "wss://play.example.com/ws"
	if result := Validate(cfg); hasError(result, "server_data.game_socket_url") {
		t.Error("wss scheme rejected")
	}
}

func TestReconnectBounds(t *testing.T) {
	cfg := validConfig()
	cfg.ApplicationData.Session.ReconnectBaseMS = 50
	cfg.ApplicationData.Session.ReconnectMaxMS = 40
	cfg.ApplicationData.Session.ReconnectMaxAttempts = 0

	result := Validate(cfg)
	for _, field := range []string{
		"application_data.session.reconnect_base_ms",
		"application_data.session.reconnect_max_ms",
		"application_data.session.reconnect_max_attempts",
	} {
		if !hasError(result, field) {
			t.Errorf("expected error for %s", field)
		}
	}
}

func TestBotDelayWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.ApplicationData.Session.BotMoveDelayMS = -1
	if result := Validate(cfg); !hasError(result, "application_data.session.bot_move_delay_ms") {
		t.Error("negative delay accepted")
	}

	cfg.ApplicationData.Session.BotMoveDelayMS = 9000
	result := Validate(cfg)
	if hasError(result, "application_data.session.bot_move_delay_ms") {
		t.Error("long delay treated as an error instead of a warning")
	}
	if len(result.Warnings) == 0 {
		t.Error("no warning for an extreme delay")
	}
}

func TestMQTTValidation(t *testing.T) {
	cfg := validConfig()
	cfg.ApplicationData.MQTT.Enabled = true
	cfg.ApplicationData.MQTT.BrokerURL = ""
	cfg.ApplicationData.MQTT.UseTLS = true
	cfg.ApplicationData.MQTT.CertFile = "client.crt"
	cfg.ApplicationData.MQTT.KeyFile = ""

	result := Validate(cfg)
	if !hasError(result, "application_data.mqtt.broker_url") {
		t.Error("enabled MQTT without a broker accepted")
	}
	if !hasError(result, "application_data.mqtt") {
		t.Error("half a TLS cert pair accepted")
	}

	// Disabled MQTT skips all of it.
	cfg.ApplicationData.MQTT.Enabled = false
	if result := Validate(cfg); hasError(result, "application_data.mqtt.broker_url") {
		t.Error("disabled MQTT still validated")
	}
}
