package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║          Fourline - First Run Setup          ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── Account ──")
	cfg.ServerData.Username = promptString(reader, "Account username", cfg.ServerData.Username)
	cfg.ServerData.Password = promptString(reader, "Account password", "")
	cfg.ServerData.DisplayName = promptString(reader, "Display name shown to opponents", cfg.ServerData.Username)

	fmt.Println()
	fmt.Println("── Server ──")
	cfg.ServerData.GameSocketURL = promptString(reader, "Game websocket URL", cfg.ServerData.GameSocketURL)
	cfg.ServerData.AuthTokenURL = promptString(reader, "Auth token URL", cfg.ServerData.AuthTokenURL)
	cfg.ServerData.HistoryAPIURL = promptString(reader, "History API URL", cfg.ServerData.HistoryAPIURL)

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	log.Info().Str("path", cfg.Path()).Msg("setup complete, configuration saved")
	return nil
}

func promptString(reader *bufio.Reader, prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Printf("%s: ", prompt)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return defaultValue
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue
	}
	return line
}
