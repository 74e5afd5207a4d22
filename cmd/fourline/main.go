// Fourline - Connect Four session daemon
//
// Fourline maintains the player's connection to the game backend, keeps the
// client-side view of the running game, exposes a local REST API for UIs,
// provides an interactive CLI, and optionally publishes telemetry via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fourline-project/fourline/internal/api"
	"github.com/fourline-project/fourline/internal/cli"
	"github.com/fourline-project/fourline/internal/client"
	"github.com/fourline-project/fourline/internal/config"
	"github.com/fourline-project/fourline/internal/db"
	"github.com/fourline-project/fourline/internal/events"
	"github.com/fourline-project/fourline/internal/history"
	"github.com/fourline-project/fourline/internal/telemetry"
	"github.com/fourline-project/fourline/internal/util"
)

const (
	AppName    = "Fourline"
	AppVersion = "1.0.0"
	Banner     = `
  ______                 _ _
 |  ____|               | (_)
 | |__ ___  _   _ _ __  | |_ _ __   ___
 |  __/ _ \| | | | '__| | | | '_ \ / _ \
 | | | (_) | |_| | |    | | | | | |  __/
 |_|  \___/ \__,_|_|    |_|_|_| |_|\___| v%s
 Connect Four session daemon
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Defaults first; reconfigured after the config loads.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting Fourline")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appData := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Int("cores", sysInfo.CPUCores).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	// Local profile store. Non-fatal: play works without lifetime counters.
	var database *db.Database
	database, err = db.NewDatabase("config/fourline.db")
	if err != nil {
		log.Warn().Err(err).Msg("profile store unavailable, lifetime counters disabled")
		database = nil
	} else {
		server := cfg.GetServerData()
		displayName := server.DisplayName
		if displayName == "" {
			displayName = server.Username
		}
		if _, err := db.NewStatsRecorder(database, eventBus, server.Username, displayName); err != nil {
			log.Warn().Err(err).Msg("stats recorder setup failed")
		}
	}

	gameClient := client.New(cfg, eventBus)
	histClient := history.NewClient(cfg)
	apiServer := api.NewServer(cfg, eventBus, gameClient, database, histClient)
	cliHandler := cli.NewCLI(cfg, eventBus, gameClient, database, histClient)

	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Task 1: game server connection and session
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting game client")
		if err := gameClient.Run(ctx); err != nil {
			errCh <- fmt.Errorf("game client: %w", err)
		}
	}()

	// Task 2: local REST API
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", appData.API.Port).Msg("starting REST API server")
		if err := apiServer.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("API server failed (non-fatal)")
		}
	}()

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// Graceful shutdown: signal, CLI quit, or a fatal client error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownCh := make(chan struct{})
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, e events.Event) error {
		select {
		case <-shutdownCh:
		default:
			close(shutdownCh)
		}
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	gameClient.Close()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timed out after 15 seconds, forcing exit")
	}

	if database != nil {
		database.Close()
	}
	eventBus.Stop()

	log.Info().Msg("Fourline stopped")
}
