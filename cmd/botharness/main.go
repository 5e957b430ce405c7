// BotHarness orchestrator server - spawns fleets of synthetic game
// clients, drives them through task routes, and reports results over an
// HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Mathih13/botharness/pkg/admin"
	"github.com/Mathih13/botharness/pkg/api"
	"github.com/Mathih13/botharness/pkg/bot"
	"github.com/Mathih13/botharness/pkg/config"
	"github.com/Mathih13/botharness/pkg/coordinator"
	"github.com/Mathih13/botharness/pkg/events"
	"github.com/Mathih13/botharness/pkg/models"
	"github.com/Mathih13/botharness/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("BOTHARNESS_CONFIG", ""),
		"Path to the YAML configuration file (empty for defaults)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	httpPort := getEnv("HTTP_PORT", "8090")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	ctx := context.Background()

	// State store is optional: without it, snapshot operations degrade to
	// warnings and prerequisite quests are not persisted.
	var stateStore store.Store
	if os.Getenv("DB_HOST") != "" {
		dbCfg, err := store.LoadConfigFromEnv()
		if err != nil {
			log.Fatalf("Failed to load database config: %v", err)
		}
		db, err := store.Open(ctx, dbCfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				slog.Error("Error closing database", "error", err)
			}
		}()
		stateStore = store.NewSnapshotManager(db)
		slog.Info("Connected to state store", "host", dbCfg.Host, "database", dbCfg.Database)
	} else {
		slog.Warn("DB_HOST not set, running without a state store")
	}

	adminPool := admin.NewPool(cfg.Admin.PoolSize, func() admin.Channel {
		return admin.NewTCPChannel(cfg.Admin.Address, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.DialTimeout.Std())
	})
	defer adminPool.Close()

	provisioner := bot.NewProvisioner(adminPool, cfg.Harness.AccountPassword)
	factory := &bot.StubFactory{Provisioner: provisioner}

	broadcaster := events.NewBroadcaster()
	broadcaster.Subscribe(loggingListener())

	runCoordinator := coordinator.NewRunCoordinator(cfg.RoutesDir, cfg.Harness, coordinator.Services{
		Bots:        factory,
		Store:       stateStore,
		Broadcaster: broadcaster,
	})
	suiteCoordinator := coordinator.NewSuiteCoordinator(cfg.RoutesDir, runCoordinator)

	server := api.NewServer(runCoordinator, suiteCoordinator)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(":" + httpPort) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
	}
}

// loggingListener mirrors coordinator events into the structured log.
func loggingListener() events.Listener {
	return events.Listener{
		OnTestRunStarted: func(run models.TestRunView) {
			slog.Info("Test run started", "run_id", run.ID, "route", run.RouteName)
		},
		OnTestRunCompleted: func(run models.TestRunView) {
			slog.Info("Test run completed", "run_id", run.ID, "status", run.Status,
				"passed", run.BotsPassed, "failed", run.BotsFailed)
		},
		OnSuiteCompleted: func(s models.TestSuiteRunView) {
			slog.Info("Suite completed", "suite_id", s.ID, "status", s.Status,
				"passed", s.TestsPassed, "failed", s.TestsFailed, "skipped", s.TestsSkipped)
		},
	}
}
