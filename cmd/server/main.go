package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"paddle-arena/internal/api"
	"paddle-arena/internal/config"
	"paddle-arena/internal/hub"
	"paddle-arena/internal/identity"
	"paddle-arena/internal/persistence"
	"paddle-arena/internal/persistence/sqlite"
	"paddle-arena/internal/render"
	"paddle-arena/internal/session"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  PADDLE ARENA")
	log.Println("🎮 ================================")

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	gameCfg := appConfig.Game
	limits := appConfig.Limits

	mode, _ := session.ParseSimulationMode(gameCfg.SimulationMode)
	log.Printf("🎮 Config: first to %d, %s mode, %d Hz clock", gameCfg.WinningScore, mode, gameCfg.TickRate)
	log.Printf("🛡️ Resource limits: %d ws connections, %d per IP, %.0f msg/s per channel",
		limits.MaxWSConnections, limits.MaxWSPerIP, limits.WSMessagesPerSecond)

	// Persistence: sqlite behind the write-behind outbox
	store, closeStore := openStore(appConfig.Storage)
	outbox := persistence.NewOutbox(store)
	outbox.Start()

	// Start debug server
	debugServer := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:    appConfig.Observability.DebugServerEnabled,
		ListenAddr: appConfig.Observability.DebugServerAddr,
	})

	if appConfig.Identity.Secret == "" {
		log.Println("⚠️ WARNING: IDENTITY_SECRET not set!")
	}
	tokens := identity.NewTokenProvider(appConfig.Identity.Secret, appConfig.Identity.TokenTTL)

	channels := hub.New()
	registry := session.NewRegistry(session.Config{
		WinningScore:    gameCfg.WinningScore,
		MaxParticipants: gameCfg.MaxParticipants,
		Mode:            mode,
		TickRate:        gameCfg.TickRate,
		Hub:             channels,
		Recorder:        outbox,
	})

	server := api.NewServer(api.RouterConfig{
		Registry: registry,
		Identity: tokens,
		Guests:   tokens,
		Hub:      channels,
		Outbox:   outbox,
		Court:    render.NewCourt(),
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: limits.RequestsPerSecond,
			Burst:             limits.Burst,
		},
		CORSOrigins: appConfig.Server.CORSOrigins,
	}, api.WSConfig{
		MaxConnections:    limits.MaxWSConnections,
		MaxPerIP:          limits.MaxWSPerIP,
		MessagesPerSecond: limits.WSMessagesPerSecond,
	})

	// Start API server in goroutine
	go func() {
		if err := server.Start(appConfig.Server.Addr()); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("⚠️ API server shutdown: %v", err)
	}
	registry.Close()
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}
	outbox.Stop()
	log.Printf("💾 Outbox drained: %v", outbox.GetStats())
	closeStore()
	log.Println("👋 Goodbye!")
}

// openStore opens the sqlite store, falling back to no persistence when it
// is disabled or cannot be opened
func openStore(cfg config.StorageConfig) (persistence.Store, func()) {
	if !cfg.Enabled() {
		log.Println("💾 Persistence disabled")
		return persistence.NopStore{}, func() {}
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("⚠️ Persistence disabled: %v", err)
			return persistence.NopStore{}, func() {}
		}
	}
	store, err := sqlite.Open(cfg.Path)
	if err != nil {
		log.Printf("⚠️ Persistence disabled: %v", err)
		return persistence.NopStore{}, func() {}
	}
	log.Printf("💾 Persisting sessions to %s", cfg.Path)
	return store, func() {
		if err := store.Close(); err != nil {
			log.Printf("⚠️ Store close: %v", err)
		}
	}
}
