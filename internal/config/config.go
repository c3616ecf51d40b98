// Package config provides centralized configuration management.
// Every setting has a default here; environment variables override it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `env:"PORT"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
		CORSOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
	}
}

// =============================================================================
// GAME CONFIGURATION
// =============================================================================

// GameConfig holds match rules and the simulation clock.
type GameConfig struct {
	WinningScore    int    `env:"GAME_WINNING_SCORE"`
	MaxParticipants int    `env:"GAME_MAX_PARTICIPANTS"`
	TickRate        int    `env:"GAME_TICK_RATE"`       // Hz, continuous mode only
	SimulationMode  string `env:"GAME_SIMULATION_MODE"` // "input" or "continuous"
}

// DefaultGame returns the default game configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		WinningScore:    11,
		MaxParticipants: 2,
		TickRate:        60,
		SimulationMode:  "input",
	}
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Path string `env:"STORAGE_PATH"` // SQLite file; "none" disables persistence
}

// DefaultStorage returns the default storage configuration.
func DefaultStorage() StorageConfig {
	return StorageConfig{Path: "data/arena.db"}
}

// Enabled reports whether events are persisted.
func (c StorageConfig) Enabled() bool {
	return c.Path != "" && c.Path != "none"
}

// =============================================================================
// IDENTITY CONFIGURATION
// =============================================================================

// IdentityConfig holds token signing settings.
type IdentityConfig struct {
	Secret   string        `env:"IDENTITY_SECRET"`
	TokenTTL time.Duration `env:"IDENTITY_TOKEN_TTL"`
}

// DefaultIdentity returns the default identity configuration.
func DefaultIdentity() IdentityConfig {
	return IdentityConfig{TokenTTL: 24 * time.Hour}
}

// =============================================================================
// DOS PROTECTION LIMITS
// =============================================================================

// LimitsConfig controls DoS protection.
type LimitsConfig struct {
	RequestsPerSecond   float64 `env:"RATE_LIMIT_RPS"`
	Burst               int     `env:"RATE_LIMIT_BURST"`
	MaxWSConnections    int     `env:"WS_MAX_CONNECTIONS"`
	MaxWSPerIP          int     `env:"WS_MAX_PER_IP"`
	WSMessagesPerSecond float64 `env:"WS_MESSAGES_PER_SECOND"`
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		RequestsPerSecond:   10,
		Burst:               20,
		MaxWSConnections:    500,
		MaxWSPerIP:          10,
		WSMessagesPerSecond: 120,
	}
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig controls the internal debug server.
type ObservabilityConfig struct {
	DebugServerEnabled bool   `env:"DEBUG_SERVER_ENABLED"`
	DebugServerAddr    string `env:"DEBUG_SERVER_ADDR"`
}

// DefaultObservability returns the default observability configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		DebugServerEnabled: true,
		DebugServerAddr:    "127.0.0.1:6060",
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	Game          GameConfig
	Storage       StorageConfig
	Identity      IdentityConfig
	Limits        LimitsConfig
	Observability ObservabilityConfig
}

// Default returns the configuration with no environment applied.
func Default() AppConfig {
	return AppConfig{
		Server:        DefaultServer(),
		Game:          DefaultGame(),
		Storage:       DefaultStorage(),
		Identity:      DefaultIdentity(),
		Limits:        DefaultLimits(),
		Observability: DefaultObservability(),
	}
}

// Load returns the complete configuration with environment overrides.
func Load() (AppConfig, error) {
	return LoadFrom(environMap(os.Environ()))
}

// LoadFrom applies the given environment on top of the defaults.
func LoadFrom(environ map[string]string) (AppConfig, error) {
	cfg := Default()
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Game.WinningScore <= 0 {
		return fmt.Errorf("GAME_WINNING_SCORE must be positive, got %d", c.Game.WinningScore)
	}
	if c.Game.MaxParticipants != 2 {
		return fmt.Errorf("GAME_MAX_PARTICIPANTS must be 2, got %d", c.Game.MaxParticipants)
	}
	if c.Game.TickRate <= 0 || c.Game.TickRate > 1000 {
		return fmt.Errorf("GAME_TICK_RATE must be in 1-1000, got %d", c.Game.TickRate)
	}
	switch c.Game.SimulationMode {
	case "input", "continuous":
	default:
		return fmt.Errorf("GAME_SIMULATION_MODE must be input or continuous, got %q", c.Game.SimulationMode)
	}
	if c.Limits.RequestsPerSecond <= 0 || c.Limits.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.Limits.MaxWSConnections <= 0 || c.Limits.MaxWSPerIP <= 0 || c.Limits.WSMessagesPerSecond <= 0 {
		return fmt.Errorf("websocket limits must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
