package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Game.WinningScore != 11 || cfg.Game.MaxParticipants != 2 {
		t.Errorf("Game = %+v", cfg.Game)
	}
	if cfg.Game.SimulationMode != "input" {
		t.Errorf("SimulationMode = %q, want input", cfg.Game.SimulationMode)
	}
	if cfg.Identity.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v", cfg.Identity.TokenTTL)
	}
	if !cfg.Storage.Enabled() {
		t.Error("persistence should be enabled by default")
	}
	if cfg.Server.Addr() != ":3000" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PORT":                   "8080",
		"CORS_ORIGINS":           "https://a.example,https://b.example",
		"GAME_WINNING_SCORE":     "5",
		"GAME_TICK_RATE":         "120",
		"GAME_SIMULATION_MODE":   "continuous",
		"STORAGE_PATH":           "none",
		"IDENTITY_SECRET":        "s3cret",
		"IDENTITY_TOKEN_TTL":     "90m",
		"WS_MAX_PER_IP":          "3",
		"WS_MESSAGES_PER_SECOND": "30.5",
		"DEBUG_SERVER_ENABLED":   "false",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Server.CORSOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("CORSOrigins = %q", got)
	}
	if cfg.Game.WinningScore != 5 || cfg.Game.TickRate != 120 || cfg.Game.SimulationMode != "continuous" {
		t.Errorf("Game = %+v", cfg.Game)
	}
	if cfg.Storage.Enabled() {
		t.Errorf("Storage.Path = %q, want persistence disabled", cfg.Storage.Path)
	}
	if cfg.Identity.Secret != "s3cret" || cfg.Identity.TokenTTL != 90*time.Minute {
		t.Errorf("Identity = %+v", cfg.Identity)
	}
	if cfg.Limits.MaxWSPerIP != 3 || cfg.Limits.WSMessagesPerSecond != 30.5 {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
	if cfg.Limits.MaxWSConnections != 500 {
		t.Errorf("untouched MaxWSConnections = %d, want default", cfg.Limits.MaxWSConnections)
	}
	if cfg.Observability.DebugServerEnabled {
		t.Error("debug server should be disabled")
	}
}

func TestLoadFromRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "70000"}},
		{"unparseable port", map[string]string{"PORT": "abc"}},
		{"zero winning score", map[string]string{"GAME_WINNING_SCORE": "0"}},
		{"three players", map[string]string{"GAME_MAX_PARTICIPANTS": "3"}},
		{"unknown mode", map[string]string{"GAME_SIMULATION_MODE": "turbo"}},
		{"zero tick rate", map[string]string{"GAME_TICK_RATE": "0"}},
		{"bad ttl", map[string]string{"IDENTITY_TOKEN_TTL": "soon"}},
		{"zero ws cap", map[string]string{"WS_MAX_CONNECTIONS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrom(tt.env); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEnvironMap(t *testing.T) {
	m := environMap([]string{"A=1", "B=x=y", "NOEQUALS"})
	if m["A"] != "1" || m["B"] != "x=y" {
		t.Errorf("environMap = %v", m)
	}
	if _, ok := m["NOEQUALS"]; ok {
		t.Error("entries without = should be skipped")
	}
}
