/*
Package config
File: config.go
Description:
    Process configuration from environment variables, for the HTTP server
    and the terminal client.
*/

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends for session saves.
const (
	StoreMemory = "memory"
	StoreYAML   = "yaml"
	StoreSQLite = "sqlite"
)

// Server configures the HTTP game server.
type Server struct {
	Addr         string        `env:"QUARANTINE_ADDR" envDefault:":8081"`
	TickInterval time.Duration `env:"QUARANTINE_TICK_INTERVAL" envDefault:"5s"` // Real time per game hour
	Store        string        `env:"QUARANTINE_STORE" envDefault:"sqlite"`
	DataDir      string        `env:"QUARANTINE_DATA_DIR" envDefault:"data"`
	SQLitePath   string        `env:"QUARANTINE_SQLITE_PATH" envDefault:"data/quarantine.db"`
	CatalogPath  string        `env:"QUARANTINE_CATALOG" envDefault:"catalog.yaml"`
	EventChance  float64       `env:"QUARANTINE_EVENT_CHANCE" envDefault:"0.05"`
	LogLevel     string        `env:"QUARANTINE_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string        `env:"QUARANTINE_OTEL_ENDPOINT"`
	CORSOrigins  []string      `env:"QUARANTINE_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// TUI configures the terminal client.
type TUI struct {
	SaveDir      string        `env:"QUARANTINE_SAVE_DIR" envDefault:".saves"`
	SessionID    string        `env:"QUARANTINE_SESSION" envDefault:"local"`
	TickInterval time.Duration `env:"QUARANTINE_TICK_INTERVAL" envDefault:"1s"`
	LogLevel     string        `env:"QUARANTINE_LOG_LEVEL" envDefault:"warn"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses and validates the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	return cfg, cfg.Validate()
}

func (c Server) Validate() error {
	switch strings.ToLower(c.Store) {
	case StoreMemory, StoreYAML, StoreSQLite:
	default:
		return fmt.Errorf("QUARANTINE_STORE: unknown backend %q", c.Store)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("QUARANTINE_TICK_INTERVAL must be positive")
	}
	if c.EventChance < 0 || c.EventChance > 1 {
		return fmt.Errorf("QUARANTINE_EVENT_CHANCE must be within 0..1")
	}
	return nil
}

// LoadTUI parses the terminal client configuration.
func LoadTUI() (TUI, error) {
	var cfg TUI
	if err := ParseEnv(&cfg); err != nil {
		return TUI{}, err
	}
	if cfg.TickInterval <= 0 {
		return TUI{}, fmt.Errorf("QUARANTINE_TICK_INTERVAL must be positive")
	}
	return cfg, nil
}
