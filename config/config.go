package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers understood by the database bootstrap.
const (
	DriverPostgres = "postgres" // bun pgdriver
	DriverPGX      = "pgx"      // pgx stdlib
	DriverSQLite   = "sqlite"   // modernc.org/sqlite
)

// Event bus transports.
const (
	TransportNATS   = "nats"
	TransportMemory = "memory"
)

// Config struct to hold the configuration settings
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	NATS          NATSConfig          `yaml:"nats"`
	EventBus      EventBusConfig      `yaml:"event_bus"`
	Game          GameConfig          `yaml:"game"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN          string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL string `yaml:"url" env:"NATS_URL"`
}

// EventBusConfig selects the feed and presence transport.
type EventBusConfig struct {
	Transport string `yaml:"transport" env:"EVENT_BUS_TRANSPORT"`
}

// GameConfig holds the tunable game rules.
type GameConfig struct {
	MaxRounds       int     `yaml:"max_rounds" env:"GAME_MAX_ROUNDS"`
	StartingPoints  int     `yaml:"starting_points" env:"GAME_STARTING_POINTS"`
	RequiredPlayers int     `yaml:"required_players" env:"GAME_REQUIRED_PLAYERS"`
	AllRegionArea   float64 `yaml:"all_region_area" env:"GAME_ALL_REGION_AREA"`
	RegionsFile     string  `yaml:"regions_file" env:"GAME_REGIONS_FILE"`
	LobbyPageSize   int     `yaml:"lobby_page_size" env:"GAME_LOBBY_PAGE_SIZE"`
	PasswordCost    int     `yaml:"password_cost" env:"GAME_PASSWORD_COST"`
}

// ObservabilityConfig holds configuration for observability components
type ObservabilityConfig struct {
	MetricsAddress string `yaml:"metrics_address" env:"METRICS_ADDRESS"` // empty disables the /metrics endpoint
	Environment    string `yaml:"environment" env:"ENV"`
	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`
}

// LoadConfig loads the configuration from a YAML file. A missing file is
// not an error: the configuration then comes from the environment alone.
// Variables from a .env file in the working directory are loaded first and
// environment values always override the file.
func LoadConfig(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// --- OVERRIDE WITH ENV VARS IF PRESENT ---
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.EventBus.Transport == "" {
		c.EventBus.Transport = TransportNATS
	}
	if c.Game.MaxRounds == 0 {
		c.Game.MaxRounds = 5
	}
	if c.Game.StartingPoints == 0 {
		c.Game.StartingPoints = 5000
	}
	if c.Game.RequiredPlayers == 0 {
		c.Game.RequiredPlayers = 2
	}
	if c.Game.AllRegionArea == 0 {
		c.Game.AllRegionArea = 2147483647
	}
	if c.Game.LobbyPageSize == 0 {
		c.Game.LobbyPageSize = 20
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = "development"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverPGX, DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}

	switch c.EventBus.Transport {
	case TransportNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS_URL environment variable not set")
		}
	case TransportMemory:
	default:
		return fmt.Errorf("unknown event bus transport %q", c.EventBus.Transport)
	}

	if c.Game.MaxRounds < 1 {
		return fmt.Errorf("game.max_rounds must be positive, got %d", c.Game.MaxRounds)
	}
	if c.Game.RequiredPlayers < 2 {
		return fmt.Errorf("game.required_players must be at least 2, got %d", c.Game.RequiredPlayers)
	}
	return nil
}
