package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/blackjacktable/internal/game"
)

// Config is the complete blackjackd configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Table  TableSettings  `hcl:"table,block"`
}

// ServerSettings contains relay-level configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// TableSettings defines the table rules shared by every client.
type TableSettings struct {
	Decks        int `hcl:"decks,optional"`
	MinimumBet   int `hcl:"minimum_bet,optional"`
	StartingBank int `hcl:"starting_bank,optional"`
	Seats        int `hcl:"seats,optional"`
	PaceDelayMs  int `hcl:"pace_delay_ms,optional"`
	DealDelayMs  int `hcl:"deal_delay_ms,optional"`
}

// DefaultConfig returns the standard relay configuration.
func DefaultConfig() *Config {
	cfg := game.DefaultConfig()
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Table: TableSettings{
			Decks:        cfg.Decks,
			MinimumBet:   cfg.MinimumBet,
			StartingBank: cfg.StartingBank,
			Seats:        3,
			PaceDelayMs:  int(cfg.PaceDelay / time.Millisecond),
			DealDelayMs:  int(cfg.DealDelay / time.Millisecond),
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to defaults
// when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Table.Decks == 0 {
		config.Table.Decks = defaults.Table.Decks
	}
	if config.Table.MinimumBet == 0 {
		config.Table.MinimumBet = defaults.Table.MinimumBet
	}
	if config.Table.StartingBank == 0 {
		config.Table.StartingBank = defaults.Table.StartingBank
	}
	if config.Table.Seats == 0 {
		config.Table.Seats = defaults.Table.Seats
	}
	if config.Table.PaceDelayMs == 0 {
		config.Table.PaceDelayMs = defaults.Table.PaceDelayMs
	}
	if config.Table.DealDelayMs == 0 {
		config.Table.DealDelayMs = defaults.Table.DealDelayMs
	}
	return &config, nil
}

// ListenAddr returns the host:port the relay binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GameConfig converts the table settings into table rules.
func (c *Config) GameConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.Decks = c.Table.Decks
	cfg.MinimumBet = c.Table.MinimumBet
	cfg.StartingBank = c.Table.StartingBank
	cfg.PaceDelay = time.Duration(c.Table.PaceDelayMs) * time.Millisecond
	cfg.DealDelay = time.Duration(c.Table.DealDelayMs) * time.Millisecond
	return cfg
}
