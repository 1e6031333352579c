package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/lox/blackjacktable/internal/bot"
	"github.com/lox/blackjacktable/internal/client"
	"github.com/lox/blackjacktable/internal/server"
)

var CLI struct {
	Name        string `short:"n" required:"" help:"Player name"`
	Seat        int    `short:"s" default:"1" help:"Seat number to claim"`
	Strategy    string `default:"basic" help:"Playing strategy (stand, threshold, basic)"`
	Config      string `short:"c" default:"blackjack.hcl" help:"Path to HCL configuration file"`
	Server      string `help:"Relay server URL (e.g. http://localhost:8080)"`
	PostgresDSN string `env:"DATABASE_URL" help:"Connect directly to a Postgres store"`
	LogLevel    string `short:"l" default:"info" help:"Log level"`
}

func main() {
	_ = godotenv.Load()
	kctx := kong.Parse(&CLI,
		kong.Name("blackjack"),
		kong.Description("Join a shared blackjack table and play"))

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	logger.SetLevel(parseLogLevel(CLI.LogLevel))

	agent, err := bot.New(CLI.Strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		kctx.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(client.Options{
		PlayerName:        CLI.Name,
		Seat:              CLI.Seat,
		Strategy:          CLI.Strategy,
		PostgresDSN:       CLI.PostgresDSN,
		ServerURL:         CLI.Server,
		Seats:             cfg.Table.Seats,
		Config:            cfg.GameConfig(),
		HeartbeatInterval: 30 * time.Second,
	}, agent, logger)

	logger.Info("joining table",
		"name", CLI.Name,
		"seat", CLI.Seat,
		"strategy", CLI.Strategy)

	if err := c.Run(ctx); err != nil {
		logger.Error("session ended with error", "error", err)
		kctx.Exit(1)
	}
	logger.Info("session over")
}

func parseLogLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
