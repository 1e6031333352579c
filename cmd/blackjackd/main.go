package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/lox/blackjacktable/internal/server"
	"github.com/lox/blackjacktable/internal/store"
)

var CLI struct {
	Config      string `short:"c" default:"blackjack.hcl" help:"Path to HCL configuration file"`
	Addr        string `short:"a" help:"Address to bind to (overrides config)"`
	LogLevel    string `short:"l" help:"Log level (overrides config)"`
	PostgresDSN string `env:"DATABASE_URL" help:"Back the relay with Postgres instead of memory"`
}

func main() {
	_ = godotenv.Load()
	kctx := kong.Parse(&CLI,
		kong.Name("blackjackd"),
		kong.Description("Relay server for shared blackjack tables"))

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	addr := cfg.ListenAddr()
	if CLI.Addr != "" {
		addr = CLI.Addr
	}

	logger := log.New(os.Stderr)
	logger.SetLevel(parseLogLevel(cfg.Server.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backing, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		kctx.Exit(1)
	}
	defer backing.Close()

	srv := server.NewServer(backing, logger)
	logger.Info("starting blackjack relay",
		"addr", addr,
		"decks", cfg.Table.Decks,
		"seats", cfg.Table.Seats)

	if err := srv.Start(ctx, addr); err != nil {
		logger.Error("server failed", "error", err)
		kctx.Exit(1)
	}
	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, logger *log.Logger) (store.Store, error) {
	if CLI.PostgresDSN == "" {
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, CLI.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	logger.Info("relay backed by postgres")
	return pg, nil
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
