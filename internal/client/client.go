// Package client assembles a playing participant: it opens a store, loads or
// creates the shared game, claims a seat, wires synchronization and runs the
// table loop alongside the presence heartbeat.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/blackjacktable/internal/deck"
	"github.com/lox/blackjacktable/internal/game"
	"github.com/lox/blackjacktable/internal/gamesync"
	"github.com/lox/blackjacktable/internal/randutil"
	"github.com/lox/blackjacktable/internal/server"
	"github.com/lox/blackjacktable/internal/session"
	"github.com/lox/blackjacktable/internal/store"
)

// Options configures a playing client.
type Options struct {
	// PlayerName and Seat identify the claimed seat.
	PlayerName string
	Seat       int

	// Strategy names the agent driving the seat.
	Strategy string

	// PostgresDSN selects the Postgres store when set; otherwise ServerURL
	// selects the relay store.
	PostgresDSN string
	ServerURL   string

	// Seats is the table size used for seat validation.
	Seats int

	Config game.Config

	HeartbeatInterval time.Duration
}

// Client is one participant playing at the shared table.
type Client struct {
	opts   Options
	logger *log.Logger
	agent  game.Agent

	store   store.Store
	gameRow store.GameRow
	player  store.PlayerRow
	g       *game.Game
	table   *game.Table
	mgr     *session.Manager
}

// New creates an unconnected client.
func New(opts Options, agent game.Agent, logger *log.Logger) *Client {
	if opts.Seats == 0 {
		opts.Seats = 3
	}
	if opts.Config.Decks == 0 {
		opts.Config = game.DefaultConfig()
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &Client{
		opts:   opts,
		logger: logger.WithPrefix("client"),
		agent:  agent,
	}
}

// Run connects, joins and plays until the game ends or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	defer c.store.Close()

	if err := c.initializeGame(ctx); err != nil {
		return err
	}
	if err := c.join(ctx); err != nil {
		return err
	}

	c.table = game.NewTable(c.g,
		gamesync.NewPublisher(c.store, c.gameRow.ID),
		c.logger,
		game.WithConfig(c.opts.Config),
		game.WithAgent(c.player.ID, c.agent),
	)

	reconciler := gamesync.NewReconciler(c.table, c.player.ID, c.logger)
	cancelGame, err := c.store.SubscribeGame(ctx, c.gameRow.ID, reconciler.OnGameChanged)
	if err != nil {
		return fmt.Errorf("subscribing to game changes: %w", err)
	}
	defer cancelGame()
	cancelPlayers, err := c.store.SubscribePlayers(ctx, c.gameRow.ID, reconciler.OnPlayerChanged)
	if err != nil {
		return fmt.Errorf("subscribing to player changes: %w", err)
	}
	defer cancelPlayers()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		err := c.table.Run(ctx)
		if errors.Is(err, game.ErrGameOver) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		return c.mgr.StartHeartbeat(ctx, c.player.ID)
	})

	err = eg.Wait()

	// Vacate the seat on the way out, outside the cancelled context.
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer leaveCancel()
	if leaveErr := c.mgr.Leave(leaveCtx, c.player.ID); leaveErr != nil {
		c.logger.Warn("failed to leave seat", "error", leaveErr)
	}
	return err
}

// connect opens the configured store backend.
func (c *Client) connect(ctx context.Context) error {
	switch {
	case c.opts.PostgresDSN != "":
		pg, err := store.OpenPostgres(ctx, c.opts.PostgresDSN, c.logger)
		if err != nil {
			return err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("migrating schema: %w", err)
		}
		c.store = pg
		c.logger.Info("connected to postgres store")
		return nil

	case c.opts.ServerURL != "":
		wsURL, err := websocketURL(c.opts.ServerURL)
		if err != nil {
			return err
		}
		remote, err := server.DialRemoteStore(ctx, wsURL, c.logger)
		if err != nil {
			return err
		}
		c.store = remote
		c.logger.Info("connected to relay store", "url", wsURL)
		return nil

	default:
		c.store = store.NewMemory()
		c.logger.Info("using in-memory store")
		return nil
	}
}

// initializeGame loads the shared game, seeding a fresh shoe when starting a
// new one, and builds the local roster with the dealer seated last.
func (c *Client) initializeGame(ctx context.Context) error {
	freshShoe := deck.NewShoe(c.opts.Config.Decks, randutil.NewFromTime())
	row, err := c.store.GetOrCreateActiveGame(ctx, store.EncodeShoe(freshShoe))
	if err != nil {
		return fmt.Errorf("loading game: %w", err)
	}
	c.gameRow = row

	shoe := store.DecodeShoe(row.Shoe)
	if len(shoe) == 0 {
		shoe = freshShoe
	}
	c.g = &game.Game{
		ID:          row.ID,
		Shoe:        shoe,
		CardsPlayed: row.CardsPlayed,
		GameOver:    row.GameOver,
	}

	players, err := c.store.ListActivePlayers(ctx, row.ID)
	if err != nil {
		return fmt.Errorf("listing players: %w", err)
	}
	for _, p := range players {
		seated := &game.Player{
			ID:     p.ID,
			GameID: p.GameID,
			Name:   p.Name,
			Seat:   p.Seat,
			Bank:   p.Bank,
			Active: true,
		}
		if hands := store.DecodeHands(p.Hands); len(hands) > 0 {
			seated.Hands = hands
		} else {
			seated.ResetHands()
		}
		c.g.Players = append(c.g.Players, seated)
	}

	dealer := &game.Player{ID: "dealer", Name: "Dealer", IsDealer: true}
	dealer.ResetHands()
	c.g.Players = append(c.g.Players, dealer)

	c.logger.Info("game loaded", "game", row.ID, "players", len(players), "cards_played", row.CardsPlayed)
	return nil
}

// join claims the configured seat and threads the local player into the
// roster.
func (c *Client) join(ctx context.Context) error {
	c.mgr = session.NewManager(c.store, c.gameRow.ID, c.logger,
		session.WithSeats(c.opts.Seats),
		session.WithStartingBank(c.opts.Config.StartingBank),
		session.WithHeartbeatInterval(c.opts.HeartbeatInterval),
	)

	row, err := c.mgr.Join(ctx, c.opts.PlayerName, c.opts.Seat)
	if err != nil {
		return err
	}
	c.player = row

	local := &game.Player{
		ID:     row.ID,
		GameID: row.GameID,
		Name:   row.Name,
		Seat:   row.Seat,
		Bank:   row.Bank,
		Active: true,
	}
	local.ResetHands()
	if existing := c.g.PlayerByID(row.ID); existing == nil {
		c.g.AddPlayer(local)
	}
	return nil
}

// websocketURL converts an http(s) server URL to its ws(s) /ws endpoint.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}
