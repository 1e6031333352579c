// Package session manages seat occupancy for a shared table: joining,
// leaving, seat reactivation and the presence heartbeat.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/blackjacktable/internal/store"
)

var (
	// ErrSeatTaken is returned when the requested seat is held by an
	// active player.
	ErrSeatTaken = errors.New("seat already taken")

	// ErrNameTaken is returned when the requested name is held by an
	// active player in the same game.
	ErrNameTaken = errors.New("name already taken")

	// ErrInvalidName is returned for empty or overlong names.
	ErrInvalidName = errors.New("invalid player name")

	// ErrInvalidSeat is returned for seats outside the table range.
	ErrInvalidSeat = errors.New("invalid seat")
)

const maxNameLength = 32

// Manager seats players into a game's rows.
type Manager struct {
	store             store.Store
	clock             quartz.Clock
	logger            *log.Logger
	gameID            string
	seats             int
	startingBank      int
	heartbeatInterval time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the heartbeat clock. Tests use quartz.NewMock.
func WithClock(clock quartz.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithSeats sets the number of seats at the table.
func WithSeats(n int) Option {
	return func(m *Manager) { m.seats = n }
}

// WithStartingBank sets the bank granted to newly joined players.
func WithStartingBank(bank int) Option {
	return func(m *Manager) { m.startingBank = bank }
}

// WithHeartbeatInterval sets how often presence is refreshed.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) { m.heartbeatInterval = d }
}

// NewManager creates a session manager for the given game.
func NewManager(s store.Store, gameID string, logger *log.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:             s,
		clock:             quartz.NewReal(),
		logger:            logger.WithPrefix("session"),
		gameID:            gameID,
		seats:             3,
		startingBank:      20,
		heartbeatInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Join claims a seat under the given name. A prior occupant of the name or
// the seat left inactive is reactivated in place with a fresh bank; otherwise
// a fresh row is inserted with the starting bank.
func (m *Manager) Join(ctx context.Context, name string, seat int) (store.PlayerRow, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return store.PlayerRow{}, ErrInvalidName
	}
	if seat < 1 || seat > m.seats {
		return store.PlayerRow{}, ErrInvalidSeat
	}

	if err := m.checkAvailability(ctx, name, seat); err != nil {
		return store.PlayerRow{}, err
	}

	if prior, err := m.store.FindPlayer(ctx, m.gameID, name, seat); err == nil && !prior.Active {
		return m.reactivate(ctx, prior, name, seat)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.PlayerRow{}, err
	}

	row, err := m.store.InsertPlayer(ctx, store.PlayerRow{
		GameID: m.gameID,
		Name:   name,
		Seat:   seat,
		Bank:   m.startingBank,
		Hands:  "[]",
	})
	if errors.Is(err, store.ErrUniqueViolation) {
		// Lost a race for the seat. A concurrent leave may still have
		// produced a reactivation candidate; otherwise report which
		// constraint we hit.
		if prior, ferr := m.store.FindPlayer(ctx, m.gameID, name, seat); ferr == nil && !prior.Active {
			return m.reactivate(ctx, prior, name, seat)
		}
		if availErr := m.checkAvailability(ctx, name, seat); availErr != nil {
			return store.PlayerRow{}, availErr
		}
		return store.PlayerRow{}, ErrSeatTaken
	}
	if err != nil {
		return store.PlayerRow{}, err
	}
	m.logger.Info("player joined", "name", name, "seat", seat)
	return row, nil
}

func (m *Manager) checkAvailability(ctx context.Context, name string, seat int) error {
	players, err := m.store.ListActivePlayers(ctx, m.gameID)
	if err != nil {
		return err
	}
	for _, p := range players {
		if p.Seat == seat {
			return ErrSeatTaken
		}
		if strings.EqualFold(p.Name, name) {
			return ErrNameTaken
		}
	}
	return nil
}

// reactivate revives a vacated row under the requested name and seat: the
// bank resets to the starting value and any stale hands are forfeited.
func (m *Manager) reactivate(ctx context.Context, prior store.PlayerRow, name string, seat int) (store.PlayerRow, error) {
	now := m.clock.Now()
	err := m.store.UpdatePlayer(ctx, prior.ID, store.PlayerPatch{
		Name:       store.Ptr(name),
		Seat:       store.Ptr(seat),
		Bank:       store.Ptr(m.startingBank),
		Active:     store.Ptr(true),
		Hands:      store.Ptr("[]"),
		LastActive: store.Ptr(now),
	})
	if err != nil {
		return store.PlayerRow{}, err
	}
	prior.Name = name
	prior.Seat = seat
	prior.Bank = m.startingBank
	prior.Active = true
	prior.Hands = "[]"
	prior.LastActive = now
	m.logger.Info("player rejoined", "name", name, "seat", seat)
	return prior, nil
}

// Leave vacates the seat. The row is deactivated rather than deleted so a
// later join against the same name or seat revives it; any in-flight hands
// are forfeited.
func (m *Manager) Leave(ctx context.Context, playerID string) error {
	err := m.store.UpdatePlayer(ctx, playerID, store.PlayerPatch{
		Active:     store.Ptr(false),
		Hands:      store.Ptr("[]"),
		LastActive: store.Ptr(m.clock.Now()),
	})
	if err != nil {
		return err
	}
	m.logger.Info("player left", "id", playerID)
	return nil
}

// StartHeartbeat refreshes the player's last_active stamp on an interval
// until ctx is cancelled. Blocks; run it in its own goroutine.
func (m *Manager) StartHeartbeat(ctx context.Context, playerID string) error {
	ticker := m.clock.TickerFunc(ctx, m.heartbeatInterval, func() error {
		err := m.store.UpdatePlayer(ctx, playerID, store.PlayerPatch{
			LastActive: store.Ptr(m.clock.Now()),
		})
		if err != nil {
			m.logger.Warn("heartbeat failed", "id", playerID, "error", err)
		}
		return nil
	}, "heartbeat")
	err := ticker.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
