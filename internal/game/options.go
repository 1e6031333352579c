package game

import (
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Config holds the table rules.
type Config struct {
	// Decks is the number of 52-card decks in the shoe.
	Decks int
	// MinimumBet is placed automatically for each seated player at the
	// start of a round.
	MinimumBet int
	// StartingBank is the bank granted to newly joined players.
	StartingBank int
	// ShuffleThreshold is the fraction of the shoe that must remain; once
	// more than (1 - ShuffleThreshold) of the cards have been played a
	// fresh shoe is built before the next draw.
	ShuffleThreshold float64
	// PaceDelay is the pause between player actions so observers can
	// follow the game. Zero disables pacing.
	PaceDelay time.Duration
	// DealDelay is the pause between dealt cards.
	DealDelay time.Duration
}

// DefaultConfig returns the standard table rules.
func DefaultConfig() Config {
	return Config{
		Decks:            6,
		MinimumBet:       1,
		StartingBank:     20,
		ShuffleThreshold: 0.25,
		PaceDelay:        900 * time.Millisecond,
		DealDelay:        600 * time.Millisecond,
	}
}

// Option configures a Table.
type Option func(*Table)

// WithConfig replaces the table rules.
func WithConfig(cfg Config) Option {
	return func(t *Table) { t.cfg = cfg }
}

// WithRNG injects the random source used for shuffling.
func WithRNG(rng *rand.Rand) Option {
	return func(t *Table) { t.rng = rng }
}

// WithClock injects the clock used for pacing. Tests use quartz.NewMock.
func WithClock(clock quartz.Clock) Option {
	return func(t *Table) { t.clock = clock }
}

// WithAgent assigns an agent to a specific player id.
func WithAgent(playerID string, agent Agent) Option {
	return func(t *Table) { t.agents[playerID] = agent }
}

// WithDefaultAgent assigns the agent used for seated players without one of
// their own. Players with no agent at all stand immediately.
func WithDefaultAgent(agent Agent) Option {
	return func(t *Table) { t.defaultAgent = agent }
}

// WithEventBus replaces the table's event bus.
func WithEventBus(bus *EventBus) Option {
	return func(t *Table) { t.bus = bus }
}

// WithLogger replaces the table's logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Table) { t.logger = logger }
}
