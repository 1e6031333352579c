// Package store persists shared blackjack state as game and player rows and
// notifies subscribers of row changes. Implementations back onto Postgres
// (LISTEN/NOTIFY), an in-process map, or a websocket relay.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrUniqueViolation is returned when an insert collides with an
	// active player's seat or name.
	ErrUniqueViolation = errors.New("store: unique violation")
)

// GameRow is the persisted portion of a game: the shoe, its consumption
// counter and the lifecycle flag. Shoe holds the JSON-encoded card slice.
type GameRow struct {
	ID          string `json:"id"`
	Shoe        string `json:"shoe"`
	CardsPlayed int    `json:"cards_played"`
	GameOver    bool   `json:"game_over"`
}

// PlayerRow is a persisted table participant. Hands holds the JSON-encoded
// hand slice. Inactive rows are soft-deleted seats kept for reactivation.
type PlayerRow struct {
	ID         string    `json:"id"`
	GameID     string    `json:"game_id"`
	Name       string    `json:"name"`
	Seat       int       `json:"seat"`
	Bank       int       `json:"bank"`
	Hands      string    `json:"hands"`
	Active     bool      `json:"active"`
	LastActive time.Time `json:"last_active"`
}

// GamePatch is a partial game update; nil fields are left untouched.
type GamePatch struct {
	Shoe        *string `json:"shoe,omitempty"`
	CardsPlayed *int    `json:"cards_played,omitempty"`
	GameOver    *bool   `json:"game_over,omitempty"`
}

// PlayerPatch is a partial player update; nil fields are left untouched.
type PlayerPatch struct {
	Name       *string    `json:"name,omitempty"`
	Seat       *int       `json:"seat,omitempty"`
	Bank       *int       `json:"bank,omitempty"`
	Hands      *string    `json:"hands,omitempty"`
	Active     *bool      `json:"active,omitempty"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// Store is the shared persistence surface for a blackjack table.
type Store interface {
	// GetOrCreateActiveGame returns the newest game that is not over,
	// creating one seeded with the given encoded shoe when none exists.
	GetOrCreateActiveGame(ctx context.Context, shoe string) (GameRow, error)

	// UpdateGame applies a partial update and notifies subscribers.
	UpdateGame(ctx context.Context, id string, patch GamePatch) error

	// InsertPlayer adds a participant, generating an id when the row has
	// none. Returns ErrUniqueViolation when the seat or name is already
	// held by an active player in the same game.
	InsertPlayer(ctx context.Context, row PlayerRow) (PlayerRow, error)

	// UpdatePlayer applies a partial update and notifies subscribers.
	UpdatePlayer(ctx context.Context, id string, patch PlayerPatch) error

	// ListActivePlayers returns the active players of a game in seat
	// order.
	ListActivePlayers(ctx context.Context, gameID string) ([]PlayerRow, error)

	// FindPlayer locates the most recent row in a game matching the name
	// or the seat, regardless of active state, for seat reactivation.
	// A row matching both name and seat wins over a partial match.
	FindPlayer(ctx context.Context, gameID, name string, seat int) (PlayerRow, error)

	// SubscribeGame delivers every change to the game row. The returned
	// func cancels the subscription.
	SubscribeGame(ctx context.Context, gameID string, fn func(GameRow)) (func(), error)

	// SubscribePlayers delivers every player row change in the game,
	// including the subscriber's own writes.
	SubscribePlayers(ctx context.Context, gameID string, fn func(PlayerRow)) (func(), error)

	// Close releases underlying resources.
	Close()
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T { return &v }
