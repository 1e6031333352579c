// Package gamesync bridges the table and the store: a Publisher pushes local
// mutations out as row updates, and a Reconciler merges inbound row changes
// back into the live game without replacing the objects the table holds.
package gamesync

import (
	"context"

	"github.com/lox/blackjacktable/internal/game"
	"github.com/lox/blackjacktable/internal/store"
)

// Publisher implements game.Sync over a Store.
type Publisher struct {
	store  store.Store
	gameID string
}

// NewPublisher creates a publisher writing to the given game's rows.
func NewPublisher(s store.Store, gameID string) *Publisher {
	return &Publisher{store: s, gameID: gameID}
}

func (p *Publisher) PublishGame(ctx context.Context, g *game.Game) error {
	return p.store.UpdateGame(ctx, p.gameID, store.GamePatch{
		Shoe:        store.Ptr(store.EncodeShoe(g.Shoe)),
		CardsPlayed: store.Ptr(g.CardsPlayed),
		GameOver:    store.Ptr(g.GameOver),
	})
}

func (p *Publisher) PublishHands(ctx context.Context, pl *game.Player) error {
	if pl.IsDealer {
		return nil
	}
	return p.store.UpdatePlayer(ctx, pl.ID, store.PlayerPatch{
		Hands: store.Ptr(store.EncodeHands(pl.Hands)),
	})
}

func (p *Publisher) PublishBank(ctx context.Context, pl *game.Player) error {
	if pl.IsDealer {
		return nil
	}
	return p.store.UpdatePlayer(ctx, pl.ID, store.PlayerPatch{
		Bank: store.Ptr(pl.Bank),
	})
}
