package gamesync

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjacktable/internal/deck"
	"github.com/lox/blackjacktable/internal/game"
	"github.com/lox/blackjacktable/internal/store"
)

// directLocker runs callbacks against a bare game, standing in for the table
// lock in single-threaded tests.
type directLocker struct {
	g *game.Game
}

func (l *directLocker) WithLock(fn func(g *game.Game)) { fn(l.g) }

func newSyncedGame() (*game.Game, *game.Player) {
	local := &game.Player{ID: "local", Name: "alice", Seat: 1, Bank: 20, Active: true}
	local.ResetHands()
	g := &game.Game{
		ID: "g1",
		Players: []*game.Player{
			local,
			{ID: "dealer", Name: "Dealer", IsDealer: true},
		},
	}
	return g, local
}

func TestOnGameChangedMergesShoe(t *testing.T) {
	g, _ := newSyncedGame()
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	shoe := []deck.Card{{Rank: deck.Queen, Suit: deck.Hearts, Index: 5}}
	r.OnGameChanged(store.GameRow{ID: "g1", Shoe: store.EncodeShoe(shoe), CardsPlayed: 7})

	assert.Equal(t, shoe, g.Shoe)
	assert.Equal(t, 7, g.CardsPlayed)
	assert.False(t, g.GameOver)
}

func TestOnGameChangedKeepsShoeWhenMalformed(t *testing.T) {
	g, _ := newSyncedGame()
	g.Shoe = []deck.Card{{Rank: deck.Two, Suit: deck.Spades}}
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	r.OnGameChanged(store.GameRow{ID: "g1", Shoe: "garbage", CardsPlayed: 3, GameOver: true})

	require.Len(t, g.Shoe, 1)
	assert.Equal(t, 3, g.CardsPlayed)
	assert.True(t, g.GameOver)
}

func TestOnPlayerChangedIgnoresOwnEcho(t *testing.T) {
	g, local := newSyncedGame()
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	r.OnPlayerChanged(store.PlayerRow{ID: "local", GameID: "g1", Name: "alice", Seat: 1, Bank: 99, Active: true})

	assert.Equal(t, 20, local.Bank)
}

func TestOnPlayerChangedSeatsNewPlayer(t *testing.T) {
	g, _ := newSyncedGame()
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	r.OnPlayerChanged(store.PlayerRow{ID: "p2", GameID: "g1", Name: "bob", Seat: 2, Bank: 20, Active: true})

	require.Len(t, g.Players, 3)
	// Seated between the local player and the dealer.
	assert.Equal(t, "p2", g.Players[1].ID)
	assert.True(t, g.Players[2].IsDealer)
	require.Len(t, g.Players[1].Hands, 1)
}

func TestOnPlayerChangedRemovesDeactivated(t *testing.T) {
	g, _ := newSyncedGame()
	bob := &game.Player{ID: "p2", Name: "bob", Seat: 2, Bank: 20, Active: true}
	bob.ResetHands()
	g.AddPlayer(bob)
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	r.OnPlayerChanged(store.PlayerRow{ID: "p2", GameID: "g1", Name: "bob", Seat: 2, Active: false})

	assert.Nil(t, g.PlayerByID("p2"))
	require.Len(t, g.Players, 2)
}

func TestOnPlayerChangedUnknownInactiveIsNoop(t *testing.T) {
	g, _ := newSyncedGame()
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	r.OnPlayerChanged(store.PlayerRow{ID: "ghost", GameID: "g1", Name: "ghost", Seat: 3, Active: false})

	assert.Len(t, g.Players, 2)
}

func TestOnPlayerChangedMergesHandsInPlace(t *testing.T) {
	g, _ := newSyncedGame()
	bob := &game.Player{ID: "p2", Name: "bob", Seat: 2, Bank: 20, Active: true}
	bob.ResetHands()
	g.AddPlayer(bob)
	held := bob.Hands[0]
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	// Simulate the remote client dealing bob cards and raising his bet:
	// decode a copy of the stored hand, mutate it and re-encode.
	encoded := store.EncodeHands([]*game.Hand{held})
	hands := store.DecodeHands(encoded)
	require.Len(t, hands, 1)
	hands[0].AddCard(deck.Card{Rank: deck.King, Suit: deck.Clubs, Index: 2})
	hands[0].AddCard(deck.Card{Rank: deck.Nine, Suit: deck.Hearts, Index: 8})
	hands[0].Bet = 4
	encoded = store.EncodeHands(hands)

	r.OnPlayerChanged(store.PlayerRow{ID: "p2", GameID: "g1", Name: "bob", Seat: 2, Bank: 16, Active: true, Hands: encoded})

	// Same hand object, updated contents.
	require.Len(t, bob.Hands, 1)
	assert.Same(t, held, bob.Hands[0])
	assert.Equal(t, 4, held.Bet)
	assert.Equal(t, 19, held.Total())
	assert.Equal(t, 16, bob.Bank)
}

func TestOnPlayerChangedAddsSplitHand(t *testing.T) {
	g, _ := newSyncedGame()
	bob := &game.Player{ID: "p2", Name: "bob", Seat: 2, Bank: 18, Active: true}
	bob.ResetHands()
	g.AddPlayer(bob)
	first := bob.Hands[0]
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	second := game.NewHand(1)
	second.AddCard(deck.Card{Rank: deck.Eight, Suit: deck.Hearts, Index: 3})
	encoded := store.EncodeHands([]*game.Hand{first, second})

	r.OnPlayerChanged(store.PlayerRow{ID: "p2", GameID: "g1", Name: "bob", Seat: 2, Bank: 17, Active: true, Hands: encoded})

	require.Len(t, bob.Hands, 2)
	assert.Same(t, first, bob.Hands[0])
	assert.Equal(t, second.ID, bob.Hands[1].ID)
}

func TestOnPlayerChangedMalformedHandsKept(t *testing.T) {
	g, _ := newSyncedGame()
	bob := &game.Player{ID: "p2", Name: "bob", Seat: 2, Bank: 20, Active: true}
	bob.ResetHands()
	bob.Hands[0].AddCard(deck.Card{Rank: deck.Five, Suit: deck.Spades})
	g.AddPlayer(bob)
	r := NewReconciler(&directLocker{g}, "local", log.New(io.Discard))

	r.OnPlayerChanged(store.PlayerRow{ID: "p2", GameID: "g1", Name: "bob", Seat: 2, Bank: 19, Active: true, Hands: "not json"})

	// Bank still merges; the unparseable hands payload is ignored.
	assert.Equal(t, 19, bob.Bank)
	require.Len(t, bob.Hands, 1)
	assert.Len(t, bob.Hands[0].Cards, 1)
}

func TestPublisherWritesRows(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	defer m.Close()

	row, err := m.GetOrCreateActiveGame(ctx, "[]")
	require.NoError(t, err)
	alice, err := m.InsertPlayer(ctx, store.PlayerRow{GameID: row.ID, Name: "alice", Seat: 1, Bank: 20})
	require.NoError(t, err)

	pub := NewPublisher(m, row.ID)

	g, local := newSyncedGame()
	local.ID = alice.ID
	g.ID = row.ID
	g.Shoe = []deck.Card{{Rank: deck.Ace, Suit: deck.Spades, Index: 0}}
	g.CardsPlayed = 3
	local.Bank = 17
	local.Hands[0].AddCard(deck.Card{Rank: deck.Ten, Suit: deck.Hearts, Index: 1})

	require.NoError(t, pub.PublishGame(ctx, g))
	require.NoError(t, pub.PublishHands(ctx, local))
	require.NoError(t, pub.PublishBank(ctx, local))

	stored, err := m.GetOrCreateActiveGame(ctx, "[]")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.CardsPlayed)
	assert.Equal(t, g.Shoe, store.DecodeShoe(stored.Shoe))

	players, err := m.ListActivePlayers(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, 17, players[0].Bank)
	hands := store.DecodeHands(players[0].Hands)
	require.Len(t, hands, 1)
	assert.Len(t, hands[0].Cards, 1)

	// Dealer state never leaves the local table.
	dealer := g.Dealer()
	require.NoError(t, pub.PublishHands(ctx, dealer))
	require.NoError(t, pub.PublishBank(ctx, dealer))
}
