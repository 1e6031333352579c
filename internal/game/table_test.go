package game

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjacktable/internal/deck"
)

// riggedShoe builds a shoe that deals the given ranks in order, padded with
// extra cards so reshuffling never triggers.
func riggedShoe(ranks ...deck.Rank) []deck.Card {
	shoe := make([]deck.Card, 0, len(ranks)+20)
	for i, r := range ranks {
		shoe = append(shoe, deck.Card{Rank: r, Suit: deck.Suits[i%4], Index: i})
	}
	for i := 0; i < 20; i++ {
		shoe = append(shoe, deck.Card{Rank: deck.Two, Suit: deck.Suits[i%4], Index: len(ranks) + i})
	}
	return shoe
}

// scriptedAgent plays a fixed sequence of actions, standing once exhausted.
type scriptedAgent struct {
	actions []Action
}

func (a *scriptedAgent) MakeDecision(view HandView, valid []Action) Action {
	if len(a.actions) == 0 {
		return ActionStand
	}
	next := a.actions[0]
	a.actions = a.actions[1:]
	return next
}

// eventRecorder captures table events for assertions after the round.
type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) HandleEvent(e Event) {
	r.events = append(r.events, e)
}

func (r *eventRecorder) resolved(playerID string) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Type == EventHandResolved && e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) dealtTo(playerID string) int {
	n := 0
	for _, e := range r.events {
		if e.Type == EventCardDealt && e.PlayerID == playerID {
			n++
		}
	}
	return n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PaceDelay = 0
	cfg.DealDelay = 0
	return cfg
}

func newTestTable(t *testing.T, shoe []deck.Card, agent Agent) (*Table, *Game, *eventRecorder) {
	t.Helper()
	g := &Game{
		ID:   "game-1",
		Shoe: shoe,
		Players: []*Player{
			{ID: "p1", Name: "alice", Seat: 1, Bank: 20, Active: true},
			{ID: "dealer", Name: "Dealer", IsDealer: true},
		},
	}
	tbl := NewTable(g, NopSync{}, log.New(io.Discard),
		WithConfig(testConfig()),
		WithAgent("p1", agent),
	)
	rec := &eventRecorder{}
	tbl.Events().Subscribe(rec)
	return tbl, g, rec
}

func TestPlayRoundStandAndWin(t *testing.T) {
	// Deal order: p1, dealer up, p1, dealer hole.
	shoe := riggedShoe(deck.Ten, deck.Nine, deck.Ten, deck.Eight)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{})

	require.NoError(t, tbl.PlayRound(context.Background()))

	// 20 beats the dealer's 17; even money on a 1 chip bet.
	assert.Equal(t, 21, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultWin, resolved[0].Result)
}

func TestPlayRoundStandAndLose(t *testing.T) {
	shoe := riggedShoe(deck.Ten, deck.Nine, deck.Eight, deck.Ten)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{})

	require.NoError(t, tbl.PlayRound(context.Background()))

	// 18 against the dealer's 19.
	assert.Equal(t, 19, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultLose, resolved[0].Result)
}

func TestPlayRoundPush(t *testing.T) {
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Nine, deck.Nine)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{})

	require.NoError(t, tbl.PlayRound(context.Background()))

	// 19 each way; the stake comes back.
	assert.Equal(t, 20, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultPush, resolved[0].Result)
}

func TestPlayRoundBust(t *testing.T) {
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Six, deck.Seven, deck.Nine)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{actions: []Action{ActionHit}})

	require.NoError(t, tbl.PlayRound(context.Background()))

	assert.Equal(t, 19, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultBust, resolved[0].Result)
}

func TestPlayRoundDealerBustPaysStanders(t *testing.T) {
	// Player stands on 16; dealer has 16 and must draw, busting on a ten.
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Six, deck.Six, deck.King)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{})

	require.NoError(t, tbl.PlayRound(context.Background()))

	assert.Equal(t, 21, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultWin, resolved[0].Result)
}

func TestPlayRoundNaturalBlackjackPaysTwoToOne(t *testing.T) {
	shoe := riggedShoe(deck.Ace, deck.Nine, deck.King, deck.Eight)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{})

	require.NoError(t, tbl.PlayRound(context.Background()))

	// 20 - 1 bet + 3 payout.
	assert.Equal(t, 22, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultBlackjack, resolved[0].Result)
}

func TestPlayRoundDealerBlackjackEndsImmediately(t *testing.T) {
	shoe := riggedShoe(deck.Ten, deck.Ace, deck.Nine, deck.King)
	agent := &scriptedAgent{actions: []Action{ActionHit, ActionHit}}
	tbl, g, rec := newTestTable(t, shoe, agent)

	require.NoError(t, tbl.PlayRound(context.Background()))

	// No turn was offered; the script went unused and the bet is lost.
	assert.Len(t, agent.actions, 2)
	assert.Equal(t, 19, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultLose, resolved[0].Result)
}

func TestPlayRoundBothNaturalsPush(t *testing.T) {
	shoe := riggedShoe(deck.Ace, deck.Ace, deck.King, deck.King)
	tbl, g, _ := newTestTable(t, shoe, &scriptedAgent{})

	require.NoError(t, tbl.PlayRound(context.Background()))

	assert.Equal(t, 20, g.Players[0].Bank)
}

func TestPlayRoundDoubleDown(t *testing.T) {
	// 5+6 doubled, one card for 21 against the dealer's 17.
	shoe := riggedShoe(deck.Five, deck.Ten, deck.Six, deck.Seven, deck.Ten)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{actions: []Action{ActionDoubleDown}})

	require.NoError(t, tbl.PlayRound(context.Background()))

	// 20 - 2 staked + 4 payout.
	assert.Equal(t, 22, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultWin, resolved[0].Result)
}

func TestPlayRoundDoubleDownBust(t *testing.T) {
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Six, deck.Seven, deck.Nine)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{actions: []Action{ActionDoubleDown}})

	require.NoError(t, tbl.PlayRound(context.Background()))

	assert.Equal(t, 18, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 1)
	assert.Equal(t, ResultBust, resolved[0].Result)
}

func TestCanDoubleDownRules(t *testing.T) {
	tbl, _, _ := newTestTable(t, nil, &scriptedAgent{})

	h := NewHand(1)
	h.AddCard(deck.Card{Rank: deck.Five, Suit: deck.Spades})
	h.AddCard(deck.Card{Rank: deck.Six, Suit: deck.Hearts})
	p := &Player{ID: "p1", Bank: 10, Hands: []*Hand{h}}
	assert.True(t, tbl.canDoubleDown(p, h))

	// Not on a split hand.
	p.Hands = []*Hand{h, NewHand(1)}
	assert.False(t, tbl.canDoubleDown(p, h))
	p.Hands = []*Hand{h}

	// Only on the first two cards.
	h.AddCard(deck.Card{Rank: deck.Two, Suit: deck.Clubs})
	assert.False(t, tbl.canDoubleDown(p, h))
	h.Cards = h.Cards[:2]

	// Cannot cover the doubled stake.
	p.Bank = 0
	assert.False(t, tbl.canDoubleDown(p, h))

	// No mid-deal actions.
	p.Bank = 10
	tbl.game.Dealing = true
	assert.False(t, tbl.canDoubleDown(p, h))
}

func TestPlayRoundNoDoubleDownAfterSplit(t *testing.T) {
	// Split eights each draw a ten; the attempted double down on the first
	// split hand is refused and both hands stand on 18 against the
	// dealer's 17.
	shoe := riggedShoe(deck.Eight, deck.King, deck.Eight, deck.Seven, deck.Ten, deck.Ten)
	agent := &scriptedAgent{actions: []Action{ActionSplit, ActionDoubleDown}}
	tbl, g, rec := newTestTable(t, shoe, agent)

	require.NoError(t, tbl.PlayRound(context.Background()))

	// 20 - 2 staked + 2 + 2; a doubled bet would have paid 23.
	assert.Equal(t, 22, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 2)
	assert.Equal(t, ResultWin, resolved[0].Result)
	assert.Equal(t, ResultWin, resolved[1].Result)
}

func TestPlayRoundSplitPlaysBothHands(t *testing.T) {
	// A pair of eights split into two hands, each drawing a ten and standing
	// on 18 against the dealer's 17.
	shoe := riggedShoe(deck.Eight, deck.King, deck.Eight, deck.Seven, deck.Ten, deck.Ten)
	agent := &scriptedAgent{actions: []Action{ActionSplit}}
	tbl, g, rec := newTestTable(t, shoe, agent)

	require.NoError(t, tbl.PlayRound(context.Background()))

	// 20 - 2 staked + 2 + 2.
	assert.Equal(t, 22, g.Players[0].Bank)
	resolved := rec.resolved("p1")
	require.Len(t, resolved, 2)
	assert.Equal(t, ResultWin, resolved[0].Result)
	assert.Equal(t, ResultWin, resolved[1].Result)
}

func TestPlayRoundSplitAcesGetOneCardEach(t *testing.T) {
	shoe := riggedShoe(deck.Ace, deck.King, deck.Ace, deck.Seven, deck.Nine, deck.Nine)
	agent := &scriptedAgent{actions: []Action{ActionSplit, ActionHit, ActionHit}}
	tbl, g, rec := newTestTable(t, shoe, agent)

	require.NoError(t, tbl.PlayRound(context.Background()))

	// Each split ace stands after a single draw; the extra scripted hits are
	// never consulted. Both hands make 20 against the dealer's 17.
	assert.Len(t, agent.actions, 2)
	assert.Equal(t, 22, g.Players[0].Bank)
	assert.Len(t, rec.resolved("p1"), 2)
}

func TestPlayRoundDealerDrawsToSeventeen(t *testing.T) {
	// Dealer starts on 7 and draws a king to reach 17 exactly.
	shoe := riggedShoe(deck.Ten, deck.Two, deck.Eight, deck.Five, deck.King)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{})

	require.NoError(t, tbl.PlayRound(context.Background()))

	assert.Equal(t, 21, g.Players[0].Bank)
	// Two dealt cards plus one drawn.
	assert.Equal(t, 3, rec.dealtTo("dealer"))
}

func TestPlayRoundDealerSkipsDrawWhenAllHandsResolved(t *testing.T) {
	// The only bettor busts, so the dealer reveals and stops on 16.
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Six, deck.Six, deck.Nine)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{actions: []Action{ActionHit}})

	require.NoError(t, tbl.PlayRound(context.Background()))

	assert.Equal(t, 19, g.Players[0].Bank)
	assert.Equal(t, 2, rec.dealtTo("dealer"))
}

func TestPlayRoundGameOverOnBankruptcy(t *testing.T) {
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Ten, deck.Ten)
	tbl, g, rec := newTestTable(t, shoe, &scriptedAgent{})
	g.Players[0].Bank = 0

	err := tbl.PlayRound(context.Background())

	require.ErrorIs(t, err, ErrGameOver)
	assert.True(t, g.GameOver)
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventGameOver, rec.events[0].Type)
}

func TestRunStopsOnBankruptcy(t *testing.T) {
	// The player's last chip rides a 19 against a dealt 20; the next round
	// cannot cover the minimum bet.
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Nine, deck.Ten)
	tbl, g, _ := newTestTable(t, shoe, &scriptedAgent{})
	g.Players[0].Bank = 1

	err := tbl.Run(context.Background())

	require.ErrorIs(t, err, ErrGameOver)
	assert.True(t, g.GameOver)
}

func TestPlayRoundContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.PaceDelay = 1 // force pause to consult the context
	shoe := riggedShoe(deck.Ten, deck.Ten, deck.Ten, deck.Ten)
	g := &Game{
		ID:   "game-1",
		Shoe: shoe,
		Players: []*Player{
			{ID: "p1", Name: "alice", Seat: 1, Bank: 20, Active: true},
			{ID: "dealer", Name: "Dealer", IsDealer: true},
		},
	}
	tbl := NewTable(g, NopSync{}, log.New(io.Discard), WithConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tbl.PlayRound(ctx), context.Canceled)
}

func TestDrawCardReshufflesAtThreshold(t *testing.T) {
	shoe := riggedShoe(deck.Ten)
	tbl, g, _ := newTestTable(t, shoe, &scriptedAgent{})

	// More than 75% of a six-deck shoe played.
	g.CardsPlayed = 235

	tbl.drawCard(context.Background())

	assert.Equal(t, 1, g.CardsPlayed)
	assert.Len(t, g.Shoe, 6*deck.DeckSize-1)
}

func TestDrawCardRebuildsEmptyShoe(t *testing.T) {
	tbl, g, _ := newTestTable(t, nil, &scriptedAgent{})

	tbl.drawCard(context.Background())

	assert.Equal(t, 1, g.CardsPlayed)
	assert.Len(t, g.Shoe, 6*deck.DeckSize-1)
}

func TestCanSplitRules(t *testing.T) {
	tbl, _, _ := newTestTable(t, nil, &scriptedAgent{})

	pair := func(a, b deck.Rank) *Hand {
		h := NewHand(1)
		h.AddCard(deck.Card{Rank: a, Suit: deck.Spades})
		h.AddCard(deck.Card{Rank: b, Suit: deck.Hearts})
		return h
	}

	p := &Player{ID: "p1", Bank: 10}
	h := pair(deck.Eight, deck.Eight)
	p.Hands = []*Hand{h}
	assert.True(t, tbl.canSplit(p, h))

	// Mixed ranks.
	h2 := pair(deck.Eight, deck.Nine)
	p.Hands = []*Hand{h2}
	assert.False(t, tbl.canSplit(p, h2))

	// Ten-value but different ranks.
	h3 := pair(deck.King, deck.Ten)
	p.Hands = []*Hand{h3}
	assert.False(t, tbl.canSplit(p, h3))

	// Already split.
	p.Hands = []*Hand{h, NewHand(1)}
	assert.False(t, tbl.canSplit(p, h))

	// Cannot cover the second bet.
	p.Hands = []*Hand{h}
	p.Bank = 0
	assert.False(t, tbl.canSplit(p, h))

	// No mid-deal actions.
	p.Bank = 10
	tbl.game.Dealing = true
	assert.False(t, tbl.canSplit(p, h))
}

func TestSplitRejectedOutsideRules(t *testing.T) {
	tbl, _, _ := newTestTable(t, nil, &scriptedAgent{})
	p := &Player{ID: "p1", Bank: 10}
	h := NewHand(1)
	h.AddCard(deck.Card{Rank: deck.Eight, Suit: deck.Spades})
	p.Hands = []*Hand{h}

	require.ErrorIs(t, tbl.split(context.Background(), p, h), ErrSplitNotAllowed)
}

func TestMultiplePlayersPlayInSeatOrder(t *testing.T) {
	// Two seats: alice stands on 20 and wins, bob stands on 14 and loses.
	shoe := riggedShoe(
		deck.Ten, deck.Eight, deck.Nine, // pass one: alice, bob, dealer
		deck.Ten, deck.Six, deck.Eight, // pass two
	)
	g := &Game{
		ID:   "game-1",
		Shoe: shoe,
		Players: []*Player{
			{ID: "p1", Name: "alice", Seat: 1, Bank: 20, Active: true},
			{ID: "p2", Name: "bob", Seat: 2, Bank: 20, Active: true},
			{ID: "dealer", Name: "Dealer", IsDealer: true},
		},
	}
	tbl := NewTable(g, NopSync{}, log.New(io.Discard),
		WithConfig(testConfig()),
		WithDefaultAgent(&scriptedAgent{}),
	)
	rec := &eventRecorder{}
	tbl.Events().Subscribe(rec)

	require.NoError(t, tbl.PlayRound(context.Background()))

	assert.Equal(t, 21, g.Players[0].Bank)
	assert.Equal(t, 19, g.Players[1].Bank)

	resolvedAlice := rec.resolved("p1")
	resolvedBob := rec.resolved("p2")
	require.Len(t, resolvedAlice, 1)
	require.Len(t, resolvedBob, 1)
	assert.Equal(t, ResultWin, resolvedAlice[0].Result)
	assert.Equal(t, ResultLose, resolvedBob[0].Result)
}

func TestBrokePlayerSitsRoundOut(t *testing.T) {
	shoe := riggedShoe(deck.Ten, deck.Nine, deck.Ten, deck.Eight)
	g := &Game{
		ID:   "game-1",
		Shoe: shoe,
		Players: []*Player{
			{ID: "p1", Name: "alice", Seat: 1, Bank: 20, Active: true},
			{ID: "p2", Name: "bob", Seat: 2, Bank: 0, Active: true},
			{ID: "dealer", Name: "Dealer", IsDealer: true},
		},
	}
	tbl := NewTable(g, NopSync{}, log.New(io.Discard),
		WithConfig(testConfig()),
		WithDefaultAgent(&scriptedAgent{}),
	)
	rec := &eventRecorder{}
	tbl.Events().Subscribe(rec)

	require.NoError(t, tbl.PlayRound(context.Background()))

	// Bob takes no cards and keeps his empty bank.
	assert.Equal(t, 0, rec.dealtTo("p2"))
	assert.Equal(t, 0, g.Players[1].Bank)
	assert.Equal(t, 21, g.Players[0].Bank)
}

func TestGameRosterHelpers(t *testing.T) {
	g := &Game{Players: []*Player{
		{ID: "p1", Seat: 1},
		{ID: "p3", Seat: 3},
		{ID: "dealer", IsDealer: true},
	}}

	p2 := &Player{ID: "p2", Seat: 2}
	g.AddPlayer(p2)

	require.Len(t, g.Players, 4)
	assert.Equal(t, []string{"p1", "p2", "p3", "dealer"}, playerIDs(g))
	assert.Equal(t, "dealer", g.Dealer().ID)
	assert.Same(t, p2, g.PlayerByID("p2"))
	assert.Equal(t, "p3", g.NextPlayer(p2).ID)
	assert.Nil(t, g.NextPlayer(g.Dealer()))

	g.RemovePlayer("p2")
	assert.Equal(t, []string{"p1", "p3", "dealer"}, playerIDs(g))

	// The dealer cannot be removed.
	g.RemovePlayer("dealer")
	assert.Equal(t, "dealer", g.Dealer().ID)
}

func playerIDs(g *Game) []string {
	out := make([]string, len(g.Players))
	for i, p := range g.Players {
		out[i] = p.ID
	}
	return out
}
