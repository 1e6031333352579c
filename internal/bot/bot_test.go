package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/blackjacktable/internal/deck"
	"github.com/lox/blackjacktable/internal/game"
)

func view(upRank deck.Rank, ranks ...deck.Rank) game.HandView {
	cards := make([]deck.Card, len(ranks))
	for i, r := range ranks {
		cards[i] = deck.Card{Rank: r, Suit: deck.Suits[i%4], Index: i}
	}
	up := deck.Card{Rank: upRank, Suit: deck.Spades, Index: 51}
	return game.HandView{
		Cards:        cards,
		Total:        deck.Evaluate(cards),
		Bet:          1,
		Bank:         20,
		HandCount:    1,
		DealerUpCard: &up,
	}
}

var allActions = []game.Action{game.ActionStand, game.ActionHit, game.ActionSplit, game.ActionDoubleDown}

func TestNewStrategies(t *testing.T) {
	for _, name := range []string{"stand", "threshold", "basic"} {
		agent, err := New(name)
		require.NoError(t, err)
		require.NotNil(t, agent)
	}

	_, err := New("martingale")
	assert.Error(t, err)
}

func TestStandAlwaysStands(t *testing.T) {
	assert.Equal(t, game.ActionStand, Stand{}.MakeDecision(view(deck.Ace, deck.Two, deck.Three), allActions))
}

func TestThresholdHitsToLimit(t *testing.T) {
	agent := Threshold{Limit: 16}
	assert.Equal(t, game.ActionHit, agent.MakeDecision(view(deck.Six, deck.Ten, deck.Six), allActions))
	assert.Equal(t, game.ActionStand, agent.MakeDecision(view(deck.Six, deck.Ten, deck.Seven), allActions))
}

func TestBasicStrategy(t *testing.T) {
	tests := []struct {
		name     string
		view     game.HandView
		valid    []game.Action
		expected game.Action
	}{
		{"splits aces", view(deck.Ten, deck.Ace, deck.Ace), allActions, game.ActionSplit},
		{"splits eights", view(deck.Ten, deck.Eight, deck.Eight), allActions, game.ActionSplit},
		{"keeps tens together", view(deck.Six, deck.Ten, deck.Ten), allActions, game.ActionStand},
		{"no split offered", view(deck.Ten, deck.Eight, deck.Eight), []game.Action{game.ActionStand, game.ActionHit}, game.ActionHit},
		{"doubles hard eleven", view(deck.Six, deck.Five, deck.Six), allActions, game.ActionDoubleDown},
		{"doubles hard ten", view(deck.Six, deck.Four, deck.Six), allActions, game.ActionDoubleDown},
		{"stands hard seventeen", view(deck.Ten, deck.Ten, deck.Seven), allActions, game.ActionStand},
		{"stands fourteen against six", view(deck.Six, deck.Ten, deck.Four), allActions, game.ActionStand},
		{"hits fourteen against ten", view(deck.Ten, deck.Ten, deck.Four), allActions, game.ActionHit},
		{"stands twelve against five", view(deck.Five, deck.Ten, deck.Two), allActions, game.ActionStand},
		{"hits twelve against two", view(deck.Two, deck.Ten, deck.Two), allActions, game.ActionHit},
		{"hits soft seventeen", view(deck.Ten, deck.Ace, deck.Six), allActions, game.ActionHit},
		{"stands soft eighteen", view(deck.Ten, deck.Ace, deck.Seven), allActions, game.ActionStand},
		{"hits low totals", view(deck.Ten, deck.Two, deck.Three), allActions, game.ActionHit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Basic{}.MakeDecision(tt.view, tt.valid))
		})
	}
}
