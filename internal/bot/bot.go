// Package bot provides built-in blackjack playing strategies implementing
// the game.Agent interface. They drive unattended seats and simulations.
package bot

import (
	"fmt"
	"strings"

	"github.com/lox/blackjacktable/internal/deck"
	"github.com/lox/blackjacktable/internal/game"
)

// New creates a strategy by name: "stand", "threshold" or "basic".
func New(name string) (game.Agent, error) {
	switch strings.ToLower(name) {
	case "stand":
		return Stand{}, nil
	case "threshold":
		return Threshold{Limit: 16}, nil
	case "basic":
		return Basic{}, nil
	default:
		return nil, fmt.Errorf("unknown bot strategy: %q", name)
	}
}

// Stand never takes another card.
type Stand struct{}

func (Stand) MakeDecision(view game.HandView, valid []game.Action) game.Action {
	return game.ActionStand
}

// Threshold hits until reaching Limit, mimicking the dealer.
type Threshold struct {
	Limit int
}

func (t Threshold) MakeDecision(view game.HandView, valid []game.Action) game.Action {
	if view.Total <= t.Limit {
		return game.ActionHit
	}
	return game.ActionStand
}

// Basic plays a simplified basic strategy: split aces and eights, double
// hard 10 and 11, and draw against the dealer's up-card.
type Basic struct{}

func (Basic) MakeDecision(view game.HandView, valid []game.Action) game.Action {
	up := 10
	if view.DealerUpCard != nil {
		up = view.DealerUpCard.Value()
	}

	if allowed(valid, game.ActionSplit) && shouldSplit(view.Cards) {
		return game.ActionSplit
	}
	if allowed(valid, game.ActionDoubleDown) && !isSoft(view.Cards) && (view.Total == 10 || view.Total == 11) && view.Total > up {
		return game.ActionDoubleDown
	}

	if isSoft(view.Cards) {
		if view.Total <= 17 {
			return game.ActionHit
		}
		return game.ActionStand
	}

	switch {
	case view.Total >= 17:
		return game.ActionStand
	case view.Total >= 13:
		if up <= 6 {
			return game.ActionStand
		}
		return game.ActionHit
	case view.Total == 12:
		if up >= 4 && up <= 6 {
			return game.ActionStand
		}
		return game.ActionHit
	default:
		return game.ActionHit
	}
}

func shouldSplit(cards []deck.Card) bool {
	if len(cards) != 2 || cards[0].Rank != cards[1].Rank {
		return false
	}
	return cards[0].Rank == deck.Ace || cards[0].Rank == deck.Eight
}

// isSoft reports whether the hand counts an ace as eleven.
func isSoft(cards []deck.Card) bool {
	hard := 0
	hasAce := false
	for _, c := range cards {
		if c.IsAce() {
			hasAce = true
			hard++
			continue
		}
		hard += c.Value()
	}
	return hasAce && hard+10 <= 21
}

func allowed(valid []game.Action, a game.Action) bool {
	for _, v := range valid {
		if v == a {
			return true
		}
	}
	return false
}
