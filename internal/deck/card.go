// Package deck models blackjack playing cards and the multi-deck shoe.
package deck

import (
	"encoding/json"
	"fmt"
)

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// Suits lists all suits in deck order.
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// MarshalJSON encodes the suit as its symbol, matching the stored row format.
func (s Suit) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a suit symbol.
func (s *Suit) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	suit, err := ParseSuit(str)
	if err != nil {
		return err
	}
	*s = suit
	return nil
}

// ParseSuit parses a suit symbol
func ParseSuit(s string) (Suit, error) {
	for _, suit := range Suits {
		if suit.String() == s {
			return suit, nil
		}
	}
	return 0, fmt.Errorf("invalid suit: %q", s)
}

// Rank represents a card rank
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// Ranks lists all ranks in deck order.
var Ranks = []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// String returns the string representation of a rank
func (r Rank) String() string {
	switch {
	case r >= Two && r <= Ten:
		return fmt.Sprintf("%d", int(r))
	case r == Jack:
		return "J"
	case r == Queen:
		return "Q"
	case r == King:
		return "K"
	case r == Ace:
		return "A"
	default:
		return "?"
	}
}

// Value returns the blackjack value of the rank. Aces count as 11 here;
// Evaluate demotes them to 1 as needed to avoid busting.
func (r Rank) Value() int {
	switch {
	case r >= Two && r <= Ten:
		return int(r)
	case r >= Jack && r <= King:
		return 10
	case r == Ace:
		return 11
	default:
		return 0
	}
}

// MarshalJSON encodes the rank as its display string ("2".."10", "J", "Q", "K", "A").
func (r Rank) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a rank display string.
func (r *Rank) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	rank, err := ParseRank(str)
	if err != nil {
		return err
	}
	*r = rank
	return nil
}

// ParseRank parses a rank display string
func ParseRank(s string) (Rank, error) {
	for _, rank := range Ranks {
		if rank.String() == s {
			return rank, nil
		}
	}
	return 0, fmt.Errorf("invalid rank: %q", s)
}

// Card represents a playing card. Index is the card's stable position within
// the unshuffled shoe, so the same physical card keeps its identity across
// clients. Immutable once drawn.
type Card struct {
	Rank  Rank `json:"rank"`
	Suit  Suit `json:"suit"`
	Index int  `json:"index"`
}

// String returns the string representation of a card (e.g., "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Value returns the blackjack value of the card
func (c Card) Value() int {
	return c.Rank.Value()
}

// IsAce returns true if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}
