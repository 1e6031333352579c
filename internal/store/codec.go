package store

import (
	"encoding/json"

	"github.com/lox/blackjacktable/internal/deck"
	"github.com/lox/blackjacktable/internal/game"
)

// EncodeShoe encodes a shoe for the games row.
func EncodeShoe(cards []deck.Card) string {
	if cards == nil {
		cards = []deck.Card{}
	}
	data, err := json.Marshal(cards)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeShoe decodes a stored shoe. Malformed or empty input yields nil
// rather than an error; the caller falls back to its local shoe.
func DecodeShoe(s string) []deck.Card {
	if s == "" {
		return nil
	}
	var cards []deck.Card
	if err := json.Unmarshal([]byte(s), &cards); err != nil {
		return nil
	}
	return cards
}

// EncodeHands encodes a player's hands for the players row.
func EncodeHands(hands []*game.Hand) string {
	if hands == nil {
		hands = []*game.Hand{}
	}
	data, err := json.Marshal(hands)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeHands decodes stored hands. Malformed input yields nil.
func DecodeHands(s string) []*game.Hand {
	if s == "" {
		return nil
	}
	var hands []*game.Hand
	if err := json.Unmarshal([]byte(s), &hands); err != nil {
		return nil
	}
	return hands
}
