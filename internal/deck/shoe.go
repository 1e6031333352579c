package deck

import (
	rand "math/rand/v2"
)

// DeckSize is the number of cards in a single deck, no jokers.
const DeckSize = 52

// NewShoe builds a shoe of numberOfDecks standard decks, tagged with stable
// per-card indexes, and returns it uniformly shuffled with rng.
func NewShoe(numberOfDecks int, rng *rand.Rand) []Card {
	cards := make([]Card, 0, numberOfDecks*DeckSize)
	index := 0
	for d := 0; d < numberOfDecks; d++ {
		for _, suit := range Suits {
			for _, rank := range Ranks {
				cards = append(cards, Card{Rank: rank, Suit: suit, Index: index})
				index++
			}
		}
	}
	return Shuffle(cards, rng)
}

// Shuffle returns a uniformly random permutation of cards. The input slice is
// not mutated; callers treat the result as the new authoritative sequence.
func Shuffle(cards []Card, rng *rand.Rand) []Card {
	shuffled := make([]Card, len(cards))
	copy(shuffled, cards)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}
