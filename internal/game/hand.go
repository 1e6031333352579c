package game

import (
	"encoding/json"

	"github.com/lox/blackjacktable/internal/deck"
	"github.com/lox/blackjacktable/internal/gameid"
)

// HandResult is the outcome of a hand, set at most once per round.
type HandResult string

const (
	ResultNone      HandResult = ""
	ResultWin       HandResult = "win"
	ResultLose      HandResult = "lose"
	ResultPush      HandResult = "push"
	ResultBlackjack HandResult = "blackjack"
	ResultBust      HandResult = "bust"
)

// Hand is one bettable unit of cards belonging to a player. A player owns one
// hand normally, two after a split.
//
// The hand's total is a tagged value: normally computed from the cards, but a
// total synchronized from the store overrides local computation until the
// hand is reset. Once synchronized, the store is the authority for a hand
// another client is playing, not local recomputation.
type Hand struct {
	ID     string
	Cards  []deck.Card
	Bet    int
	Result HandResult

	authoritative bool
	remoteTotal   int
}

// NewHand creates an empty hand with the given initial bet.
func NewHand(bet int) *Hand {
	return &Hand{ID: gameid.Generate(), Bet: bet}
}

// AddCard appends a drawn card and invalidates any authoritative total.
func (h *Hand) AddCard(c deck.Card) {
	h.Cards = append(h.Cards, c)
	h.authoritative = false
}

// Total returns the hand's blackjack total: the authoritative remote total if
// one has been applied, otherwise the locally computed value.
func (h *Hand) Total() int {
	if h.authoritative {
		return h.remoteTotal
	}
	return deck.Evaluate(h.Cards)
}

// SetAuthoritativeTotal records a total received from the store. It wins over
// local computation until the hand changes or resets.
func (h *Hand) SetAuthoritativeTotal(total int) {
	h.authoritative = true
	h.remoteTotal = total
}

// IsBust reports whether the hand exceeds 21.
func (h *Hand) IsBust() bool {
	return h.Total() > 21
}

// IsBlackjack reports whether the hand is a two-card 21.
func (h *Hand) IsBlackjack() bool {
	return len(h.Cards) == 2 && h.Total() == 21
}

// Merge copies synchronized state from other into h in place, keeping h's
// identity so references held by the game survive. The authoritative total
// tag carries over with it.
func (h *Hand) Merge(other *Hand) {
	h.Cards = other.Cards
	h.Bet = other.Bet
	h.Result = other.Result
	h.authoritative = other.authoritative
	h.remoteTotal = other.remoteTotal
}

// Reset clears cards, bet, result and any authoritative total.
func (h *Hand) Reset() {
	h.Cards = nil
	h.Bet = 0
	h.Result = ResultNone
	h.authoritative = false
	h.remoteTotal = 0
}

type handJSON struct {
	ID     string      `json:"id"`
	Cards  []deck.Card `json:"cards"`
	Bet    int         `json:"bet"`
	Result HandResult  `json:"result,omitempty"`
	Total  *int        `json:"total,omitempty"`
}

// MarshalJSON encodes the hand in the stored row format, including the
// computed total so other clients can display it without re-evaluating.
func (h *Hand) MarshalJSON() ([]byte, error) {
	total := h.Total()
	return json.Marshal(handJSON{
		ID:     h.ID,
		Cards:  h.Cards,
		Bet:    h.Bet,
		Result: h.Result,
		Total:  &total,
	})
}

// UnmarshalJSON decodes a stored hand. A total present in the payload becomes
// the hand's authoritative total.
func (h *Hand) UnmarshalJSON(data []byte) error {
	var row handJSON
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	h.ID = row.ID
	if h.ID == "" {
		h.ID = gameid.Generate()
	}
	h.Cards = row.Cards
	h.Bet = row.Bet
	h.Result = row.Result
	h.authoritative = false
	if row.Total != nil {
		h.SetAuthoritativeTotal(*row.Total)
	}
	return nil
}
