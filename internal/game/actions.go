package game

import "github.com/lox/blackjacktable/internal/deck"

// Action is a player decision during their turn.
type Action string

const (
	ActionStand      Action = "stand"
	ActionHit        Action = "hit"
	ActionSplit      Action = "split"
	ActionDoubleDown Action = "double_down"
)

// HandView is the information an agent sees when deciding how to play a
// hand: its own cards and the dealer's up-card, never the hole card.
type HandView struct {
	PlayerID     string
	Cards        []deck.Card
	Total        int
	Bet          int
	Bank         int
	HandIndex    int
	HandCount    int
	DealerUpCard *deck.Card
}

// Agent decides how to play a hand. MakeDecision must return one of the
// offered actions; anything else is treated as a stand.
type Agent interface {
	MakeDecision(view HandView, valid []Action) Action
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(view HandView, valid []Action) Action

func (f AgentFunc) MakeDecision(view HandView, valid []Action) Action {
	return f(view, valid)
}
