package game

import (
	"github.com/lox/blackjacktable/internal/deck"
)

// Game is the shared table state. Shoe, CardsPlayed and GameOver are
// persisted; the remaining fields describe the in-flight round and are local
// to each participant.
type Game struct {
	ID          string
	Shoe        []deck.Card
	CardsPlayed int
	GameOver    bool

	Players      []*Player
	ActivePlayer *Player
	ActiveHand   *Hand
	Dealing      bool
	ShowHoleCard bool
}

// Dealer returns the dealer player, or nil if the roster is empty.
func (g *Game) Dealer() *Player {
	if n := len(g.Players); n > 0 && g.Players[n-1].IsDealer {
		return g.Players[n-1]
	}
	return nil
}

// Seated returns the non-dealer players in seat order.
func (g *Game) Seated() []*Player {
	out := make([]*Player, 0, len(g.Players))
	for _, p := range g.Players {
		if !p.IsDealer {
			out = append(out, p)
		}
	}
	return out
}

// PlayerByID returns the player with the given id, or nil.
func (g *Game) PlayerByID(id string) *Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AddPlayer inserts a seated player before the dealer, keeping non-dealer
// players sorted by seat.
func (g *Game) AddPlayer(p *Player) {
	seated := g.Seated()
	insert := len(seated)
	for i, other := range seated {
		if p.Seat < other.Seat {
			insert = i
			break
		}
	}
	players := make([]*Player, 0, len(g.Players)+1)
	players = append(players, seated[:insert]...)
	players = append(players, p)
	players = append(players, seated[insert:]...)
	if d := g.Dealer(); d != nil {
		players = append(players, d)
	}
	g.Players = players
}

// RemovePlayer drops the player with the given id from the roster.
func (g *Game) RemovePlayer(id string) {
	for i, p := range g.Players {
		if p.ID == id && !p.IsDealer {
			g.Players = append(g.Players[:i:i], g.Players[i+1:]...)
			return
		}
	}
}

// NextPlayer returns the player after p in table order, or nil when p is the
// last (the dealer).
func (g *Game) NextPlayer(p *Player) *Player {
	for i, other := range g.Players {
		if other == p {
			if i+1 < len(g.Players) {
				return g.Players[i+1]
			}
			return nil
		}
	}
	return nil
}
