package game

// Player is one participant at the table: either a seated bettor or the
// dealer. The dealer is always the last entry in Game.Players, never bets and
// has no bank.
type Player struct {
	ID       string
	GameID   string
	Name     string
	Seat     int
	IsDealer bool
	Bank     int
	Hands    []*Hand
	Active   bool
}

// ResetHands collapses the player back to a single empty hand, reusing the
// first hand object so references held elsewhere stay valid.
func (p *Player) ResetHands() {
	if len(p.Hands) == 0 {
		p.Hands = []*Hand{NewHand(0)}
		return
	}
	p.Hands[0].Reset()
	p.Hands = p.Hands[:1]
}

// HandByID returns the player's hand with the given id, or nil.
func (p *Player) HandByID(id string) *Hand {
	for _, h := range p.Hands {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// TotalBet returns the sum of bets across all of the player's hands.
func (p *Player) TotalBet() int {
	total := 0
	for _, h := range p.Hands {
		total += h.Bet
	}
	return total
}
