package deck

// Evaluate returns the best blackjack total for cards: aces count as 11, then
// are demoted to 1 one at a time while the total exceeds 21. Pure and
// deterministic.
func Evaluate(cards []Card) int {
	total := 0
	aces := 0
	for _, c := range cards {
		if c.IsAce() {
			aces++
		}
		total += c.Value()
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}
