package game

import "errors"

var (
	// ErrGameOver is returned by Run and PlayRound once the first seated
	// player can no longer cover the minimum bet.
	ErrGameOver = errors.New("game over")

	// ErrInsufficientBank is returned when a bet exceeds the player's bank.
	ErrInsufficientBank = errors.New("insufficient bank")

	// ErrSplitNotAllowed is returned when a split is requested on a hand
	// that does not qualify.
	ErrSplitNotAllowed = errors.New("split not allowed")

	// ErrDoubleDownNotAllowed is returned when a double-down is requested
	// on a hand that does not qualify.
	ErrDoubleDownNotAllowed = errors.New("double down not allowed")

	// ErrNoActiveHand is returned when an action arrives outside a turn.
	ErrNoActiveHand = errors.New("no active hand")
)
