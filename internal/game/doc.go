// Package game implements the core blackjack table logic.
//
// The main type is Table, which drives a shared multi-seat game through its
// round lifecycle: betting, dealing, per-player turns (hit, stand, split,
// double-down), dealer play and settlement. State that other participants
// must see is pushed through a Sync after every externally visible mutation;
// inbound updates from other participants are merged back into the same
// Game/Player/Hand objects in place (see the gamesync package).
//
// # Basic Usage
//
// Create and run a table against a synchronized game:
//
//	t := game.NewTable(g, publisher, logger)
//	err := t.Run(ctx) // plays rounds until bankruptcy or ctx cancellation
//
// # Deterministic Testing
//
// Inject an RNG and a pre-built shoe for full control over the deal:
//
//	rng := randutil.New(42)
//	g.Shoe = riggedShoe
//	t := game.NewTable(g, publisher, logger,
//		game.WithRNG(rng),
//		game.WithConfig(game.Config{Decks: 6, MinimumBet: 1, StartingBank: 20}))
//
// Player decisions come from Agents, one per locally driven seat; tests use
// scripted agents.
package game
