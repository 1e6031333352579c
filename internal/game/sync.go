package game

import "context"

// Sync pushes locally mutated state out to the shared store. The table calls
// it after every externally visible change; failures are logged and never
// interrupt play, so local state remains the in-round authority.
type Sync interface {
	PublishGame(ctx context.Context, g *Game) error
	PublishHands(ctx context.Context, p *Player) error
	PublishBank(ctx context.Context, p *Player) error
}

// NopSync discards all publishes. Used for offline play and tests.
type NopSync struct{}

func (NopSync) PublishGame(context.Context, *Game) error    { return nil }
func (NopSync) PublishHands(context.Context, *Player) error { return nil }
func (NopSync) PublishBank(context.Context, *Player) error  { return nil }
