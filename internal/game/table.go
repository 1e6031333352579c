package game

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/blackjacktable/internal/deck"
	"github.com/lox/blackjacktable/internal/randutil"
)

// Table drives a Game through its round lifecycle. All game state is guarded
// by the table mutex; the lock is released while pacing so synchronized
// updates from other participants can be merged mid-round via WithLock.
type Table struct {
	mu     sync.Mutex
	game   *Game
	cfg    Config
	rng    *rand.Rand
	clock  quartz.Clock
	logger *log.Logger
	sync   Sync
	bus    *EventBus

	agents       map[string]Agent
	defaultAgent Agent
}

// NewTable creates a table over g, publishing state changes through s.
func NewTable(g *Game, s Sync, logger *log.Logger, opts ...Option) *Table {
	t := &Table{
		game:   g,
		cfg:    DefaultConfig(),
		rng:    randutil.NewFromTime(),
		clock:  quartz.NewReal(),
		logger: logger,
		sync:   s,
		bus:    NewEventBus(),
		agents: make(map[string]Agent),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sync == nil {
		t.sync = NopSync{}
	}
	return t
}

// Events returns the table's event bus.
func (t *Table) Events() *EventBus { return t.bus }

// WithLock runs fn with exclusive access to the game. Used by the sync
// reconciler to merge remote changes between table actions.
func (t *Table) WithLock(fn func(g *Game)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.game)
}

// Run plays rounds until the game ends or ctx is cancelled. Returns
// ErrGameOver when the lead player goes bankrupt.
func (t *Table) Run(ctx context.Context) error {
	for {
		if err := t.PlayRound(ctx); err != nil {
			return err
		}
	}
}

// PlayRound plays a single complete round: bets, deal, player turns, dealer
// play and settlement.
func (t *Table) PlayRound(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.game
	seated := g.Seated()
	if len(seated) == 0 || g.Dealer() == nil {
		return t.pause(ctx, t.cfg.PaceDelay)
	}

	// The lead seat owns the game lifecycle: once it cannot cover the
	// minimum bet the table is done.
	if seated[0].Bank < t.cfg.MinimumBet {
		g.GameOver = true
		t.publishGame(ctx)
		t.bus.Publish(Event{Type: EventGameOver, PlayerID: seated[0].ID, Time: t.clock.Now()})
		t.logger.Info("game over", "player", seated[0].Name, "bank", seated[0].Bank)
		return ErrGameOver
	}

	for _, p := range g.Players {
		p.ResetHands()
	}
	g.ShowHoleCard = false
	g.ActivePlayer = nil
	g.ActiveHand = nil

	for _, p := range seated {
		if p.Bank < t.cfg.MinimumBet {
			// Sits the round out.
			continue
		}
		if err := t.placeBet(ctx, p, p.Hands[0], t.cfg.MinimumBet); err != nil {
			return err
		}
	}

	t.bus.Publish(Event{Type: EventRoundStarted, Time: t.clock.Now()})
	if err := t.dealRound(ctx); err != nil {
		return err
	}

	t.publishGame(ctx)
	for _, p := range seated {
		if len(p.Hands[0].Cards) > 0 {
			t.publishHands(ctx, p)
		}
	}

	if g.Dealer().Hands[0].IsBlackjack() {
		return t.endRound(ctx)
	}

	first := t.nextBettor(nil)
	if first == nil {
		return t.endRound(ctx)
	}
	return t.playTurn(ctx, first)
}

// placeBet moves chips from the player's bank onto the hand.
func (t *Table) placeBet(ctx context.Context, p *Player, h *Hand, amount int) error {
	if p.Bank < amount {
		return ErrInsufficientBank
	}
	p.Bank -= amount
	h.Bet += amount
	t.publishBank(ctx, p)
	return nil
}

// dealRound deals two passes of one card each, seated players first then the
// dealer. Players sitting the round out are skipped.
func (t *Table) dealRound(ctx context.Context) error {
	g := t.game
	for pass := 0; pass < 2; pass++ {
		for _, p := range g.Players {
			h := p.Hands[0]
			if !p.IsDealer && h.Bet == 0 {
				continue
			}
			card := t.drawCard(ctx)
			h.AddCard(card)

			ev := Event{Type: EventCardDealt, PlayerID: p.ID, HandID: h.ID, Time: t.clock.Now()}
			if !p.IsDealer || pass == 0 {
				// The dealer's second card stays face down.
				c := card
				ev.Card = &c
			}
			t.bus.Publish(ev)

			if err := t.pause(ctx, t.cfg.DealDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// drawCard takes the next card from the shoe, rebuilding it first if the
// shuffle threshold has been crossed.
func (t *Table) drawCard(ctx context.Context) deck.Card {
	g := t.game
	total := t.cfg.Decks * deck.DeckSize
	depleted := float64(g.CardsPlayed)/float64(total) > 1-t.cfg.ShuffleThreshold
	if len(g.Shoe) == 0 || depleted {
		t.logger.Info("reshuffling shoe", "cards_played", g.CardsPlayed)
		g.Shoe = deck.NewShoe(t.cfg.Decks, t.rng)
		g.CardsPlayed = 0
		t.publishGame(ctx)
	}
	card := g.Shoe[0]
	g.Shoe = g.Shoe[1:]
	g.CardsPlayed++
	return card
}

func (t *Table) playTurn(ctx context.Context, p *Player) error {
	if p == nil {
		return t.endRound(ctx)
	}
	if p.IsDealer {
		return t.playDealerHand(ctx)
	}
	return t.playHand(ctx, p, p.Hands[0])
}

// playHand runs one hand to completion: resolves naturals, completes split
// hands, then loops agent decisions until the hand ends.
func (t *Table) playHand(ctx context.Context, p *Player, h *Hand) error {
	g := t.game
	g.ActivePlayer = p
	g.ActiveHand = h
	g.Dealing = true

	if h.IsBlackjack() {
		h.Result = ResultBlackjack
		h.Bet *= 3
		t.publishHands(ctx, p)
		t.bus.Publish(Event{Type: EventHandResolved, PlayerID: p.ID, HandID: h.ID, Result: ResultBlackjack, Time: t.clock.Now()})
		t.logger.Info("blackjack", "player", p.Name)
		if err := t.pause(ctx, t.cfg.PaceDelay); err != nil {
			return err
		}
		return t.endHand(ctx, p)
	}

	if len(h.Cards) == 1 {
		// Second card for a freshly split hand. Split aces receive one
		// card only.
		splitAce := h.Cards[0].IsAce()
		ended, err := t.hit(ctx, p, h)
		if err != nil {
			return err
		}
		if ended {
			return nil
		}
		if splitAce {
			return t.endHand(ctx, p)
		}
	}

	g.Dealing = false

	for g.ActiveHand == h && h.Result == ResultNone {
		valid := t.validActions(p, h)
		action := t.decide(p, h, valid)
		var err error
		switch action {
		case ActionHit:
			_, err = t.hit(ctx, p, h)
		case ActionSplit:
			err = t.split(ctx, p, h)
		case ActionDoubleDown:
			err = t.doubleDown(ctx, p, h)
		default:
			err = t.endHand(ctx, p)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) decide(p *Player, h *Hand, valid []Action) Action {
	agent, ok := t.agents[p.ID]
	if !ok {
		agent = t.defaultAgent
	}
	if agent == nil {
		return ActionStand
	}
	g := t.game
	view := HandView{
		PlayerID:  p.ID,
		Cards:     h.Cards,
		Total:     h.Total(),
		Bet:       h.Bet,
		Bank:      p.Bank,
		HandCount: len(p.Hands),
	}
	for i, other := range p.Hands {
		if other == h {
			view.HandIndex = i
		}
	}
	if d := g.Dealer(); d != nil && len(d.Hands[0].Cards) > 0 {
		up := d.Hands[0].Cards[0]
		view.DealerUpCard = &up
	}
	action := agent.MakeDecision(view, valid)
	for _, v := range valid {
		if action == v {
			return action
		}
	}
	return ActionStand
}

func (t *Table) validActions(p *Player, h *Hand) []Action {
	valid := []Action{ActionStand, ActionHit}
	if t.canSplit(p, h) {
		valid = append(valid, ActionSplit)
	}
	if t.canDoubleDown(p, h) {
		valid = append(valid, ActionDoubleDown)
	}
	return valid
}

func (t *Table) canSplit(p *Player, h *Hand) bool {
	return !t.game.Dealing &&
		len(p.Hands) == 1 &&
		len(h.Cards) == 2 &&
		h.Cards[0].Rank == h.Cards[1].Rank &&
		p.Bank >= h.Bet
}

func (t *Table) canDoubleDown(p *Player, h *Hand) bool {
	return !t.game.Dealing &&
		len(p.Hands) == 1 &&
		len(h.Cards) == 2 &&
		p.Bank >= h.Bet
}

// hit draws one card onto the hand. Returns true when the draw ended the
// hand: a 21 stands automatically and a bust resolves immediately.
func (t *Table) hit(ctx context.Context, p *Player, h *Hand) (bool, error) {
	g := t.game
	g.Dealing = true

	card := t.drawCard(ctx)
	h.AddCard(card)
	t.bus.Publish(Event{Type: EventCardDealt, PlayerID: p.ID, HandID: h.ID, Card: &card, Time: t.clock.Now()})
	if !p.IsDealer {
		t.publishHands(ctx, p)
	}

	if h.Total() == 21 {
		if err := t.pause(ctx, t.cfg.PaceDelay); err != nil {
			return false, err
		}
		if p.IsDealer {
			return true, nil
		}
		return true, t.endHand(ctx, p)
	}
	if h.IsBust() {
		if !p.IsDealer {
			h.Result = ResultBust
			t.publishHands(ctx, p)
			t.bus.Publish(Event{Type: EventHandResolved, PlayerID: p.ID, HandID: h.ID, Result: ResultBust, Time: t.clock.Now()})
			t.logger.Info("bust", "player", p.Name, "total", h.Total())
		}
		if err := t.pause(ctx, t.cfg.PaceDelay); err != nil {
			return false, err
		}
		if p.IsDealer {
			return true, nil
		}
		return true, t.endHand(ctx, p)
	}

	if err := t.pause(ctx, t.cfg.PaceDelay); err != nil {
		return false, err
	}
	if !p.IsDealer {
		g.Dealing = false
	}
	return false, nil
}

// split turns a qualifying pair into two one-card hands, betting the same
// amount on the second, then replays the turn from the first hand.
func (t *Table) split(ctx context.Context, p *Player, h *Hand) error {
	if !t.canSplit(p, h) {
		return ErrSplitNotAllowed
	}
	second := NewHand(0)
	second.Cards = []deck.Card{h.Cards[1]}
	h.Cards = h.Cards[:1]
	h.authoritative = false
	if err := t.placeBet(ctx, p, second, h.Bet); err != nil {
		return err
	}
	p.Hands = append(p.Hands, second)
	t.publishHands(ctx, p)
	t.logger.Info("split", "player", p.Name)
	return t.playHand(ctx, p, h)
}

// doubleDown doubles the bet, draws exactly one card and ends the hand.
func (t *Table) doubleDown(ctx context.Context, p *Player, h *Hand) error {
	if !t.canDoubleDown(p, h) {
		return ErrDoubleDownNotAllowed
	}
	if err := t.placeBet(ctx, p, h, h.Bet); err != nil {
		return err
	}
	t.publishHands(ctx, p)
	t.logger.Info("double down", "player", p.Name, "bet", h.Bet)
	ended, err := t.hit(ctx, p, h)
	if err != nil {
		return err
	}
	if !ended {
		return t.endHand(ctx, p)
	}
	return nil
}

// endHand advances play: to the player's unplayed split hand if one exists,
// otherwise to the next participant in table order.
func (t *Table) endHand(ctx context.Context, p *Player) error {
	if len(p.Hands) == 2 && len(p.Hands[1].Cards) == 1 {
		return t.playHand(ctx, p, p.Hands[1])
	}
	next := t.game.NextPlayer(p)
	for next != nil && !next.IsDealer && len(next.Hands[0].Cards) == 0 {
		next = t.game.NextPlayer(next)
	}
	return t.playTurn(ctx, next)
}

// playDealerHand reveals the hole card and draws to 17, then settles.
func (t *Table) playDealerHand(ctx context.Context) error {
	g := t.game
	d := g.Dealer()
	h := d.Hands[0]
	g.ActivePlayer = d
	g.ActiveHand = h
	g.Dealing = true

	t.revealHoleCard(d, h)
	if err := t.pause(ctx, t.cfg.PaceDelay); err != nil {
		return err
	}

	if t.allBettorsResolved() {
		return t.endRound(ctx)
	}

	for h.Total() < 17 {
		ended, err := t.hit(ctx, d, h)
		if err != nil {
			return err
		}
		if ended {
			break
		}
	}
	return t.endRound(ctx)
}

func (t *Table) revealHoleCard(d *Player, h *Hand) {
	g := t.game
	if g.ShowHoleCard {
		return
	}
	g.ShowHoleCard = true
	ev := Event{Type: EventHoleCardRevealed, PlayerID: d.ID, HandID: h.ID, Time: t.clock.Now()}
	if len(h.Cards) > 1 {
		c := h.Cards[1]
		ev.Card = &c
	}
	t.bus.Publish(ev)
}

// allBettorsResolved reports whether every dealt hand already has a result,
// in which case the dealer has nothing to draw for.
func (t *Table) allBettorsResolved() bool {
	for _, p := range t.game.Seated() {
		for _, h := range p.Hands {
			if len(h.Cards) > 0 && h.Result == ResultNone {
				return false
			}
		}
	}
	return true
}

// endRound resolves outstanding hands against the dealer, settles bets,
// credits winnings and clears the table for the next round.
func (t *Table) endRound(ctx context.Context) error {
	g := t.game
	if d := g.Dealer(); d != nil {
		t.revealHoleCard(d, d.Hands[0])
	}
	g.ActivePlayer = nil
	g.ActiveHand = nil
	g.Dealing = false

	t.determineResults(ctx)
	t.settleBets()
	t.collectWinnings(ctx)

	if err := t.pause(ctx, t.cfg.PaceDelay); err != nil {
		return err
	}

	for _, p := range g.Players {
		p.ResetHands()
		if !p.IsDealer {
			t.publishHands(ctx, p)
		}
	}
	g.ShowHoleCard = false
	t.publishGame(ctx)
	t.bus.Publish(Event{Type: EventRoundSettled, Time: t.clock.Now()})
	return nil
}

func (t *Table) determineResults(ctx context.Context) {
	g := t.game
	dealerTotal := g.Dealer().Hands[0].Total()
	for _, p := range g.Seated() {
		for _, h := range p.Hands {
			if len(h.Cards) == 0 || h.Result != ResultNone {
				continue
			}
			total := h.Total()
			switch {
			case dealerTotal > 21:
				h.Result = ResultWin
			case total > dealerTotal:
				h.Result = ResultWin
			case total == dealerTotal:
				h.Result = ResultPush
			default:
				h.Result = ResultLose
			}
			t.bus.Publish(Event{Type: EventHandResolved, PlayerID: p.ID, HandID: h.ID, Result: h.Result, Time: t.clock.Now()})
			t.logger.Info("hand resolved", "player", p.Name, "total", total, "dealer", dealerTotal, "result", h.Result)
		}
		t.publishHands(ctx, p)
	}
}

// settleBets converts each result into its payout: wins pay even money,
// naturals were paid 2:1 when detected, pushes return the stake.
func (t *Table) settleBets() {
	for _, p := range t.game.Seated() {
		for _, h := range p.Hands {
			switch h.Result {
			case ResultWin:
				h.Bet *= 2
			case ResultLose, ResultBust:
				h.Bet = 0
			}
		}
	}
}

func (t *Table) collectWinnings(ctx context.Context) {
	for _, p := range t.game.Seated() {
		winnings := p.TotalBet()
		if winnings > 0 {
			p.Bank += winnings
		}
		for _, h := range p.Hands {
			h.Bet = 0
		}
		t.publishBank(ctx, p)
	}
}

// nextBettor returns the first seated player after p (or from the start when
// p is nil) that was dealt cards this round.
func (t *Table) nextBettor(p *Player) *Player {
	seen := p == nil
	for _, other := range t.game.Players {
		if other.IsDealer {
			return nil
		}
		if !seen {
			seen = other == p
			continue
		}
		if len(other.Hands[0].Cards) > 0 {
			return other
		}
	}
	return nil
}

// pause releases the table lock for d so synchronized updates can land, then
// reacquires it. Respects ctx cancellation; a zero delay is a no-op.
func (t *Table) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t.mu.Unlock()
	defer t.mu.Lock()
	timer := t.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Table) publishGame(ctx context.Context) {
	if err := t.sync.PublishGame(ctx, t.game); err != nil {
		t.logger.Warn("failed to publish game state", "error", err)
	}
}

func (t *Table) publishHands(ctx context.Context, p *Player) {
	if p.IsDealer {
		return
	}
	if err := t.sync.PublishHands(ctx, p); err != nil {
		t.logger.Warn("failed to publish hands", "player", p.Name, "error", err)
	}
}

func (t *Table) publishBank(ctx context.Context, p *Player) {
	if p.IsDealer {
		return
	}
	if err := t.sync.PublishBank(ctx, p); err != nil {
		t.logger.Warn("failed to publish bank", "player", p.Name, "error", err)
	}
}
