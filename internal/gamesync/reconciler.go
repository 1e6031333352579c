package gamesync

import (
	"github.com/charmbracelet/log"

	"github.com/lox/blackjacktable/internal/game"
	"github.com/lox/blackjacktable/internal/store"
)

// Locker grants exclusive access to the live game between table actions.
type Locker interface {
	WithLock(fn func(g *game.Game))
}

// Reconciler applies store change notifications to the live game. Changes to
// rows the local client owns are skipped; everything else is merged into the
// existing Game, Player and Hand objects in place so pointers held by the
// table and its views stay valid.
type Reconciler struct {
	table   Locker
	localID string
	logger  *log.Logger
}

// NewReconciler creates a reconciler for the game guarded by table. localID
// is the locally controlled player's row id, whose notifications echo back
// our own writes.
func NewReconciler(table Locker, localID string, logger *log.Logger) *Reconciler {
	return &Reconciler{table: table, localID: localID, logger: logger}
}

// OnGameChanged merges a games row update. A malformed or empty shoe leaves
// the local shoe untouched.
func (r *Reconciler) OnGameChanged(row store.GameRow) {
	r.table.WithLock(func(g *game.Game) {
		if cards := store.DecodeShoe(row.Shoe); cards != nil {
			g.Shoe = cards
		}
		g.CardsPlayed = row.CardsPlayed
		g.GameOver = row.GameOver
	})
}

// OnPlayerChanged merges a players row update: unseen active players join the
// roster, deactivated players leave it, and known players have their bank and
// hands merged in place.
func (r *Reconciler) OnPlayerChanged(row store.PlayerRow) {
	if row.ID == r.localID {
		return
	}
	r.table.WithLock(func(g *game.Game) {
		p := g.PlayerByID(row.ID)
		switch {
		case p == nil:
			if !row.Active {
				return
			}
			joined := &game.Player{
				ID:     row.ID,
				GameID: row.GameID,
				Name:   row.Name,
				Seat:   row.Seat,
				Bank:   row.Bank,
				Active: true,
			}
			if hands := store.DecodeHands(row.Hands); len(hands) > 0 {
				joined.Hands = hands
			} else {
				joined.ResetHands()
			}
			g.AddPlayer(joined)
			r.logger.Info("player joined", "name", row.Name, "seat", row.Seat)

		case !row.Active:
			g.RemovePlayer(row.ID)
			r.logger.Info("player left", "name", row.Name, "seat", row.Seat)

		default:
			p.Name = row.Name
			p.Seat = row.Seat
			p.Bank = row.Bank
			mergeHands(p, store.DecodeHands(row.Hands))
		}
	})
}

// mergeHands reconciles incoming hands with the player's by hand id,
// mutating matched hands in place rather than swapping the slice elements
// out. nil incoming means the payload was malformed and is ignored.
func mergeHands(p *game.Player, incoming []*game.Hand) {
	if incoming == nil {
		return
	}
	merged := make([]*game.Hand, 0, len(incoming))
	for _, in := range incoming {
		if existing := p.HandByID(in.ID); existing != nil {
			existing.Merge(in)
			merged = append(merged, existing)
			continue
		}
		merged = append(merged, in)
	}
	if len(merged) == 0 {
		p.ResetHands()
		return
	}
	p.Hands = merged
}
