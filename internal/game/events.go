package game

import (
	"sync"
	"time"

	"github.com/lox/blackjacktable/internal/deck"
)

// EventType identifies a table lifecycle event.
type EventType string

const (
	EventRoundStarted     EventType = "round_started"
	EventCardDealt        EventType = "card_dealt"
	EventHandResolved     EventType = "hand_resolved"
	EventHoleCardRevealed EventType = "hole_card_revealed"
	EventRoundSettled     EventType = "round_settled"
	EventGameOver         EventType = "game_over"
	EventPlayerJoined     EventType = "player_joined"
	EventPlayerLeft       EventType = "player_left"
)

// Event is a table lifecycle notification. Fields beyond Type are populated
// where they make sense for the event.
type Event struct {
	Type     EventType
	PlayerID string
	HandID   string
	Card     *deck.Card
	Result   HandResult
	Time     time.Time
}

// Subscriber receives table events. HandleEvent is called synchronously from
// the table loop and must not block.
type Subscriber interface {
	HandleEvent(e Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(e Event)

func (f SubscriberFunc) HandleEvent(e Event) { f(e) }

// EventBus fans table events out to subscribers.
type EventBus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.HandleEvent(e)
	}
}
