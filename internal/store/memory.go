package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lox/blackjacktable/internal/gameid"
)

// Memory is an in-process Store. It backs offline play and tests, and is the
// authoritative store behind the relay server.
//
// Notifications are delivered asynchronously but in write order: each
// subscription owns a goroutine draining a buffered channel, so a callback
// may safely call back into the table without deadlocking.
type Memory struct {
	mu      sync.Mutex
	games   map[string]GameRow
	players map[string]PlayerRow
	now     func() time.Time

	nextSub  int
	gameSubs map[int]*memorySub[GameRow]
	plySubs  map[int]*memorySub[PlayerRow]
}

type memorySub[T any] struct {
	gameID string
	ch     chan T
	done   chan struct{}
}

func newMemorySub[T any](gameID string, fn func(T)) *memorySub[T] {
	s := &memorySub[T]{
		gameID: gameID,
		ch:     make(chan T, 64),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case row := <-s.ch:
				fn(row)
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// matches reports whether a change to gameID belongs to this subscription.
// An empty subscription gameID receives everything.
func (s *memorySub[T]) matches(gameID string) bool {
	return s.gameID == "" || s.gameID == gameID
}

func (s *memorySub[T]) deliver(row T) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ch <- row:
	case <-s.done:
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games:    make(map[string]GameRow),
		players:  make(map[string]PlayerRow),
		now:      time.Now,
		gameSubs: make(map[int]*memorySub[GameRow]),
		plySubs:  make(map[int]*memorySub[PlayerRow]),
	}
}

func (m *Memory) GetOrCreateActiveGame(ctx context.Context, shoe string) (GameRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		if !g.GameOver {
			return g, nil
		}
	}
	g := GameRow{ID: gameid.Generate(), Shoe: shoe}
	m.games[g.ID] = g
	return g, nil
}

func (m *Memory) UpdateGame(ctx context.Context, id string, patch GamePatch) error {
	m.mu.Lock()
	g, ok := m.games[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if patch.Shoe != nil {
		g.Shoe = *patch.Shoe
	}
	if patch.CardsPlayed != nil {
		g.CardsPlayed = *patch.CardsPlayed
	}
	if patch.GameOver != nil {
		g.GameOver = *patch.GameOver
	}
	m.games[id] = g
	subs := collectSubs(m.gameSubs, g.ID)
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(g)
	}
	return nil
}

func (m *Memory) InsertPlayer(ctx context.Context, row PlayerRow) (PlayerRow, error) {
	m.mu.Lock()
	for _, p := range m.players {
		if p.GameID == row.GameID && p.Active && (p.Seat == row.Seat || p.Name == row.Name) {
			m.mu.Unlock()
			return PlayerRow{}, ErrUniqueViolation
		}
	}
	if row.ID == "" {
		row.ID = gameid.Generate()
	}
	if row.Hands == "" {
		row.Hands = "[]"
	}
	row.Active = true
	if row.LastActive.IsZero() {
		row.LastActive = m.now()
	}
	m.players[row.ID] = row
	subs := collectSubs(m.plySubs, row.GameID)
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(row)
	}
	return row, nil
}

func (m *Memory) UpdatePlayer(ctx context.Context, id string, patch PlayerPatch) error {
	m.mu.Lock()
	p, ok := m.players[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Seat != nil {
		p.Seat = *patch.Seat
	}
	if patch.Bank != nil {
		p.Bank = *patch.Bank
	}
	if patch.Hands != nil {
		p.Hands = *patch.Hands
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.LastActive != nil {
		p.LastActive = *patch.LastActive
	}
	m.players[id] = p
	subs := collectSubs(m.plySubs, p.GameID)
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(p)
	}
	return nil
}

func (m *Memory) ListActivePlayers(ctx context.Context, gameID string) ([]PlayerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PlayerRow
	for _, p := range m.players {
		if p.GameID == gameID && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out, nil
}

func (m *Memory) FindPlayer(ctx context.Context, gameID, name string, seat int) (PlayerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exact := func(p PlayerRow) bool { return p.Name == name && p.Seat == seat }
	better := func(p, best PlayerRow) bool {
		if exact(p) != exact(best) {
			return exact(p)
		}
		return p.LastActive.After(best.LastActive)
	}

	var best PlayerRow
	found := false
	for _, p := range m.players {
		if p.GameID != gameID || (p.Name != name && p.Seat != seat) {
			continue
		}
		if !found || better(p, best) {
			best = p
			found = true
		}
	}
	if !found {
		return PlayerRow{}, ErrNotFound
	}
	return best, nil
}

func (m *Memory) SubscribeGame(ctx context.Context, gameID string, fn func(GameRow)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	sub := newMemorySub(gameID, fn)
	m.gameSubs[id] = sub
	return func() { m.unsubscribeGame(id, sub) }, nil
}

func (m *Memory) SubscribePlayers(ctx context.Context, gameID string, fn func(PlayerRow)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	sub := newMemorySub(gameID, fn)
	m.plySubs[id] = sub
	return func() { m.unsubscribePlayers(id, sub) }, nil
}

func (m *Memory) unsubscribeGame(id int, sub *memorySub[GameRow]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gameSubs[id]; ok {
		delete(m.gameSubs, id)
		close(sub.done)
	}
}

func (m *Memory) unsubscribePlayers(id int, sub *memorySub[PlayerRow]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plySubs[id]; ok {
		delete(m.plySubs, id)
		close(sub.done)
	}
}

func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.gameSubs {
		delete(m.gameSubs, id)
		close(s.done)
	}
	for id, s := range m.plySubs {
		delete(m.plySubs, id)
		close(s.done)
	}
}

func collectSubs[T any](subs map[int]*memorySub[T], gameID string) []*memorySub[T] {
	var out []*memorySub[T]
	for _, s := range subs {
		if s.matches(gameID) {
			out = append(out, s)
		}
	}
	return out
}
