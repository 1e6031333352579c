package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/blackjacktable/internal/gameid"
	"github.com/lox/blackjacktable/internal/store"
)

const requestTimeout = 10 * time.Second

// RemoteStore is a store.Store backed by a relay server connection. Requests
// are matched to replies by request id; change notifications fan out to
// local subscribers.
//
// Notifications are delivered asynchronously but in arrival order: each
// subscription owns a goroutine draining a buffered channel, so a callback
// that blocks (the reconciler waits on the table lock) cannot stall the read
// loop and starve an in-flight request's reply.
type RemoteStore struct {
	conn   *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	pending    map[string]chan *Message
	nextSub    int
	gameSubs   map[int]*remoteSub[store.GameRow]
	playerSubs map[int]*remoteSub[store.PlayerRow]
	subGame    bool
	subPlayers bool
	closed     bool
}

type remoteSub[T any] struct {
	ch   chan T
	done chan struct{}
}

func newRemoteSub[T any](fn func(T)) *remoteSub[T] {
	s := &remoteSub[T]{
		ch:   make(chan T, 64),
		done: make(chan struct{}),
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

func (s *remoteSub[T]) deliver(row T) {
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

func (s *remoteSub[T]) stop() { close(s.done) }

// DialRemoteStore connects to a relay server's /ws endpoint.
func DialRemoteStore(ctx context.Context, url string, logger *log.Logger) (*RemoteStore, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay server: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	r := &RemoteStore{
		conn:       conn,
		logger:     logger.WithPrefix("remote-store"),
		pending:    make(map[string]chan *Message),
		gameSubs:   make(map[int]*remoteSub[store.GameRow]),
		playerSubs: make(map[int]*remoteSub[store.PlayerRow]),
	}
	go r.readLoop()
	return r, nil
}

func (r *RemoteStore) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	_ = r.conn.Close()
}

func (r *RemoteStore) readLoop() {
	for {
		var msg Message
		if err := r.conn.ReadJSON(&msg); err != nil {
			r.mu.Lock()
			closed := r.closed
			for id, ch := range r.pending {
				close(ch)
				delete(r.pending, id)
			}
			r.mu.Unlock()
			r.stopSubs()
			if !closed {
				r.logger.Error("relay connection lost", "error", err)
			}
			return
		}

		switch msg.Type {
		case MessageTypeResult, MessageTypeError:
			r.mu.Lock()
			ch, ok := r.pending[msg.RequestID]
			if ok {
				delete(r.pending, msg.RequestID)
			}
			r.mu.Unlock()
			if ok {
				ch <- &msg
			}

		case MessageTypeGameChanged:
			var data GameResultData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				r.logger.Warn("discarding malformed game change", "error", err)
				continue
			}
			r.mu.Lock()
			subs := make([]*remoteSub[store.GameRow], 0, len(r.gameSubs))
			for _, s := range r.gameSubs {
				subs = append(subs, s)
			}
			r.mu.Unlock()
			for _, s := range subs {
				s.deliver(data.Game)
			}

		case MessageTypePlayerChanged:
			var data PlayerResultData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				r.logger.Warn("discarding malformed player change", "error", err)
				continue
			}
			r.mu.Lock()
			subs := make([]*remoteSub[store.PlayerRow], 0, len(r.playerSubs))
			for _, s := range r.playerSubs {
				subs = append(subs, s)
			}
			r.mu.Unlock()
			for _, s := range subs {
				s.deliver(data.Player)
			}

		default:
			r.logger.Debug("ignoring message", "type", msg.Type)
		}
	}
}

// stopSubs tears down every subscription's drain goroutine.
func (r *RemoteStore) stopSubs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.gameSubs {
		delete(r.gameSubs, id)
		s.stop()
	}
	for id, s := range r.playerSubs {
		delete(r.playerSubs, id)
		s.stop()
	}
}

// request sends a message and waits for its reply.
func (r *RemoteStore) request(ctx context.Context, messageType MessageType, data interface{}) (*Message, error) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}
	msg.RequestID = gameid.Generate()

	ch := make(chan *Message, 1)
	r.mu.Lock()
	r.pending[msg.RequestID] = ch
	r.mu.Unlock()

	r.writeMu.Lock()
	err = r.conn.WriteJSON(msg)
	r.writeMu.Unlock()
	if err != nil {
		r.mu.Lock()
		delete(r.pending, msg.RequestID)
		r.mu.Unlock()
		return nil, fmt.Errorf("writing %s request: %w", messageType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, errors.New("relay connection closed")
		}
		if reply.Type == MessageTypeError {
			return nil, decodeError(reply)
		}
		return reply, nil
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.pending, msg.RequestID)
		r.mu.Unlock()
		return nil, ctx.Err()
	}
}

func decodeError(msg *Message) error {
	var data ErrorData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return errors.New("relay error")
	}
	switch data.Code {
	case errCodeNotFound:
		return store.ErrNotFound
	case errCodeUniqueViolation:
		return store.ErrUniqueViolation
	default:
		return fmt.Errorf("relay error: %s: %s", data.Code, data.Message)
	}
}

func (r *RemoteStore) GetOrCreateActiveGame(ctx context.Context, shoe string) (store.GameRow, error) {
	reply, err := r.request(ctx, MessageTypeGetGame, GetGameData{Shoe: shoe})
	if err != nil {
		return store.GameRow{}, err
	}
	var data GameResultData
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		return store.GameRow{}, err
	}
	return data.Game, nil
}

func (r *RemoteStore) UpdateGame(ctx context.Context, id string, patch store.GamePatch) error {
	_, err := r.request(ctx, MessageTypeUpdateGame, UpdateGameData{GameID: id, Patch: patch})
	return err
}

func (r *RemoteStore) InsertPlayer(ctx context.Context, row store.PlayerRow) (store.PlayerRow, error) {
	reply, err := r.request(ctx, MessageTypeInsertPlayer, InsertPlayerData{Player: row})
	if err != nil {
		return store.PlayerRow{}, err
	}
	var data PlayerResultData
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		return store.PlayerRow{}, err
	}
	return data.Player, nil
}

func (r *RemoteStore) UpdatePlayer(ctx context.Context, id string, patch store.PlayerPatch) error {
	_, err := r.request(ctx, MessageTypeUpdatePlayer, UpdatePlayerData{PlayerID: id, Patch: patch})
	return err
}

func (r *RemoteStore) ListActivePlayers(ctx context.Context, gameID string) ([]store.PlayerRow, error) {
	reply, err := r.request(ctx, MessageTypeListPlayers, ListPlayersData{GameID: gameID})
	if err != nil {
		return nil, err
	}
	var data PlayersResultData
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		return nil, err
	}
	return data.Players, nil
}

func (r *RemoteStore) FindPlayer(ctx context.Context, gameID, name string, seat int) (store.PlayerRow, error) {
	reply, err := r.request(ctx, MessageTypeFindPlayer, FindPlayerData{GameID: gameID, Name: name, Seat: seat})
	if err != nil {
		return store.PlayerRow{}, err
	}
	var data PlayerResultData
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		return store.PlayerRow{}, err
	}
	return data.Player, nil
}

func (r *RemoteStore) SubscribeGame(ctx context.Context, gameID string, fn func(store.GameRow)) (func(), error) {
	sub := newRemoteSub(func(row store.GameRow) {
		if gameID == "" || row.ID == gameID {
			fn(row)
		}
	})
	r.mu.Lock()
	needSub := !r.subGame
	r.subGame = true
	id := r.nextSub
	r.nextSub++
	r.gameSubs[id] = sub
	r.mu.Unlock()

	if needSub {
		if _, err := r.request(ctx, MessageTypeSubscribeGame, SubscribeData{GameID: ""}); err != nil {
			r.unsubscribeGame(id)
			return nil, err
		}
	}
	return func() { r.unsubscribeGame(id) }, nil
}

func (r *RemoteStore) SubscribePlayers(ctx context.Context, gameID string, fn func(store.PlayerRow)) (func(), error) {
	sub := newRemoteSub(func(row store.PlayerRow) {
		if gameID == "" || row.GameID == gameID {
			fn(row)
		}
	})
	r.mu.Lock()
	needSub := !r.subPlayers
	r.subPlayers = true
	id := r.nextSub
	r.nextSub++
	r.playerSubs[id] = sub
	r.mu.Unlock()

	if needSub {
		if _, err := r.request(ctx, MessageTypeSubscribePlayers, SubscribeData{GameID: ""}); err != nil {
			r.unsubscribePlayers(id)
			return nil, err
		}
	}
	return func() { r.unsubscribePlayers(id) }, nil
}

func (r *RemoteStore) unsubscribeGame(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.gameSubs[id]; ok {
		delete(r.gameSubs, id)
		s.stop()
	}
}

func (r *RemoteStore) unsubscribePlayers(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.playerSubs[id]; ok {
		delete(r.playerSubs, id)
		s.stop()
	}
}

var _ store.Store = (*RemoteStore)(nil)
