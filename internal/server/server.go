// Package server hosts the table relay: a websocket front over an
// authoritative Store, so clients without a database share state through one
// process. Each request message is executed against the store and answered
// with a result envelope; row changes fan out to subscribed connections.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/lox/blackjacktable/internal/store"
)

// Server relays store operations over websockets.
type Server struct {
	store       store.Store
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates a relay over the given authoritative store.
func NewServer(s store.Store, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store: s,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Clients are trusted peers on the same table.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Handler returns the HTTP routes: the websocket endpoint and a health check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	return r
}

// Start runs the relay until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.run()
	if err := s.subscribeStore(); err != nil {
		return err
	}

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
		s.Stop()
	}()

	s.logger.Info("starting relay server", "addr", addr)
	err := srv.ListenAndServe()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// StartBackground runs the hub without binding a listener, for embedding the
// handler in a test server.
func (s *Server) StartBackground() error {
	go s.run()
	return s.subscribeStore()
}

// Stop closes every connection and stops the hub.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()
}

// subscribeStore wires the store's change feeds into the broadcast path. The
// empty game id matches every game, so one pair of subscriptions serves all
// connections.
func (s *Server) subscribeStore() error {
	if _, err := s.store.SubscribeGame(s.ctx, "", s.broadcastGameChange); err != nil {
		return err
	}
	if _, err := s.store.SubscribePlayers(s.ctx, "", s.broadcastPlayerChange); err != nil {
		return err
	}
	return nil
}

func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("client disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) broadcastGameChange(row store.GameRow) {
	msg, err := NewMessage(MessageTypeGameChanged, GameResultData{Game: row})
	if err != nil {
		s.logger.Error("failed to encode game change", "error", err)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.wantsGameChanges(row.ID) {
			_ = conn.SendMessage(msg)
		}
	}
}

func (s *Server) broadcastPlayerChange(row store.PlayerRow) {
	msg, err := NewMessage(MessageTypePlayerChanged, PlayerResultData{Player: row})
	if err != nil {
		s.logger.Error("failed to encode player change", "error", err)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.wantsPlayerChanges(row.GameID) {
			_ = conn.SendMessage(msg)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	conn := NewConnection(ws, s, s.logger)
	s.register <- conn
	conn.Start()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
