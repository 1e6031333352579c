package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/blackjacktable/internal/store"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 65536
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps one client's websocket. Requests run against the server's
// store; subscription state decides which change notifications are relayed.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu          sync.RWMutex
	gameSubID   string
	playerSubID string
	subGame     bool
	subPlayers  bool
}

// NewConnection creates a connection wrapper owned by srv.
func NewConnection(conn *websocket.Conn, srv *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: srv,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel closed during shutdown.
			c.logger.Debug("send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// wantsGameChanges reports whether the connection subscribed to a game's row.
func (c *Connection) wantsGameChanges(gameID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subGame && (c.gameSubID == "" || c.gameSubID == gameID)
}

func (c *Connection) wantsPlayerChanges(gameID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subPlayers && (c.playerSubID == "" || c.playerSubID == gameID)
}

func (c *Connection) readPump() {
	defer func() {
		c.server.unregister <- c
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("received message", "type", msg.Type, "requestId", msg.RequestID)

	switch msg.Type {
	case MessageTypeGetGame:
		var data GetGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse get game data")
			return
		}
		c.handleGetGame(msg, data)

	case MessageTypeUpdateGame:
		var data UpdateGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse update game data")
			return
		}
		c.handleUpdateGame(msg, data)

	case MessageTypeInsertPlayer:
		var data InsertPlayerData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse insert player data")
			return
		}
		c.handleInsertPlayer(msg, data)

	case MessageTypeUpdatePlayer:
		var data UpdatePlayerData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse update player data")
			return
		}
		c.handleUpdatePlayer(msg, data)

	case MessageTypeListPlayers:
		var data ListPlayersData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse list players data")
			return
		}
		c.handleListPlayers(msg, data)

	case MessageTypeFindPlayer:
		var data FindPlayerData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse find player data")
			return
		}
		c.handleFindPlayer(msg, data)

	case MessageTypeSubscribeGame:
		var data SubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse subscribe data")
			return
		}
		c.mu.Lock()
		c.subGame = true
		c.gameSubID = data.GameID
		c.mu.Unlock()
		c.sendResult(msg, OKData{OK: true})

	case MessageTypeSubscribePlayers:
		var data SubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, errCodeInvalidMessage, "failed to parse subscribe data")
			return
		}
		c.mu.Lock()
		c.subPlayers = true
		c.playerSubID = data.GameID
		c.mu.Unlock()
		c.sendResult(msg, OKData{OK: true})

	default:
		c.sendError(msg, errCodeUnknownType, "unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleGetGame(msg *Message, data GetGameData) {
	g, err := c.server.store.GetOrCreateActiveGame(c.ctx, data.Shoe)
	if err != nil {
		c.sendStoreError(msg, err)
		return
	}
	c.sendResult(msg, GameResultData{Game: g})
}

func (c *Connection) handleUpdateGame(msg *Message, data UpdateGameData) {
	if err := c.server.store.UpdateGame(c.ctx, data.GameID, data.Patch); err != nil {
		c.sendStoreError(msg, err)
		return
	}
	c.sendResult(msg, OKData{OK: true})
}

func (c *Connection) handleInsertPlayer(msg *Message, data InsertPlayerData) {
	row, err := c.server.store.InsertPlayer(c.ctx, data.Player)
	if err != nil {
		c.sendStoreError(msg, err)
		return
	}
	c.sendResult(msg, PlayerResultData{Player: row})
}

func (c *Connection) handleUpdatePlayer(msg *Message, data UpdatePlayerData) {
	if err := c.server.store.UpdatePlayer(c.ctx, data.PlayerID, data.Patch); err != nil {
		c.sendStoreError(msg, err)
		return
	}
	c.sendResult(msg, OKData{OK: true})
}

func (c *Connection) handleListPlayers(msg *Message, data ListPlayersData) {
	players, err := c.server.store.ListActivePlayers(c.ctx, data.GameID)
	if err != nil {
		c.sendStoreError(msg, err)
		return
	}
	c.sendResult(msg, PlayersResultData{Players: players})
}

func (c *Connection) handleFindPlayer(msg *Message, data FindPlayerData) {
	row, err := c.server.store.FindPlayer(c.ctx, data.GameID, data.Name, data.Seat)
	if err != nil {
		c.sendStoreError(msg, err)
		return
	}
	c.sendResult(msg, PlayerResultData{Player: row})
}

func (c *Connection) sendResult(req *Message, data interface{}) {
	msg, err := NewMessage(MessageTypeResult, data)
	if err != nil {
		c.logger.Error("failed to create result message", "error", err)
		return
	}
	msg.RequestID = req.RequestID
	_ = c.SendMessage(msg)
}

func (c *Connection) sendError(req *Message, code, message string) {
	msg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error("failed to create error message", "error", err)
		return
	}
	msg.RequestID = req.RequestID
	_ = c.SendMessage(msg)
}

func (c *Connection) sendStoreError(req *Message, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.sendError(req, errCodeNotFound, err.Error())
	case errors.Is(err, store.ErrUniqueViolation):
		c.sendError(req, errCodeUniqueViolation, err.Error())
	default:
		c.sendError(req, errCodeInternal, err.Error())
	}
}
