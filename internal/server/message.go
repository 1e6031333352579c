package server

import (
	"encoding/json"
	"time"

	"github.com/lox/blackjacktable/internal/store"
)

// MessageType identifies a websocket message.
type MessageType string

const (
	// Client → server requests. Each carries a request id that the reply
	// echoes back.
	MessageTypeGetGame          MessageType = "get_game"
	MessageTypeUpdateGame       MessageType = "update_game"
	MessageTypeInsertPlayer     MessageType = "insert_player"
	MessageTypeUpdatePlayer     MessageType = "update_player"
	MessageTypeListPlayers      MessageType = "list_players"
	MessageTypeFindPlayer       MessageType = "find_player"
	MessageTypeSubscribeGame    MessageType = "subscribe_game"
	MessageTypeSubscribePlayers MessageType = "subscribe_players"

	// Server → client replies and notifications.
	MessageTypeResult        MessageType = "result"
	MessageTypeError         MessageType = "error"
	MessageTypeGameChanged   MessageType = "game_changed"
	MessageTypePlayerChanged MessageType = "player_changed"
)

func (t MessageType) String() string { return string(t) }

// Message is the websocket envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server payloads

type GetGameData struct {
	// Shoe seeds a fresh game when no open one exists.
	Shoe string `json:"shoe"`
}

type UpdateGameData struct {
	GameID string          `json:"gameId"`
	Patch  store.GamePatch `json:"patch"`
}

type InsertPlayerData struct {
	Player store.PlayerRow `json:"player"`
}

type UpdatePlayerData struct {
	PlayerID string            `json:"playerId"`
	Patch    store.PlayerPatch `json:"patch"`
}

type ListPlayersData struct {
	GameID string `json:"gameId"`
}

type FindPlayerData struct {
	GameID string `json:"gameId"`
	Name   string `json:"name"`
	Seat   int    `json:"seat"`
}

type SubscribeData struct {
	GameID string `json:"gameId"`
}

// Server → Client payloads

type GameResultData struct {
	Game store.GameRow `json:"game"`
}

type PlayerResultData struct {
	Player store.PlayerRow `json:"player"`
}

type PlayersResultData struct {
	Players []store.PlayerRow `json:"players"`
}

type OKData struct {
	OK bool `json:"ok"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeInvalidMessage  = "invalid_message"
	errCodeNotFound        = "not_found"
	errCodeUniqueViolation = "unique_violation"
	errCodeInternal        = "internal_error"
	errCodeUnknownType     = "unknown_message_type"
)
