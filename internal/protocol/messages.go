// internal/protocol/messages.go
package protocol

import "encoding/json"

// Client->server event names. One persistent websocket carries every event;
// the envelope's Event field selects the handler.
const (
	EventCreateRoom         = "createRoom"
	EventJoinRoom           = "joinRoom"
	EventPlayerReady        = "playerReady"
	EventBattleScreenLoaded = "battleScreenLoaded"
	EventTypingProgress     = "typingProgress"
	EventTypingComplete     = "typingComplete"
	EventLeaveRoom          = "leaveRoom"
	EventEnsureInRoom       = "ensureInRoom"
	EventGetGameStatus      = "getGameStatus"
	EventRematchRequest     = "rematchRequest"
	EventRematchAccepted    = "rematchAccepted"
	EventRematchDeclined    = "rematchDeclined"
	EventGiveUp             = "giveUp"
	EventPing               = "ping"
)

// Server->client event names.
const (
	EventRoomCreated        = "roomCreated"
	EventRoomJoined         = "roomJoined"
	EventPlayerJoined       = "playerJoined"
	EventPlayerLeft         = "playerLeft"
	EventPlayerStatusUpdate = "playerStatusUpdate"
	EventGameStart          = "gameStart"
	EventSyncCountdown      = "syncCountdown"
	EventBattleStart        = "battleStart"
	EventGameUpdate         = "gameUpdate"
	EventGameOver           = "gameOver"
	EventGameStatusResponse = "gameStatusResponse"
	EventRoomError          = "roomError"
	EventError              = "error"
	EventPong               = "pong"
)

// ClientMessage is the inbound frame envelope. Data is decoded lazily once the
// event name is known.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the outbound frame envelope.
type ServerMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Settings selects the text sample a room races on. Opaque to the room logic
// beyond being handed to text generation.
type Settings struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
}

// CreateRoomPayload asks the server to create a room under a caller-supplied code.
type CreateRoomPayload struct {
	RoomCode string   `json:"roomCode"`
	Settings Settings `json:"settings"`
}

// RoomPayload covers the events that carry only a room code
// (joinRoom, playerReady, leaveRoom, giveUp).
type RoomPayload struct {
	RoomCode string `json:"roomCode"`
}

// ReconcilePayload carries the optional identity hints the client cached
// earlier in the session (battleScreenLoaded, ensureInRoom, getGameStatus).
type ReconcilePayload struct {
	RoomCode         string `json:"roomCode"`
	PreviousSocketID string `json:"previousSocketId,omitempty"`
	PlayerIndex      *int   `json:"playerIndex,omitempty"`
}

// TypingProgressPayload is a throttled telemetry sample (<= ~10/s per client).
type TypingProgressPayload struct {
	RoomCode string  `json:"roomCode"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Progress float64 `json:"progress"`
}

// TypingCompletePayload fires once when a player finishes the full text.
type TypingCompletePayload struct {
	RoomCode string  `json:"roomCode"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Time     float64 `json:"time"`
}

// RematchRequestPayload proposes a rematch in a freshly chosen room code.
type RematchRequestPayload struct {
	OriginalRoomCode string   `json:"originalRoomCode"`
	NewRoomCode      string   `json:"newRoomCode"`
	Settings         Settings `json:"settings"`
}

// RematchReplyPayload answers a rematch proposal (accept/decline).
type RematchReplyPayload struct {
	OriginalRoomCode string `json:"originalRoomCode"`
	NewRoomCode      string `json:"newRoomCode,omitempty"`
}

// PlayerState is the full roster entry sent on roster changes and game start.
type PlayerState struct {
	ID       string  `json:"id"`
	Ready    bool    `json:"ready"`
	Loaded   bool    `json:"loaded"`
	Inactive bool    `json:"inactive"`
	Health   float64 `json:"health"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Progress float64 `json:"progress"`
}

// PlayerSnapshot is the reduced per-player view carried by gameUpdate.
type PlayerSnapshot struct {
	ID       string  `json:"id"`
	Health   float64 `json:"health"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Progress float64 `json:"progress"`
}

type RoomCreatedData struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type RoomJoinedData struct {
	RoomCode string   `json:"roomCode"`
	PlayerID string   `json:"playerId"`
	Settings Settings `json:"settings"`
}

type PlayerJoinedData struct {
	Players []PlayerState `json:"players"`
}

type PlayerLeftData struct {
	PlayerID string        `json:"playerId"`
	Players  []PlayerState `json:"players"`
}

type PlayerStatusUpdateData struct {
	Players  []PlayerState `json:"players"`
	AllReady bool          `json:"allReady"`
}

type GameStartData struct {
	GameText string        `json:"gameText"`
	Players  []PlayerState `json:"players"`
}

type SyncCountdownData struct {
	Count int `json:"count"`
}

// GameUpdateData carries a server timestamp so consumers can discard stale
// updates that arrive out of order.
type GameUpdateData struct {
	Timestamp int64            `json:"timestamp"`
	Players   []PlayerSnapshot `json:"players"`
}

type GameOverData struct {
	Winner  string        `json:"winner"`
	Players []PlayerState `json:"players"`
	Forfeit bool          `json:"forfeit,omitempty"`
}

// GameStatusData answers getGameStatus. Error is set instead of the state
// fields when the lookup failed.
type GameStatusData struct {
	GameStarted      bool   `json:"gameStarted"`
	PlayersLoaded    int    `json:"playersLoaded"`
	PlayersCount     int    `json:"playersCount"`
	CountdownStarted bool   `json:"countdownStarted"`
	CurrentCount     *int   `json:"currentCount"`
	PlayerFound      bool   `json:"playerFound"`
	Error            string `json:"error,omitempty"`
}

type ErrorData struct {
	Error string `json:"error"`
}

// RematchRequestData is the relayed proposal the opponent receives.
type RematchRequestData struct {
	RoomCode     string   `json:"roomCode"`
	FromSocketID string   `json:"fromSocketId"`
	Settings     Settings `json:"settings"`
}

// RematchReplyData is the relayed accept notice the requester receives.
type RematchReplyData struct {
	RoomCode string `json:"roomCode"`
}
