package main

// Wire protocol for the session gateway. Commands and events are typed
// constants dispatched through explicit switches, so an unhandled kind
// is a compile-time smell rather than a silent miss in a handler map.

type CommandType string

const (
	CmdCreateRoom     CommandType = "create-room"
	CmdJoinRoom       CommandType = "join-room"
	CmdPlayerReady    CommandType = "player-ready"
	CmdPlayerProgress CommandType = "player-progress"
	CmdPlayerComplete CommandType = "player-complete"
	CmdPlayAgain      CommandType = "play-again"
	CmdLeaveRoom      CommandType = "leave-room"
)

// ClientCommand is the inbound envelope. Fields beyond Type are
// populated per command kind.
type ClientCommand struct {
	Type           CommandType `json:"type"`
	PlayerName     string      `json:"playerName,omitempty"`     // create-room / join-room
	RoomID         string      `json:"roomId,omitempty"`         // all room-scoped commands
	RoomCode       string      `json:"roomCode,omitempty"`       // join-room alternate key
	IsReady        bool        `json:"isReady,omitempty"`        // player-ready
	CompletionTime int64       `json:"completionTime,omitempty"` // player-complete, milliseconds
	MovesCount     int         `json:"movesCount,omitempty"`     // player-progress / player-complete
}

type EventType string

const (
	EventRoomCreated   EventType = "room-created"
	EventRoomJoined    EventType = "room-joined"
	EventPlayerJoined  EventType = "player-joined"
	EventPlayerStatus  EventType = "player-status-updated"
	EventCountdown     EventType = "countdown"
	EventGameStarted   EventType = "game-started"
	EventGameOver      EventType = "game-over"
	EventPlayerLeft    EventType = "player-left"
	EventRoomRestarted EventType = "room-restarted"
	EventError         EventType = "error"
)

// PlayerState is the roster entry broadcast to clients.
type PlayerState struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IsHost         bool   `json:"isHost"`
	IsReady        bool   `json:"isReady"`
	IsComplete     bool   `json:"isComplete"`
	CompletionTime int64  `json:"completionTime,omitempty"`
	MovesCount     int    `json:"movesCount,omitempty"`
}

func playerStates(players []*Player) []PlayerState {
	states := make([]PlayerState, 0, len(players))
	for _, p := range players {
		states = append(states, PlayerState{
			ID:             p.ID,
			Name:           p.Name,
			IsHost:         p.IsHost,
			IsReady:        p.IsReady,
			IsComplete:     p.IsComplete,
			CompletionTime: p.CompletionTime,
			MovesCount:     p.MovesCount,
		})
	}
	return states
}

// Sent to the creator only.
type RoomCreatedMessage struct {
	Type     EventType  `json:"type"`
	RoomID   string     `json:"roomId"`
	RoomCode string     `json:"roomCode"`
	PlayerID string     `json:"playerId"`
	Image    *NasaImage `json:"image"`
}

// Sent to the joiner only; everyone else gets PlayerJoinedMessage.
type RoomJoinedMessage struct {
	Type     EventType     `json:"type"`
	RoomID   string        `json:"roomId"`
	RoomCode string        `json:"roomCode"`
	PlayerID string        `json:"playerId"`
	Players  []PlayerState `json:"players"`
	Image    *NasaImage    `json:"image"`
	Status   RoomStatus    `json:"status"`
}

type PlayerJoinedMessage struct {
	Type   EventType   `json:"type"`
	Player PlayerState `json:"player"`
}

type PlayerStatusMessage struct {
	Type    EventType     `json:"type"`
	Players []PlayerState `json:"players"`
}

type CountdownMessage struct {
	Type      EventType `json:"type"`
	Countdown int       `json:"countdown"`
}

type GameStartedMessage struct {
	Type EventType `json:"type"`
}

// GameOverMessage carries the winner and the final ranking.
type GameOverMessage struct {
	Type     EventType     `json:"type"`
	WinnerID string        `json:"winnerId"`
	Players  []PlayerState `json:"players"`
}

type PlayerLeftMessage struct {
	Type     EventType     `json:"type"`
	PlayerID string        `json:"playerId"`
	Players  []PlayerState `json:"players"`
}

// Sent to every member when the host starts a new round; clients swap
// to the new room and reset their boards.
type RoomRestartedMessage struct {
	Type     EventType  `json:"type"`
	RoomID   string     `json:"roomId"`
	RoomCode string     `json:"roomCode"`
	Image    *NasaImage `json:"image"`
}

// Sent only to the originating connection.
type ErrorMessage struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

func errorEvent(message string) ErrorMessage {
	return ErrorMessage{Type: EventError, Message: message}
}
