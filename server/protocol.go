package server

import "github.com/brensch/dragonsnek/game"

// Message types sent by clients.
const (
	MsgStart = "start"
	MsgInput = "input"
)

// Message types sent by the server.
const (
	MsgState        = "state"
	MsgScore        = "score"
	MsgGameOver     = "game_over"
	MsgSpecialTimer = "special_timer"
	MsgEat          = "eat"
	MsgError        = "error"
)

// Food kinds reported in eat messages.
const (
	FoodNormal  = "normal"
	FoodSpecial = "special"
)

// ClientMessage is a frame received from a websocket client.
type ClientMessage struct {
	Type    string       `json:"type"`
	Command game.Command `json:"command,omitempty"`
}

// ServerMessage is a frame sent to a websocket client. Only the fields that
// belong to Type are set.
type ServerMessage struct {
	Type    string         `json:"type"`
	State   *game.Snapshot `json:"state,omitempty"`
	Score   *int           `json:"score,omitempty"`
	Seconds *float64       `json:"seconds,omitempty"`
	Food    string         `json:"food,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func stateMessage(s *game.Snapshot) ServerMessage {
	return ServerMessage{Type: MsgState, State: s}
}

func scoreMessage(kind string, score int) ServerMessage {
	return ServerMessage{Type: kind, Score: &score}
}

func timerMessage(seconds float64) ServerMessage {
	return ServerMessage{Type: MsgSpecialTimer, Seconds: &seconds}
}

func eatMessage(food string) ServerMessage {
	return ServerMessage{Type: MsgEat, Food: food}
}

func errorMessage(text string) ServerMessage {
	return ServerMessage{Type: MsgError, Error: text}
}
