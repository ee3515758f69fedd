// internal/protocol/protocol.go
//
// Package protocol defines the wire envelope exchanged over the trivia
// websocket, the command shapes the server accepts, and the event type
// names it emits. Decoding of the legacy flattened join_game shape lives
// here so the compatibility shim never leaks into match logic.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command types accepted by the router.
const (
	TypeCreateGame   = "create_game"
	TypeJoinGame     = "join_game"
	TypeStartGame    = "start_game"
	TypeSubmitAnswer = "submit_answer"
)

// Event types emitted by the server.
const (
	TypeMatchCreated  = "match_created"
	TypePlayerJoined  = "player_joined"
	TypeNewQuestion   = "new_question"
	TypeMatchFinished = "match_finished"
	TypeError         = "error"
)

// Envelope is an outbound message: a type tag plus an arbitrary payload.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound is an incoming message before command decoding. Payload is kept
// raw so each command can unmarshal its own shape.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrMalformed indicates the raw frame was not a valid envelope.
var ErrMalformed = errors.New("invalid message format")

// Decode parses a raw text frame into an Inbound envelope.
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return in, nil
}

// Marshal serializes an outbound envelope once; the fan-out reuses the
// returned bytes for every connection.
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// CreateCommand carries create_game fields.
type CreateCommand struct {
	MatchID     string `json:"matchId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// JoinCommand carries join_game fields after normalization.
type JoinCommand struct {
	MatchID     string `json:"matchId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	IsHost      bool   `json:"isHost,omitempty"`
}

// StartCommand carries start_game fields.
type StartCommand struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
}

// AnswerCommand carries submit_answer fields.
type AnswerCommand struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
	Answer  string `json:"answer"`
}

// legacyJoin captures the old flattened join_game shape: fields at the top
// level of the message instead of under payload, with playerId/username as
// alternate names for the user id and display name. Older clients also sent
// gameId for the match id.
type legacyJoin struct {
	MatchID     string `json:"matchId"`
	GameID      string `json:"gameId"`
	UserID      string `json:"userId"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
	IsHost      bool   `json:"isHost"`
}

// DecodeJoin normalizes both join_game shapes into one canonical command.
// When the payload wrapper is present it wins; otherwise the flattened
// top-level fields are read from the whole message.
func DecodeJoin(in Inbound, raw []byte) (JoinCommand, error) {
	if len(in.Payload) > 0 && string(in.Payload) != "null" {
		var cmd JoinCommand
		if err := json.Unmarshal(in.Payload, &cmd); err != nil {
			return JoinCommand{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if cmd.MatchID != "" || cmd.UserID != "" {
			return cmd, nil
		}
		// Payload present but empty of known fields; fall through to the
		// legacy shape so flattened messages with a stray payload still work.
	}

	var leg legacyJoin
	if err := json.Unmarshal(raw, &leg); err != nil {
		return JoinCommand{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cmd := JoinCommand{
		MatchID:     leg.MatchID,
		UserID:      leg.UserID,
		DisplayName: leg.DisplayName,
		IsHost:      leg.IsHost,
	}
	if cmd.MatchID == "" {
		cmd.MatchID = leg.GameID
	}
	if cmd.UserID == "" {
		cmd.UserID = leg.PlayerID
	}
	if cmd.DisplayName == "" {
		cmd.DisplayName = leg.Username
	}
	return cmd, nil
}

// DisplayNameOrDefault fills a missing display name with "Player " plus
// the first 8 characters of the user id, the shape existing clients
// expect.
func DisplayNameOrDefault(name, userID string) string {
	if name != "" {
		return name
	}
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Player " + short
}

// NewError builds an error event. details is optional upstream detail.
func NewError(message, details string) Envelope {
	payload := map[string]any{"message": message}
	if details != "" {
		payload["details"] = details
	}
	return Envelope{Type: TypeError, Payload: payload}
}
