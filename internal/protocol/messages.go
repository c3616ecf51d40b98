// Package protocol defines the JSON messages exchanged over a session
// channel. Every frame is an object with a "type" discriminator.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"paddle-arena/internal/game"
)

// Inbound message types
const (
	TypeMove         = "move"
	TypeScoreUpdate  = "scoreUpdate"
	TypePing         = "ping"
	TypeReady        = "ready"
	TypePauseRequest = "pauseRequest"
)

// Outbound message types
const (
	TypeStateUpdate       = "stateUpdate"
	TypePong              = "pong"
	TypeReadyAcknowledged = "readyAcknowledged"
	TypeError             = "error"
)

var (
	// ErrUnknownType marks a well-formed frame with an unrecognized type
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed marks a frame that is not a valid message
	ErrMalformed = errors.New("malformed message")
)

// Inbound is implemented by every client-to-server message
type Inbound interface {
	MessageType() string
}

// Move sets the sender's paddle and advances the simulation
type Move struct {
	Type      string  `json:"type" jsonschema:"required,enum=move"`
	Identity  string  `json:"identity" jsonschema:"required,description=Participant id of the sender"`
	PaddleY   float64 `json:"paddleY" jsonschema:"required,description=Requested paddle center; clamped to [0.1, 0.9]"`
	Timestamp *int64  `json:"timestamp,omitempty" jsonschema:"description=Client clock in milliseconds"`
}

// ScoreUpdate reports a client-observed score
type ScoreUpdate struct {
	Type     string `json:"type" jsonschema:"required,enum=scoreUpdate"`
	Identity string `json:"identity" jsonschema:"required"`
	Score    int    `json:"score" jsonschema:"required"`
}

// Ping asks for a pong carrying the server clock
type Ping struct {
	Type      string `json:"type" jsonschema:"required,enum=ping"`
	Timestamp int64  `json:"timestamp" jsonschema:"description=Client clock in milliseconds, echoed back"`
}

// Ready announces the client is ready to receive snapshots
type Ready struct {
	Type string `json:"type" jsonschema:"required,enum=ready"`
}

// PauseRequest toggles between active and paused
type PauseRequest struct {
	Type     string `json:"type" jsonschema:"required,enum=pauseRequest"`
	Identity string `json:"identity" jsonschema:"required"`
}

func (Move) MessageType() string         { return TypeMove }
func (ScoreUpdate) MessageType() string  { return TypeScoreUpdate }
func (Ping) MessageType() string         { return TypePing }
func (Ready) MessageType() string        { return TypeReady }
func (PauseRequest) MessageType() string { return TypePauseRequest }

// StateUpdate carries a full session snapshot
type StateUpdate struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	Session   *game.Session `json:"session"`
}

// Pong answers a ping
type Pong struct {
	Type                  string `json:"type"`
	Timestamp             int64  `json:"timestamp"`
	EchoedClientTimestamp int64  `json:"echoedClientTimestamp"`
}

// ReadyAcknowledged answers a ready
type ReadyAcknowledged struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Error reports a rejected or unparsable message to its sender
type Error struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	OriginalPayload string `json:"originalPayload,omitempty"`
}

// NewStateUpdate wraps a snapshot
func NewStateUpdate(s *game.Session) StateUpdate {
	return StateUpdate{Type: TypeStateUpdate, SessionID: s.ID, Session: s}
}

// NewPong builds a pong with the server clock in milliseconds
func NewPong(serverMillis, clientMillis int64) Pong {
	return Pong{Type: TypePong, Timestamp: serverMillis, EchoedClientTimestamp: clientMillis}
}

// NewReadyAcknowledged builds a ready reply
func NewReadyAcknowledged(sessionID string) ReadyAcknowledged {
	return ReadyAcknowledged{Type: TypeReadyAcknowledged, SessionID: sessionID}
}

// NewError builds an error reply. original is echoed when non-empty.
func NewError(message string, original []byte) Error {
	return Error{Type: TypeError, Message: message, OriginalPayload: string(original)}
}

// Encode serializes an outbound message
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// wire mirrors every inbound field with pointers so missing fields are
// distinguishable from zero values
type wire struct {
	Type      *string  `json:"type"`
	Identity  *string  `json:"identity"`
	PaddleY   *float64 `json:"paddleY"`
	Score     *int     `json:"score"`
	Timestamp *int64   `json:"timestamp"`
}

// Decode parses one inbound frame. Unparsable frames and missing required
// fields wrap ErrMalformed; a valid frame of an unrecognized type wraps
// ErrUnknownType.
func Decode(data []byte) (Inbound, error) {
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if w.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch *w.Type {
	case TypeMove:
		if w.Identity == nil || w.PaddleY == nil {
			return nil, fmt.Errorf("%w: move requires identity and paddleY", ErrMalformed)
		}
		return Move{Type: TypeMove, Identity: *w.Identity, PaddleY: *w.PaddleY, Timestamp: w.Timestamp}, nil
	case TypeScoreUpdate:
		if w.Identity == nil || w.Score == nil {
			return nil, fmt.Errorf("%w: scoreUpdate requires identity and score", ErrMalformed)
		}
		return ScoreUpdate{Type: TypeScoreUpdate, Identity: *w.Identity, Score: *w.Score}, nil
	case TypePing:
		p := Ping{Type: TypePing}
		if w.Timestamp != nil {
			p.Timestamp = *w.Timestamp
		}
		return p, nil
	case TypeReady:
		return Ready{Type: TypeReady}, nil
	case TypePauseRequest:
		if w.Identity == nil {
			return nil, fmt.Errorf("%w: pauseRequest requires identity", ErrMalformed)
		}
		return PauseRequest{Type: TypePauseRequest, Identity: *w.Identity}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *w.Type)
	}
}
