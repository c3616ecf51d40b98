package persistence

import (
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeSessionCreated
	EventTypeParticipantAdded
	EventTypeParticipantRemoved
	EventTypeStatusChanged
	EventTypeScoreUpdated
	EventTypeMoveRecorded
)

// EventVersion for backwards compatibility of stored events
const EventVersion uint8 = 1

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeSessionCreated:
		return "session_created"
	case EventTypeParticipantAdded:
		return "participant_added"
	case EventTypeParticipantRemoved:
		return "participant_removed"
	case EventTypeStatusChanged:
		return "status_changed"
	case EventTypeScoreUpdated:
		return "score_updated"
	case EventTypeMoveRecorded:
		return "move_recorded"
	default:
		return "unknown"
	}
}

// SessionRecord is the durable header of a session
type SessionRecord struct {
	ID              string
	Private         bool
	RoomCode        string
	MaxParticipants int
	Synthetic       bool
	Difficulty      string
	WinningScore    int
	Status          string
	CreatedAt       time.Time
}

// ParticipantRecord is one roster entry
type ParticipantRecord struct {
	ID          string
	DisplayName string
	Side        string
	Synthetic   bool
	JoinedAt    time.Time
}

// MoveRecord is one accepted paddle move
type MoveRecord struct {
	SessionID     string
	ParticipantID string
	PaddleY       float64
	Tick          uint64
	ClientTime    int64 // client-supplied timestamp, 0 when absent
	At            time.Time
}

// Event is one queued persistence call. Only the fields relevant to Type
// are populated.
type Event struct {
	Version       uint8
	Type          EventType
	Timestamp     time.Time
	Sequence      uint64
	SessionID     string
	ParticipantID string

	Session     *SessionRecord
	Participant *ParticipantRecord
	Status      string
	Score       int
	Move        *MoveRecord
}

// SessionCreated builds a createSession event
func SessionCreated(rec SessionRecord) Event {
	return newEvent(EventTypeSessionCreated, rec.ID, "", func(e *Event) { e.Session = &rec })
}

// ParticipantAdded builds an addParticipant event
func ParticipantAdded(sessionID string, rec ParticipantRecord) Event {
	return newEvent(EventTypeParticipantAdded, sessionID, rec.ID, func(e *Event) { e.Participant = &rec })
}

// ParticipantRemoved builds a removeParticipant event
func ParticipantRemoved(sessionID, participantID string) Event {
	return newEvent(EventTypeParticipantRemoved, sessionID, participantID, nil)
}

// StatusChanged builds an updateStatus event
func StatusChanged(sessionID, status string) Event {
	return newEvent(EventTypeStatusChanged, sessionID, "", func(e *Event) { e.Status = status })
}

// ScoreUpdated builds an updatePlayerScore event
func ScoreUpdated(sessionID, participantID string, score int) Event {
	return newEvent(EventTypeScoreUpdated, sessionID, participantID, func(e *Event) { e.Score = score })
}

// MoveRecorded builds a recordMove event
func MoveRecorded(rec MoveRecord) Event {
	return newEvent(EventTypeMoveRecorded, rec.SessionID, rec.ParticipantID, func(e *Event) { e.Move = &rec })
}

func newEvent(t EventType, sessionID, participantID string, fill func(*Event)) Event {
	e := Event{
		Version:       EventVersion,
		Type:          t,
		Timestamp:     time.Now(),
		SessionID:     sessionID,
		ParticipantID: participantID,
	}
	if fill != nil {
		fill(&e)
	}
	return e
}
