// Package persistence queues durability writes behind the in-memory game
// state. The outbox never blocks the caller; a Store drains it in the
// background.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the durability collaborator. It is never consulted to authorize
// a mutation.
type Store interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	AddParticipant(ctx context.Context, sessionID string, rec ParticipantRecord) error
	RemoveParticipant(ctx context.Context, sessionID, participantID string) error
	UpdateStatus(ctx context.Context, sessionID, status string, at time.Time) error
	UpdatePlayerScore(ctx context.Context, sessionID, participantID string, score int) error
	RecordMove(ctx context.Context, rec MoveRecord) error
}

// Apply dispatches one event to the matching Store call
func Apply(ctx context.Context, store Store, e Event) error {
	switch e.Type {
	case EventTypeSessionCreated:
		if e.Session == nil {
			return fmt.Errorf("%s event without session record", e.Type)
		}
		return store.CreateSession(ctx, *e.Session)
	case EventTypeParticipantAdded:
		if e.Participant == nil {
			return fmt.Errorf("%s event without participant record", e.Type)
		}
		return store.AddParticipant(ctx, e.SessionID, *e.Participant)
	case EventTypeParticipantRemoved:
		return store.RemoveParticipant(ctx, e.SessionID, e.ParticipantID)
	case EventTypeStatusChanged:
		return store.UpdateStatus(ctx, e.SessionID, e.Status, e.Timestamp)
	case EventTypeScoreUpdated:
		return store.UpdatePlayerScore(ctx, e.SessionID, e.ParticipantID, e.Score)
	case EventTypeMoveRecorded:
		if e.Move == nil {
			return fmt.Errorf("%s event without move record", e.Type)
		}
		return store.RecordMove(ctx, *e.Move)
	default:
		return fmt.Errorf("unsupported event type %d", e.Type)
	}
}

// NopStore discards every write
type NopStore struct{}

func (NopStore) CreateSession(context.Context, SessionRecord) error { return nil }
func (NopStore) AddParticipant(context.Context, string, ParticipantRecord) error { return nil }
func (NopStore) RemoveParticipant(context.Context, string, string) error { return nil }
func (NopStore) UpdateStatus(context.Context, string, string, time.Time) error { return nil }
func (NopStore) UpdatePlayerScore(context.Context, string, string, int) error { return nil }
func (NopStore) RecordMove(context.Context, MoveRecord) error { return nil }

// MemoryStore keeps every applied call in order. Used by tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes every subsequent write return err (nil to recover)
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Events returns a copy of the recorded calls
func (m *MemoryStore) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *MemoryStore) record(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) CreateSession(_ context.Context, rec SessionRecord) error {
	return m.record(SessionCreated(rec))
}

func (m *MemoryStore) AddParticipant(_ context.Context, sessionID string, rec ParticipantRecord) error {
	return m.record(ParticipantAdded(sessionID, rec))
}

func (m *MemoryStore) RemoveParticipant(_ context.Context, sessionID, participantID string) error {
	return m.record(ParticipantRemoved(sessionID, participantID))
}

func (m *MemoryStore) UpdateStatus(_ context.Context, sessionID, status string, _ time.Time) error {
	return m.record(StatusChanged(sessionID, status))
}

func (m *MemoryStore) UpdatePlayerScore(_ context.Context, sessionID, participantID string, score int) error {
	return m.record(ScoreUpdated(sessionID, participantID, score))
}

func (m *MemoryStore) RecordMove(_ context.Context, rec MoveRecord) error {
	return m.record(MoveRecorded(rec))
}
