package persistence

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func waitForEvents(t *testing.T, store *MemoryStore, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := store.Events(); len(events) >= n {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(store.Events()))
	return nil
}

// TestOutboxDeliversInOrder verifies events reach the store in append order
func TestOutboxDeliversInOrder(t *testing.T) {
	store := NewMemoryStore()
	o := NewOutbox(store)
	o.Start()
	defer o.Stop()

	o.Append(SessionCreated(SessionRecord{ID: "s1", MaxParticipants: 2, WinningScore: 11, Status: "waiting"}))
	o.Append(ParticipantAdded("s1", ParticipantRecord{ID: "alice", Side: "left"}))
	o.Append(StatusChanged("s1", "active"))

	events := waitForEvents(t, store, 3)
	want := []EventType{EventTypeSessionCreated, EventTypeParticipantAdded, EventTypeStatusChanged}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Type, want[i])
		}
	}
}

// TestOutboxStopFlushesPending verifies Stop drains queued events
func TestOutboxStopFlushesPending(t *testing.T) {
	store := NewMemoryStore()
	o := NewOutbox(store)

	for i := 0; i < 10; i++ {
		o.Append(ScoreUpdated("s1", "alice", i))
	}
	o.Start()
	o.Stop()

	if got := len(store.Events()); got != 10 {
		t.Errorf("store has %d events after Stop, want 10", got)
	}
	if o.Append(StatusChanged("s1", "finished")) {
		t.Error("Append after Stop should be rejected")
	}
}

// TestOutboxStopWithoutStart verifies accepted events are not lost
func TestOutboxStopWithoutStart(t *testing.T) {
	store := NewMemoryStore()
	o := NewOutbox(store)
	o.Append(ParticipantRemoved("s1", "bob"))
	o.Stop()

	if got := len(store.Events()); got != 1 {
		t.Errorf("store has %d events, want 1", got)
	}
}

// TestOutboxRateLimitsMovesPerSession verifies move floods are capped per
// session while lifecycle events always pass
func TestOutboxRateLimitsMovesPerSession(t *testing.T) {
	o := NewOutbox(NewMemoryStore())
	defer o.Stop()

	accepted := 0
	for i := 0; i < MaxMovesPerSecond*3; i++ {
		if o.Append(MoveRecorded(MoveRecord{SessionID: "flood", ParticipantID: "alice", PaddleY: 0.5})) {
			accepted++
		}
	}
	if accepted > MaxMovesPerSecond+5 {
		t.Errorf("accepted %d moves in a burst, limit is %d", accepted, MaxMovesPerSecond)
	}
	if o.GetDroppedCount() == 0 {
		t.Error("expected dropped moves")
	}

	if !o.Append(MoveRecorded(MoveRecord{SessionID: "quiet", ParticipantID: "bob"})) {
		t.Error("another session's move should not be limited")
	}
	if !o.Append(ScoreUpdated("flood", "alice", 3)) {
		t.Error("lifecycle events must bypass the move limiter")
	}
}

// TestOutboxDropsWhenFull verifies Append never blocks on a full queue
func TestOutboxDropsWhenFull(t *testing.T) {
	o := NewOutbox(NewMemoryStore())
	defer o.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < OutboxBufferSize+100; i++ {
			o.Append(StatusChanged(fmt.Sprintf("s%d", i), "active"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a full queue")
	}
	if got := o.GetDroppedCount(); got != 100 {
		t.Errorf("dropped = %d, want 100", got)
	}
}

// TestOutboxStoreFailureIsCounted verifies store errors are absorbed
func TestOutboxStoreFailureIsCounted(t *testing.T) {
	store := NewMemoryStore()
	store.FailWith(errors.New("disk full"))
	o := NewOutbox(store)
	o.Start()

	o.Append(StatusChanged("s1", "active"))
	o.Append(StatusChanged("s1", "paused"))
	o.Stop()

	if got := o.GetFailedCount(); got != 2 {
		t.Errorf("failed = %d, want 2", got)
	}
	stats := o.GetStats()
	if stats["total"].(uint64) != 2 {
		t.Errorf("total = %v, want 2", stats["total"])
	}
}

// TestApplyRejectsIncompleteEvents verifies Apply guards missing payloads
func TestApplyRejectsIncompleteEvents(t *testing.T) {
	store := NewMemoryStore()
	for _, e := range []Event{
		{Type: EventTypeSessionCreated, SessionID: "s1"},
		{Type: EventTypeParticipantAdded, SessionID: "s1"},
		{Type: EventTypeMoveRecorded, SessionID: "s1"},
		{Type: EventTypeUnknown},
	} {
		if err := Apply(t.Context(), store, e); err == nil {
			t.Errorf("Apply(%s) should fail", e.Type)
		}
	}
	if len(store.Events()) != 0 {
		t.Error("incomplete events must not reach the store")
	}
}
