package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"paddle-arena/internal/persistence"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "arena.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "arena.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen with applied migrations: %v", err)
	}
	_ = second.Close()
}

func TestSessionLifecycleRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	rec := persistence.SessionRecord{
		ID:              "s-1",
		Private:         true,
		RoomCode:        "K7PX",
		MaxParticipants: 2,
		Synthetic:       true,
		Difficulty:      "hard",
		WinningScore:    11,
		Status:          "waiting",
		CreatedAt:       now,
	}
	if err := store.CreateSession(ctx, rec); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.AddParticipant(ctx, "s-1", persistence.ParticipantRecord{ID: "alice", DisplayName: "Alice", Side: "left", JoinedAt: now}); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := store.AddParticipant(ctx, "s-1", persistence.ParticipantRecord{ID: "ai-hard", DisplayName: "AI (Hard)", Side: "right", Synthetic: true, JoinedAt: now}); err != nil {
		t.Fatalf("add synthetic participant: %v", err)
	}
	if err := store.UpdateStatus(ctx, "s-1", "active", now.Add(time.Second)); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := store.UpdatePlayerScore(ctx, "s-1", "alice", 4); err != nil {
		t.Fatalf("update score: %v", err)
	}
	if err := store.UpdatePlayerScore(ctx, "s-1", "alice", 2); err != nil {
		t.Fatalf("stale score update: %v", err)
	}

	got, err := store.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != "active" || !got.Private || !got.Synthetic || got.RoomCode != "K7PX" {
		t.Fatalf("session = %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, now)
	}

	rows, err := store.ListParticipants(ctx, "s-1")
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("participants = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.ID == "alice" && row.Score != 4 {
			t.Fatalf("alice score = %d, want 4 (scores never decrease)", row.Score)
		}
	}
}

func TestCreateSessionDuplicate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	rec := persistence.SessionRecord{ID: "dup", MaxParticipants: 2, WinningScore: 11, Status: "waiting"}
	if err := store.CreateSession(context.Background(), rec); err != nil {
		t.Fatalf("create session: %v", err)
	}
	err := store.CreateSession(context.Background(), rec)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v, want ErrAlreadyExists", err)
	}
}

func TestRemoveAndRejoinParticipant(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, persistence.SessionRecord{ID: "s-2", MaxParticipants: 2, WinningScore: 11, Status: "waiting"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	bob := persistence.ParticipantRecord{ID: "bob", DisplayName: "Bob", Side: "right"}
	if err := store.AddParticipant(ctx, "s-2", bob); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := store.RemoveParticipant(ctx, "s-2", "bob"); err != nil {
		t.Fatalf("remove participant: %v", err)
	}

	rows, _ := store.ListParticipants(ctx, "s-2")
	if len(rows) != 1 || !rows[0].Left {
		t.Fatalf("rows after leave = %+v", rows)
	}

	if err := store.AddParticipant(ctx, "s-2", bob); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	rows, _ = store.ListParticipants(ctx, "s-2")
	if len(rows) != 1 || rows[0].Left {
		t.Fatalf("rows after rejoin = %+v", rows)
	}
}

func TestUpdatesOnUnknownRowsReturnNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	if err := store.UpdateStatus(ctx, "missing", "active", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update status err = %v", err)
	}
	if err := store.RemoveParticipant(ctx, "missing", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove participant err = %v", err)
	}
	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get session err = %v", err)
	}
}

func TestOutboxDrainsIntoSQLite(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	outbox := persistence.NewOutbox(store)
	outbox.Start()

	outbox.Append(persistence.SessionCreated(persistence.SessionRecord{ID: "s-3", MaxParticipants: 2, WinningScore: 11, Status: "waiting"}))
	outbox.Append(persistence.ParticipantAdded("s-3", persistence.ParticipantRecord{ID: "alice", Side: "left"}))
	for i := 0; i < 5; i++ {
		outbox.Append(persistence.MoveRecorded(persistence.MoveRecord{SessionID: "s-3", ParticipantID: "alice", PaddleY: 0.5, Tick: uint64(i)}))
	}
	outbox.Stop()

	if outbox.GetFailedCount() != 0 {
		t.Fatalf("outbox failures = %d", outbox.GetFailedCount())
	}
	n, err := store.CountMoves(context.Background(), "s-3")
	if err != nil {
		t.Fatalf("count moves: %v", err)
	}
	if n != 5 {
		t.Fatalf("moves = %d, want 5", n)
	}
}
