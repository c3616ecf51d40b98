package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"paddle-arena/internal/game"
	"paddle-arena/internal/persistence"
	"paddle-arena/internal/protocol"
)

func TestHandleMoveErrors(t *testing.T) {
	env := newTestEnv(t, ModeInput)
	ctx := context.Background()
	waiting, _ := env.reg.Create(ctx, CreateOptions{Creator: carol})
	active := env.activeHumanSession(t)
	ch := &fakeChannel{id: "x"}

	tests := []struct {
		name    string
		session string
		msg     protocol.Move
		want    error
	}{
		{"identity mismatch", active, protocol.Move{Identity: "bob", PaddleY: 0.5}, ErrForbidden},
		{"unknown session", "missing", move(alice, 0.5), ErrNotFound},
		{"not active", waiting.ID, move(carol, 0.5), ErrNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			who := alice
			if tt.session == waiting.ID {
				who = carol
			}
			err := env.reg.Handle(ctx, tt.session, who, ch, tt.msg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// A channel identity that is not on the roster
	if err := env.reg.Handle(ctx, active, carol, ch, move(carol, 0.5)); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-participant move err = %v", err)
	}
	if !errors.Is(ErrNotActive, ErrConflict) {
		t.Error("ErrNotActive must be a conflict")
	}
}

func TestHandleMoveClampsPaddle(t *testing.T) {
	env := newTestEnv(t, ModeInput)
	ctx := context.Background()
	id := env.activeHumanSession(t)

	for _, tt := range []struct {
		in, want float64
	}{
		{5, game.PaddleMax},
		{-3, game.PaddleMin},
		{0.42, 0.42},
	} {
		if err := env.reg.Handle(ctx, id, bob, &fakeChannel{id: "b"}, move(bob, tt.in)); err != nil {
			t.Fatalf("move(%v): %v", tt.in, err)
		}
		s, _ := env.reg.Get(id)
		p, _ := s.Participant("bob")
		if p.PaddleY != tt.want {
			t.Errorf("paddle after move(%v) = %v, want %v", tt.in, p.PaddleY, tt.want)
		}
	}
}

func TestHandleScoreUpdate(t *testing.T) {
	env := newTestEnv(t, ModeInput)
	ctx := context.Background()
	id := env.activeHumanSession(t)
	ch := &fakeChannel{id: "a"}
	_ = env.reg.Attach(id, alice, ch)

	score := func(n int) int {
		t.Helper()
		if err := env.reg.Handle(ctx, id, alice, ch, protocol.ScoreUpdate{Identity: "alice", Score: n}); err != nil {
			t.Fatalf("scoreUpdate(%d): %v", n, err)
		}
		s, _ := env.reg.Get(id)
		p, _ := s.Participant("alice")
		return p.Score
	}

	if got := score(5); got != 5 {
		t.Errorf("score = %d, want 5", got)
	}
	if got := score(3); got != 5 {
		t.Errorf("score lowered to %d, scores never decrease", got)
	}
	if got := score(99); got != game.DefaultWinningScore {
		t.Errorf("score = %d, want capped at %d", got, game.DefaultWinningScore)
	}

	s, _ := env.reg.Get(id)
	if s.Status != game.StatusFinished || s.WinnerID != "alice" || s.FinishedAt == nil {
		t.Fatalf("status = %s, winner = %q", s.Status, s.WinnerID)
	}
	if ch.count(protocol.TypeStateUpdate) != 3 {
		t.Errorf("state updates = %d, want 3", ch.count(protocol.TypeStateUpdate))
	}

	// Finished sessions accept no further play
	if err := env.reg.Handle(ctx, id, bob, ch, move(bob, 0.5)); !errors.Is(err, ErrNotActive) {
		t.Errorf("move after finish err = %v", err)
	}
	if err := env.reg.Handle(ctx, id, bob, ch, protocol.ScoreUpdate{Identity: "bob", Score: 11}); !errors.Is(err, ErrNotActive) {
		t.Errorf("score after finish err = %v", err)
	}
	if got := env.rec.count(persistence.EventTypeStatusChanged); got < 2 {
		t.Errorf("status events = %d, want active and finished", got)
	}
}

func TestHandlePauseRequest(t *testing.T) {
	env := newTestEnv(t, ModeInput)
	ctx := context.Background()
	id := env.activeHumanSession(t)
	ch := &fakeChannel{id: "a"}
	pause := protocol.PauseRequest{Identity: "alice"}

	if err := env.reg.Handle(ctx, id, alice, ch, pause); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if s, _ := env.reg.Get(id); s.Status != game.StatusPaused {
		t.Fatalf("status = %s, want paused", s.Status)
	}
	if err := env.reg.Handle(ctx, id, bob, ch, move(bob, 0.5)); !errors.Is(err, ErrNotActive) {
		t.Errorf("move while paused err = %v", err)
	}

	if err := env.reg.Handle(ctx, id, alice, ch, pause); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s, _ := env.reg.Get(id); s.Status != game.StatusActive {
		t.Fatalf("status = %s, want active", s.Status)
	}

	waiting, _ := env.reg.Create(ctx, CreateOptions{Creator: carol})
	if err := env.reg.Handle(ctx, waiting.ID, carol, ch, protocol.PauseRequest{Identity: "carol"}); !errors.Is(err, ErrNotActive) {
		t.Errorf("pause of waiting session err = %v", err)
	}
}

func TestHandlePingAndReady(t *testing.T) {
	env := newTestEnv(t, ModeInput)
	ctx := context.Background()
	id := env.activeHumanSession(t)
	aliceCh, bobCh := &fakeChannel{id: "a"}, &fakeChannel{id: "b"}
	_ = env.reg.Attach(id, alice, aliceCh)
	_ = env.reg.Attach(id, bob, bobCh)

	if err := env.reg.Handle(ctx, id, alice, aliceCh, protocol.Ping{Timestamp: 1234}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if aliceCh.count(protocol.TypePong) != 1 || bobCh.count(protocol.TypePong) != 0 {
		t.Error("pong must reach the sender only")
	}

	if err := env.reg.Handle(ctx, id, bob, bobCh, protocol.Ready{}); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if bobCh.count(protocol.TypeReadyAcknowledged) != 1 || aliceCh.count(protocol.TypeReadyAcknowledged) != 0 {
		t.Error("readyAcknowledged must reach the sender only")
	}
	if aliceCh.count(protocol.TypeStateUpdate) != 1 || bobCh.count(protocol.TypeStateUpdate) != 1 {
		t.Error("ready should broadcast the current snapshot")
	}
}

// TestConcurrentMovesAreLinearizable fires 100 moves from both participants
// at once. Every move must be applied as one step, with nothing lost.
func TestConcurrentMovesAreLinearizable(t *testing.T) {
	env := newTestEnv(t, ModeInput)
	ctx := context.Background()
	id := env.activeHumanSession(t)
	ch := &fakeChannel{id: "watcher"}
	_ = env.reg.Attach(id, alice, ch)

	const moves = 100
	var wg sync.WaitGroup
	errs := make(chan error, moves)
	for i := 0; i < moves; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			who := alice
			if i%2 == 1 {
				who = bob
			}
			if err := env.reg.Handle(ctx, id, who, ch, move(who, float64(i%9+1)/10)); err != nil {
				errs <- fmt.Errorf("move %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	s, _ := env.reg.Get(id)
	if s.Tick != moves {
		t.Errorf("tick = %d, want %d", s.Tick, moves)
	}
	if got := ch.count(protocol.TypeStateUpdate); got != moves {
		t.Errorf("broadcasts = %d, want %d", got, moves)
	}
	if got := env.rec.count(persistence.EventTypeMoveRecorded); got != moves {
		t.Errorf("recorded moves = %d, want %d", got, moves)
	}

	// Snapshots were serialized in tick order
	ticks := make([]uint64, 0, moves)
	for _, frame := range ch.frames {
		var msg struct {
			Session struct {
				Tick uint64 `json:"tick"`
			} `json:"session"`
		}
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		ticks = append(ticks, msg.Session.Tick)
	}
	for i, tick := range ticks {
		if tick != uint64(i+1) {
			t.Fatalf("broadcast %d carried tick %d", i, tick)
		}
	}
}
