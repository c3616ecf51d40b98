package session

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"paddle-arena/internal/game"
	"paddle-arena/internal/persistence"
	"paddle-arena/internal/protocol"
	"paddle-arena/internal/telemetry"
)

// Match owns one session. Every mutation, step and broadcast of the
// session happens while holding mu, so each is one atomic unit.
type Match struct {
	mu      sync.Mutex
	state   *game.Session
	rng     *rand.Rand
	removed bool
	clock   *Ticker

	reg *Registry
}

func newMatch(reg *Registry, state *game.Session, rng *rand.Rand) *Match {
	return &Match{reg: reg, state: state, rng: rng}
}

// snapshotLocked returns a deep copy of the session
func (m *Match) snapshotLocked() *game.Session {
	return m.state.Clone()
}

// broadcastLocked sends the current snapshot to every channel of the session
func (m *Match) broadcastLocked() {
	if m.reg.hub == nil {
		return
	}
	if _, err := m.reg.hub.Broadcast(m.state.ID, protocol.NewStateUpdate(m.snapshotLocked())); err != nil {
		log.Printf("⚠️ Broadcast for session %s failed: %v", m.state.ID, err)
	}
}

// record queues a persistence event. Drops are counted by the recorder.
func (m *Match) record(e persistence.Event) {
	m.reg.recorder.Append(e)
}

// transitionLocked publishes a status change made since prev
func (m *Match) transitionLocked(prev game.Status) {
	s := m.state
	if s.Status == prev {
		return
	}
	telemetry.SessionStatusChanged(string(prev), string(s.Status))
	m.record(persistence.StatusChanged(s.ID, string(s.Status)))
	if s.Status == game.StatusFinished {
		log.Printf("🏆 Session %s finished, winner %q", s.ID, s.WinnerID)
	}
	m.syncClockLocked()
}

// syncClockLocked runs the fixed-step clock exactly while the session is
// active in continuous mode
func (m *Match) syncClockLocked() {
	active := m.state.Status == game.StatusActive && !m.removed
	switch {
	case active && m.reg.cfg.Mode == ModeContinuous && m.clock == nil:
		m.clock = startTicker(m, m.reg.cfg.TickRate)
	case !active && m.clock != nil:
		m.clock.Stop()
		m.clock = nil
	}
}

// advanceLocked runs one physics step and one opponent update, queues the
// resulting persistence events and broadcasts the new snapshot
func (m *Match) advanceLocked() game.StepResult {
	s := m.state
	prev := s.Status
	now := m.reg.now()

	start := time.Now()
	res := game.Step(s, game.TickDuration, m.rng, now)
	game.UpdateOpponent(s, game.TickDuration, m.rng)
	telemetry.RecordStep(time.Since(start), res.PaddleHit != "", res.Scored != "", res.Finished)

	if res.Scored != "" {
		if p, ok := s.BySide(res.Scored); ok {
			m.record(persistence.ScoreUpdated(s.ID, p.ID, p.Score))
		}
	}
	m.transitionLocked(prev)
	m.broadcastLocked()
	return res
}

// sessionRecord converts the session header for persistence
func sessionRecord(s *game.Session) persistence.SessionRecord {
	return persistence.SessionRecord{
		ID:              s.ID,
		Private:         s.Private,
		RoomCode:        s.RoomCode,
		MaxParticipants: s.MaxParticipants,
		Synthetic:       s.Synthetic,
		Difficulty:      string(s.Difficulty),
		WinningScore:    s.WinningScore,
		Status:          string(s.Status),
		CreatedAt:       s.CreatedAt,
	}
}

func participantRecord(p game.Participant) persistence.ParticipantRecord {
	return persistence.ParticipantRecord{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Side:        string(p.Side),
		Synthetic:   p.Synthetic,
		JoinedAt:    p.JoinedAt,
	}
}
