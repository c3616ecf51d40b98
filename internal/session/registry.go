// Package session owns the live matches: creation, joining, leaving and the
// per-session atomic units that mutate game state.
package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"paddle-arena/internal/game"
	"paddle-arena/internal/hub"
	"paddle-arena/internal/identity"
	"paddle-arena/internal/persistence"
	"paddle-arena/internal/telemetry"

	"github.com/google/uuid"
)

// Recorder accepts persistence events without blocking
type Recorder interface {
	Append(e persistence.Event) bool
}

type discardRecorder struct{}

func (discardRecorder) Append(persistence.Event) bool { return true }

// Config contains the registry's collaborators and match rules
type Config struct {
	// WinningScore ends a match. Zero uses game.DefaultWinningScore.
	WinningScore int

	// MaxParticipants is the seat count when CreateOptions leaves it unset
	MaxParticipants int

	// Mode selects input-driven or continuous stepping
	Mode SimulationMode

	// TickRate is the continuous-mode step frequency
	TickRate int

	// Hub receives snapshots and holds session channels (optional)
	Hub *hub.Hub

	// Recorder receives persistence events (optional)
	Recorder Recorder

	// Codes generates room codes for private sessions
	Codes CodeGenerator

	// Now and NewID are overridable for tests
	Now   func() time.Time
	NewID func() string

	// Seed for per-match random sources. Zero seeds from the clock.
	Seed int64
}

// CreateOptions describes a new human-vs-human session
type CreateOptions struct {
	Creator         identity.Identity
	Private         bool
	MaxParticipants int
}

// Summary is the lobby view of a waiting public session
type Summary struct {
	ID              string    `json:"id"`
	Host            string    `json:"host"`
	Participants    int       `json:"participants"`
	MaxParticipants int       `json:"maxParticipants"`
	WinningScore    int       `json:"winningScore"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Registry maps session ids to live matches.
//
// Lock order: r.mu is never held while acquiring a match lock.
type Registry struct {
	cfg      Config
	hub      *hub.Hub
	recorder Recorder

	mu      sync.RWMutex
	matches map[string]*Match

	seedMu sync.Mutex
	seeds  *rand.Rand
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	if cfg.WinningScore <= 0 {
		cfg.WinningScore = game.DefaultWinningScore
	}
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = game.DefaultMaxParticipants
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeInput
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.Codes == nil {
		cfg.Codes = RandomCodes{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	var recorder Recorder = discardRecorder{}
	if cfg.Recorder != nil {
		recorder = cfg.Recorder
	}

	return &Registry{
		cfg:      cfg,
		hub:      cfg.Hub,
		recorder: recorder,
		matches:  make(map[string]*Match),
		seeds:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (r *Registry) now() time.Time {
	return r.cfg.Now()
}

// newRand derives an independent random source for one match
func (r *Registry) newRand() *rand.Rand {
	r.seedMu.Lock()
	defer r.seedMu.Unlock()
	return rand.New(rand.NewSource(r.seeds.Int63()))
}

func (r *Registry) lookup(sessionID string) (*Match, error) {
	r.mu.RLock()
	m, ok := r.matches[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return m, nil
}

func validIdentity(who identity.Identity) error {
	if strings.TrimSpace(who.ID) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	return nil
}

// Create opens a waiting session with the creator on the left side
func (r *Registry) Create(ctx context.Context, opts CreateOptions) (*game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validIdentity(opts.Creator); err != nil {
		return nil, err
	}

	now := r.now()
	rng := r.newRand()
	seats := opts.MaxParticipants
	if seats <= 0 {
		seats = r.cfg.MaxParticipants
	}
	s := game.NewSession(r.cfg.NewID(), seats, r.cfg.WinningScore, now, rng)
	if s.MaxParticipants < game.DefaultMaxParticipants {
		s.MaxParticipants = game.DefaultMaxParticipants
	}
	if opts.Private {
		s.Private = true
		s.RoomCode = r.cfg.Codes.Generate()
	}
	creator := game.NewParticipant(opts.Creator.ID, opts.Creator.DisplayName, game.SideLeft, false, now)
	s.AddParticipant(creator, now)

	m := newMatch(r, s, rng)
	m.mu.Lock()
	m.record(persistence.SessionCreated(sessionRecord(s)))
	m.record(persistence.ParticipantAdded(s.ID, participantRecord(creator)))
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	r.insert(m)
	telemetry.RecordSessionCreated(false)
	telemetry.SessionStatusChanged("", string(s.Status))
	log.Printf("🎮 Session %s created by %s (private=%v)", s.ID, opts.Creator.ID, s.Private)
	return snapshot, nil
}

// CreateWithSyntheticOpponent opens an active session against the AI
func (r *Registry) CreateWithSyntheticOpponent(ctx context.Context, who identity.Identity, difficulty string) (*game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validIdentity(who); err != nil {
		return nil, err
	}
	tier, err := game.ParseDifficulty(difficulty)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDifficulty, difficulty)
	}

	now := r.now()
	rng := r.newRand()
	s := game.NewSession(r.cfg.NewID(), game.DefaultMaxParticipants, r.cfg.WinningScore, now, rng)
	s.Synthetic = true
	s.Difficulty = tier

	human := game.NewParticipant(who.ID, who.DisplayName, game.SideLeft, false, now)
	ai := game.NewParticipant(game.SyntheticID(tier), "AI ("+tier.Label()+")", game.SideRight, true, now)

	m := newMatch(r, s, rng)
	m.mu.Lock()
	m.record(persistence.SessionCreated(sessionRecord(s)))
	s.AddParticipant(human, now)
	m.record(persistence.ParticipantAdded(s.ID, participantRecord(human)))
	s.AddParticipant(ai, now)
	m.record(persistence.ParticipantAdded(s.ID, participantRecord(ai)))
	telemetry.SessionStatusChanged("", string(game.StatusWaiting))
	m.transitionLocked(game.StatusWaiting)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	r.insert(m)
	telemetry.RecordSessionCreated(true)
	log.Printf("🤖 Session %s created by %s against %s AI", s.ID, who.ID, tier)
	return snapshot, nil
}

// Join adds who to the session on the vacant side
func (r *Registry) Join(ctx context.Context, sessionID string, who identity.Identity, roomCode string) (*game.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validIdentity(who); err != nil {
		return nil, err
	}
	m, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	switch {
	case m.removed:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	case s.Private && !strings.EqualFold(strings.TrimSpace(roomCode), s.RoomCode):
		return nil, fmt.Errorf("%w: room code does not match", ErrForbidden)
	case s.Status == game.StatusFinished:
		return nil, ErrSessionFinished
	}
	side, ok := s.VacantSide()
	if !ok || s.IsFull() {
		return nil, ErrSessionFull
	}
	if _, ok := s.Participant(who.ID); ok {
		return nil, ErrAlreadyJoined
	}

	prev := s.Status
	now := r.now()
	p := game.NewParticipant(who.ID, who.DisplayName, side, false, now)
	s.AddParticipant(p, now)
	m.record(persistence.ParticipantAdded(s.ID, participantRecord(p)))
	m.transitionLocked(prev)
	m.broadcastLocked()

	log.Printf("📱 %s joined session %s on the %s", who.ID, s.ID, side)
	return m.snapshotLocked(), nil
}

// Leave removes identityID from the session. The session is closed when no
// human remains or it had already finished; an active match that loses one
// of two humans goes back to waiting with scores kept.
func (r *Registry) Leave(ctx context.Context, sessionID, identityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	s := m.state
	if m.removed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if _, ok := s.Participant(identityID); !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is not a participant", ErrForbidden, identityID)
	}

	prev := s.Status
	now := r.now()
	s.RemoveParticipant(identityID)
	m.record(persistence.ParticipantRemoved(s.ID, identityID))

	closing := prev == game.StatusFinished || s.HumanCount() == 0
	switch {
	case closing:
		s.Finish(now, "")
	case prev == game.StatusActive || prev == game.StatusPaused:
		s.Status = game.StatusWaiting
	}
	if closing {
		m.removed = true
	}
	m.transitionLocked(prev)
	m.broadcastLocked()
	m.mu.Unlock()

	log.Printf("📱 %s left session %s", identityID, sessionID)
	if closing {
		r.remove(sessionID, m)
	}
	return nil
}

// Get returns a snapshot of the session
func (r *Registry) Get(sessionID string) (*game.Session, bool) {
	m, err := r.lookup(sessionID)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return nil, false
	}
	return m.snapshotLocked(), true
}

// List returns the public sessions waiting for an opponent, oldest first
func (r *Registry) List() []Summary {
	r.mu.RLock()
	matches := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	out := make([]Summary, 0)
	for _, m := range matches {
		m.mu.Lock()
		s := m.state
		if !m.removed && !s.Private && s.Status == game.StatusWaiting && !s.IsFull() {
			sum := Summary{
				ID:              s.ID,
				Participants:    len(s.Participants),
				MaxParticipants: s.MaxParticipants,
				WinningScore:    s.WinningScore,
				CreatedAt:       s.CreatedAt,
			}
			if len(s.Participants) > 0 {
				sum.Host = s.Participants[0].DisplayName
			}
			out = append(out, sum)
		}
		m.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// Attach subscribes a participant's channel to session snapshots
func (r *Registry) Attach(sessionID string, who identity.Identity, ch hub.Channel) error {
	m, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if _, ok := m.state.Participant(who.ID); !ok {
		return fmt.Errorf("%w: %s is not a participant", ErrForbidden, who.ID)
	}
	if r.hub != nil {
		r.hub.Add(sessionID, ch)
	}
	return nil
}

// Detach unsubscribes a channel. Unknown sessions are ignored.
func (r *Registry) Detach(sessionID string, ch hub.Channel) {
	if r.hub != nil {
		r.hub.Remove(sessionID, ch)
	}
}

// Close stops every session clock and drops all sessions (shutdown)
func (r *Registry) Close() {
	r.mu.Lock()
	matches := r.matches
	r.matches = make(map[string]*Match)
	r.mu.Unlock()

	for id, m := range matches {
		m.mu.Lock()
		m.removed = true
		m.syncClockLocked()
		status := m.state.Status
		m.mu.Unlock()
		telemetry.SessionStatusChanged(string(status), "")
		r.closeChannels(id)
	}
}

func (r *Registry) insert(m *Match) {
	r.mu.Lock()
	r.matches[m.state.ID] = m
	r.mu.Unlock()
}

// remove drops a closed match and disconnects its channels
func (r *Registry) remove(sessionID string, m *Match) {
	r.mu.Lock()
	if r.matches[sessionID] == m {
		delete(r.matches, sessionID)
	}
	r.mu.Unlock()

	telemetry.SessionStatusChanged(string(game.StatusFinished), "")
	r.closeChannels(sessionID)
	log.Printf("🗑️ Session %s removed", sessionID)
}

func (r *Registry) closeChannels(sessionID string) {
	if r.hub == nil {
		return
	}
	for _, ch := range r.hub.RemoveSession(sessionID) {
		if c, ok := ch.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
