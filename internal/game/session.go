package game

import (
	"math"
	"math/rand"
	"time"
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// Side identifies which end of the court a participant defends
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Opposite returns the other side of the court
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Court geometry and match rules, all in normalized [0,1] court units
const (
	PaddleMin         = 0.1
	PaddleMax         = 0.9
	PaddleCenter      = 0.5
	PaddleHalfHeight  = 0.1
	PaddlePlaneOffset = 0.05 // distance of the collision plane from each edge

	SpinFactor    = 2.0
	SpeedUpFactor = 1.05
	MaxVerticalV  = 1.0

	ServeSpeed    = 0.5
	ServeMaxSpinY = 0.25

	DefaultWinningScore    = 11
	DefaultMaxParticipants = 2
)

// Participant is a human or synthetic player occupying one side
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	PaddleY     float64   `json:"paddleY"`
	Score       int       `json:"score"`
	Synthetic   bool      `json:"synthetic"`
	Side        Side      `json:"side"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Ball is the ball state. Speed is a multiplier applied to the velocity.
type Ball struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Speed float64 `json:"speed"`
}

// Session is one pending or running match.
//
// Session carries no lock of its own. Callers serialize access through the
// owning match (see package session).
type Session struct {
	ID              string        `json:"id"`
	Participants    []Participant `json:"participants"`
	Ball            Ball          `json:"ball"`
	Status          Status        `json:"status"`
	Private         bool          `json:"private"`
	RoomCode        string        `json:"roomCode,omitempty"`
	MaxParticipants int           `json:"maxParticipants"`
	Synthetic       bool          `json:"synthetic"`
	Difficulty      Difficulty    `json:"difficulty,omitempty"`
	WinningScore    int           `json:"winningScore"`
	WinnerID        string        `json:"winnerId,omitempty"`
	Tick            uint64        `json:"tick"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	FinishedAt      *time.Time    `json:"finishedAt,omitempty"`

	ai opponentState
}

// NewSession creates an empty waiting session with a centered serve
func NewSession(id string, maxParticipants, winningScore int, now time.Time, rng *rand.Rand) *Session {
	if maxParticipants <= 0 || maxParticipants > DefaultMaxParticipants {
		maxParticipants = DefaultMaxParticipants
	}
	if winningScore <= 0 {
		winningScore = DefaultWinningScore
	}
	first := SideLeft
	if rng.Intn(2) == 1 {
		first = SideRight
	}
	return &Session{
		ID:              id,
		Participants:    make([]Participant, 0, maxParticipants),
		Ball:            ServeBall(first, rng),
		Status:          StatusWaiting,
		MaxParticipants: maxParticipants,
		WinningScore:    winningScore,
		CreatedAt:       now,
	}
}

// NewParticipant returns a participant with a centered paddle
func NewParticipant(id, displayName string, side Side, synthetic bool, now time.Time) Participant {
	return Participant{
		ID:          id,
		DisplayName: displayName,
		PaddleY:     PaddleCenter,
		Side:        side,
		Synthetic:   synthetic,
		JoinedAt:    now,
	}
}

// ClampPaddle maps any real input into the legal paddle range.
// NaN is treated as a centered paddle.
func ClampPaddle(y float64) float64 {
	if math.IsNaN(y) {
		return PaddleCenter
	}
	return math.Max(PaddleMin, math.Min(PaddleMax, y))
}

// ServeBall returns a fresh ball at center heading toward the given side
func ServeBall(toward Side, rng *rand.Rand) Ball {
	vx := ServeSpeed
	if toward == SideLeft {
		vx = -ServeSpeed
	}
	return Ball{
		X:     0.5,
		Y:     0.5,
		VX:    vx,
		VY:    (rng.Float64()*2 - 1) * ServeMaxSpinY,
		Speed: 1.0,
	}
}

// Participant returns a pointer into the roster for in-place mutation
func (s *Session) Participant(id string) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// BySide returns the participant defending the given side
func (s *Session) BySide(side Side) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].Side == side {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// SyntheticParticipant returns the AI participant, if any
func (s *Session) SyntheticParticipant() (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].Synthetic {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// VacantSide returns the first free side, left before right
func (s *Session) VacantSide() (Side, bool) {
	if _, taken := s.BySide(SideLeft); !taken {
		return SideLeft, true
	}
	if _, taken := s.BySide(SideRight); !taken {
		return SideRight, true
	}
	return "", false
}

// IsFull reports whether the roster has reached capacity
func (s *Session) IsFull() bool {
	return len(s.Participants) >= s.MaxParticipants
}

// HumanCount returns the number of non-synthetic participants
func (s *Session) HumanCount() int {
	n := 0
	for _, p := range s.Participants {
		if !p.Synthetic {
			n++
		}
	}
	return n
}

// AddParticipant appends p and activates the session once the roster is full
func (s *Session) AddParticipant(p Participant, now time.Time) {
	s.Participants = append(s.Participants, p)
	if s.Status == StatusWaiting && s.IsFull() {
		s.Start(now)
	}
}

// RemoveParticipant drops the participant with the given id
func (s *Session) RemoveParticipant(id string) (Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			removed := s.Participants[i]
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return removed, true
		}
	}
	return Participant{}, false
}

// Start moves a waiting session into play
func (s *Session) Start(now time.Time) {
	s.Status = StatusActive
	if s.StartedAt == nil {
		started := now
		s.StartedAt = &started
	}
}

// Finish marks the session terminal. Calling it twice is a no-op.
func (s *Session) Finish(now time.Time, winnerID string) {
	if s.Status == StatusFinished {
		return
	}
	s.Status = StatusFinished
	s.WinnerID = winnerID
	finished := now
	s.FinishedAt = &finished
}

// SetScore raises a participant's score. Scores never decrease and never
// pass the winning threshold. Reports whether the session finished.
func (s *Session) SetScore(p *Participant, score int, now time.Time) bool {
	if s.Status == StatusFinished {
		return false
	}
	if score < p.Score {
		score = p.Score
	}
	if score > s.WinningScore {
		score = s.WinningScore
	}
	p.Score = score
	if p.Score >= s.WinningScore {
		s.Finish(now, p.ID)
		return true
	}
	return false
}

// Clone returns a deep copy safe to hand outside the owning match
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = append([]Participant(nil), s.Participants...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
