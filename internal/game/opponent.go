package game

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Difficulty is a named synthetic-opponent tier
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// DifficultyProfile tunes the synthetic opponent.
// Speed scales MaxPaddleStep, Accuracy shrinks aim noise, ReactionTime is
// the simulated delay between target recomputations.
type DifficultyProfile struct {
	Speed        float64
	Accuracy     float64
	ReactionTime time.Duration
}

// MaxPaddleStep is the farthest a paddle at Speed 1.0 travels in one step
const MaxPaddleStep = 0.05

// aimNoiseSpread is the noise amplitude at zero accuracy
const aimNoiseSpread = 0.5

// reactionEpsilon absorbs rounding in the accumulated step time so a
// reaction time that is a whole number of ticks fires on that tick
const reactionEpsilon = 1e-9

var difficultyProfiles = map[Difficulty]DifficultyProfile{
	DifficultyEasy:   {Speed: 0.3, Accuracy: 0.6, ReactionTime: 300 * time.Millisecond},
	DifficultyMedium: {Speed: 0.5, Accuracy: 0.75, ReactionTime: 200 * time.Millisecond},
	DifficultyHard:   {Speed: 0.7, Accuracy: 0.85, ReactionTime: 150 * time.Millisecond},
	DifficultyExpert: {Speed: 0.9, Accuracy: 0.95, ReactionTime: 100 * time.Millisecond},
}

// ParseDifficulty validates a tier name (case-insensitive)
func ParseDifficulty(name string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := difficultyProfiles[d]; !ok {
		return "", fmt.Errorf("unknown difficulty %q", name)
	}
	return d, nil
}

// Profile returns the tuning for d. Unknown tiers fall back to medium.
func (d Difficulty) Profile() DifficultyProfile {
	if p, ok := difficultyProfiles[d]; ok {
		return p
	}
	return difficultyProfiles[DifficultyMedium]
}

// Label is the human-readable tier name, e.g. "Expert"
func (d Difficulty) Label() string {
	if d == "" {
		return ""
	}
	return strings.ToUpper(string(d[:1])) + string(d[1:])
}

// SyntheticID is the participant id used for the AI seat of a tier
func SyntheticID(d Difficulty) string {
	return "ai-" + string(d)
}

// opponentState is the AI's memory between steps
type opponentState struct {
	target   float64
	sinceAim float64 // simulated seconds since the target was recomputed
	aimed    bool
}

// UpdateOpponent moves the synthetic paddle of s one step toward its target.
// Movement starts from the paddle's stored position. Returns false when the
// session has no synthetic participant or is not active.
func UpdateOpponent(s *Session, dt float64, rng *rand.Rand) bool {
	ai, ok := s.SyntheticParticipant()
	if !ok || s.Status != StatusActive {
		return false
	}
	profile := s.Difficulty.Profile()

	st := &s.ai
	st.sinceAim += dt
	if !st.aimed || st.sinceAim+reactionEpsilon >= profile.ReactionTime.Seconds() {
		noise := (rng.Float64()*2 - 1) * (1 - profile.Accuracy) * aimNoiseSpread
		st.target = ClampPaddle(PredictIntercept(s.Ball, ai.Side) + noise)
		st.sinceAim = 0
		st.aimed = true
	}

	maxStep := profile.Speed * MaxPaddleStep
	delta := math.Max(-maxStep, math.Min(maxStep, st.target-ai.PaddleY))
	ai.PaddleY = ClampPaddle(ai.PaddleY + delta)
	return true
}

// OpponentTarget exposes the AI's current aim point
func (s *Session) OpponentTarget() (float64, bool) {
	return s.ai.target, s.ai.aimed
}

// PredictIntercept extrapolates where the ball crosses the paddle plane of
// side, folding wall bounces back into the court. A ball moving away from
// side yields its present y.
func PredictIntercept(b Ball, side Side) float64 {
	approaching, ok := approachingSide(b)
	if !ok || approaching != side {
		return b.Y
	}
	t := (paddlePlane(side) - b.X) / b.VX
	if t < 0 {
		return b.Y
	}
	return foldIntoCourt(b.Y + b.VY*t)
}

// foldIntoCourt reflects y off the walls at 0 and 1 as many times as needed
func foldIntoCourt(y float64) float64 {
	y = math.Mod(y, 2)
	if y < 0 {
		y += 2
	}
	if y > 1 {
		y = 2 - y
	}
	return y
}
