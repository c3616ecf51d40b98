package game

import (
	"math"
	"math/rand"
	"time"
)

// TickDuration is the nominal simulation step in seconds. Step assumes it
// per invocation regardless of wall-clock time since the previous call.
const TickDuration = 1.0 / 60.0

// StepResult describes what happened during one physics step
type StepResult struct {
	WallBounces int
	PaddleHit   Side // side whose paddle returned the ball, "" if none
	Scored      Side // side that won the point, "" if none
	Finished    bool
}

// Step advances the ball of an active session by dt seconds: integration,
// wall reflection, paddle collision, scoring and serve reset. Sessions in any
// other status are left untouched.
func Step(s *Session, dt float64, rng *rand.Rand, now time.Time) StepResult {
	var res StepResult
	if s.Status != StatusActive {
		return res
	}
	s.Tick++

	b := &s.Ball
	prevX := b.X
	b.X += b.VX * b.Speed * dt
	b.Y += b.VY * b.Speed * dt

	// Walls: one reflection per crossing, always pointing back into the court
	if b.Y <= 0 {
		b.Y = 0
		b.VY = math.Abs(b.VY)
		res.WallBounces++
	} else if b.Y >= 1 {
		b.Y = 1
		b.VY = -math.Abs(b.VY)
		res.WallBounces++
	}

	if side, ok := approachingSide(*b); ok {
		plane := paddlePlane(side)
		crossed := (side == SideLeft && prevX >= plane && b.X <= plane) ||
			(side == SideRight && prevX <= plane && b.X >= plane)
		if p, present := s.BySide(side); crossed && present && math.Abs(b.Y-p.PaddleY) <= PaddleHalfHeight {
			b.VX = -b.VX
			b.VY = clampVertical(b.VY + (b.Y-p.PaddleY)*SpinFactor)
			b.Speed *= SpeedUpFactor
			b.X = plane
			res.PaddleHit = side
		}
	}

	switch {
	case b.X < 0:
		res.Scored = SideRight
	case b.X > 1:
		res.Scored = SideLeft
	}
	if res.Scored != "" {
		res.Finished = awardPoint(s, res.Scored, now)
		s.Ball = ServeBall(res.Scored.Opposite(), rng)
	}
	return res
}

// awardPoint credits the scoring side and reports whether the match ended
func awardPoint(s *Session, scorer Side, now time.Time) bool {
	p, ok := s.BySide(scorer)
	if !ok {
		return false
	}
	return s.SetScore(p, p.Score+1, now)
}

// approachingSide reports which paddle the ball is moving toward
func approachingSide(b Ball) (Side, bool) {
	switch {
	case b.VX < 0:
		return SideLeft, true
	case b.VX > 0:
		return SideRight, true
	}
	return "", false
}

func paddlePlane(side Side) float64 {
	if side == SideLeft {
		return PaddlePlaneOffset
	}
	return 1 - PaddlePlaneOffset
}

func clampVertical(vy float64) float64 {
	return math.Max(-MaxVerticalV, math.Min(MaxVerticalV, vy))
}
