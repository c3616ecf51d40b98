package session

import (
	"context"
	"fmt"

	"paddle-arena/internal/game"
	"paddle-arena/internal/hub"
	"paddle-arena/internal/identity"
	"paddle-arena/internal/persistence"
	"paddle-arena/internal/protocol"
	"paddle-arena/internal/telemetry"
)

// Handle applies one inbound message from who's channel ch on sessionID.
// Replies meant for the sender only are written to ch; everything else is
// broadcast to the session.
func (r *Registry) Handle(ctx context.Context, sessionID string, who identity.Identity, ch hub.Channel, msg protocol.Inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	telemetry.RecordInbound(msg.MessageType())

	// Ping never touches session state
	if ping, ok := msg.(protocol.Ping); ok {
		return hub.SendTo(ch, protocol.NewPong(r.now().UnixMilli(), ping.Timestamp))
	}

	m, err := r.lookup(sessionID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	switch in := msg.(type) {
	case protocol.Move:
		return m.moveLocked(who, in)
	case protocol.ScoreUpdate:
		return m.scoreLocked(who, in)
	case protocol.PauseRequest:
		return m.pauseLocked(who, in)
	case protocol.Ready:
		if err := hub.SendTo(ch, protocol.NewReadyAcknowledged(m.state.ID)); err != nil {
			return err
		}
		m.broadcastLocked()
		return nil
	default:
		return fmt.Errorf("%w: unhandled message %s", ErrInvalidInput, msg.MessageType())
	}
}

// participantLocked resolves the acting participant. The claimed identity
// must be the channel's identity and a member of the roster.
func (m *Match) participantLocked(who identity.Identity, claimed string) (*game.Participant, error) {
	if claimed != who.ID {
		return nil, fmt.Errorf("%w: identity mismatch", ErrForbidden)
	}
	p, ok := m.state.Participant(who.ID)
	if !ok || p.Synthetic {
		return nil, fmt.Errorf("%w: %s is not a participant", ErrForbidden, who.ID)
	}
	return p, nil
}

// moveLocked sets the sender's paddle. In input mode it also advances the
// match one step and broadcasts.
func (m *Match) moveLocked(who identity.Identity, in protocol.Move) error {
	p, err := m.participantLocked(who, in.Identity)
	if err != nil {
		return err
	}
	s := m.state
	if s.Status != game.StatusActive {
		return ErrNotActive
	}

	p.PaddleY = game.ClampPaddle(in.PaddleY)
	rec := persistence.MoveRecord{
		SessionID:     s.ID,
		ParticipantID: p.ID,
		PaddleY:       p.PaddleY,
		Tick:          s.Tick,
		At:            m.reg.now(),
	}
	if in.Timestamp != nil {
		rec.ClientTime = *in.Timestamp
	}
	m.record(persistence.MoveRecorded(rec))

	if m.reg.cfg.Mode == ModeInput {
		m.advanceLocked()
	}
	return nil
}

// scoreLocked raises the sender's score, never lowering it and never
// passing the winning score
func (m *Match) scoreLocked(who identity.Identity, in protocol.ScoreUpdate) error {
	p, err := m.participantLocked(who, in.Identity)
	if err != nil {
		return err
	}
	s := m.state
	if s.Status != game.StatusActive {
		return ErrNotActive
	}

	prev := s.Status
	before := p.Score
	s.SetScore(p, in.Score, m.reg.now())
	if p.Score != before {
		m.record(persistence.ScoreUpdated(s.ID, p.ID, p.Score))
	}
	m.transitionLocked(prev)
	m.broadcastLocked()
	return nil
}

// pauseLocked toggles between active and paused
func (m *Match) pauseLocked(who identity.Identity, in protocol.PauseRequest) error {
	if _, err := m.participantLocked(who, in.Identity); err != nil {
		return err
	}
	s := m.state
	prev := s.Status
	switch prev {
	case game.StatusActive:
		s.Status = game.StatusPaused
	case game.StatusPaused:
		s.Status = game.StatusActive
	default:
		return ErrNotActive
	}
	m.transitionLocked(prev)
	m.broadcastLocked()
	return nil
}
