package session

import (
	"log"
	"sync"
	"time"

	"paddle-arena/internal/game"
)

// SimulationMode selects what drives physics steps
type SimulationMode string

const (
	// ModeInput steps once per accepted move
	ModeInput SimulationMode = "input"
	// ModeContinuous steps on a fixed clock while the session is active
	ModeContinuous SimulationMode = "continuous"
)

// DefaultTickRate is the continuous-mode step frequency in Hz
const DefaultTickRate = 60

// ParseSimulationMode validates a mode name. Empty means ModeInput.
func ParseSimulationMode(name string) (SimulationMode, bool) {
	switch SimulationMode(name) {
	case "", ModeInput:
		return ModeInput, true
	case ModeContinuous:
		return ModeContinuous, true
	}
	return "", false
}

// Ticker steps one match at a fixed rate until stopped
type Ticker struct {
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// startTicker launches the clock goroutine for m
func startTicker(m *Match, tickRate int) *Ticker {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	t := &Ticker{
		ticker:   time.NewTicker(time.Second / time.Duration(tickRate)),
		stopChan: make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-t.ticker.C:
				if !t.tick(m) {
					return
				}
			case <-t.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 Session %s clock started at %d TPS", m.state.ID, tickRate)
	return t
}

// tick advances m once. Returns false once the clock should exit.
func (t *Ticker) tick(m *Match) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop may have been called while waiting for the lock
	select {
	case <-t.stopChan:
		return false
	default:
	}
	if m.removed || m.state.Status != game.StatusActive {
		return true
	}
	m.advanceLocked()
	return true
}

// Stop halts the clock. Safe to call while holding the match lock: it
// never waits for the goroutine.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.stopChan)
	})
}
