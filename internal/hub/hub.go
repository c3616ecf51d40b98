// Package hub fans session snapshots out to the channels subscribed to a
// session. It holds channel handles only; transports own the connections.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"paddle-arena/internal/telemetry"
)

// Channel is one subscriber. Send must not block: a transport that cannot
// accept the frame returns an error and is pruned.
type Channel interface {
	ID() string
	Send(msg []byte) error
}

// Hub tracks channels per session id
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*channelSet
}

type channelSet struct {
	mu       sync.Mutex
	channels map[string]Channel
}

// New creates an empty hub
func New() *Hub {
	return &Hub{sessions: make(map[string]*channelSet)}
}

// Add subscribes ch to sessionID. A channel with the same ID is replaced.
func (h *Hub) Add(sessionID string, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = &channelSet{channels: make(map[string]Channel)}
		h.sessions[sessionID] = set
	}

	set.mu.Lock()
	set.channels[ch.ID()] = ch
	set.mu.Unlock()
}

// Remove unsubscribes ch. Unknown channels are ignored.
func (h *Hub) Remove(sessionID string, ch Channel) {
	h.mu.RLock()
	set, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	set.mu.Lock()
	if current, ok := set.channels[ch.ID()]; ok && current == ch {
		delete(set.channels, ch.ID())
	}
	empty := len(set.channels) == 0
	set.mu.Unlock()

	if empty {
		h.dropIfEmpty(sessionID, set)
	}
}

// RemoveSession forgets every channel of a session and returns them
func (h *Hub) RemoveSession(sessionID string) []Channel {
	h.mu.Lock()
	set, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	if !ok {
		return nil
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	out := make([]Channel, 0, len(set.channels))
	for _, ch := range set.channels {
		out = append(out, ch)
	}
	set.channels = make(map[string]Channel)
	return out
}

// Count returns the number of channels subscribed to sessionID
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	set, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.channels)
}

// Total returns the number of channels across all sessions
func (h *Hub) Total() int {
	h.mu.RLock()
	sets := make([]*channelSet, 0, len(h.sessions))
	for _, set := range h.sessions {
		sets = append(sets, set)
	}
	h.mu.RUnlock()

	n := 0
	for _, set := range sets {
		set.mu.Lock()
		n += len(set.channels)
		set.mu.Unlock()
	}
	return n
}

// Broadcast serializes msg once and writes it to every channel of the
// session. Channels whose Send fails are removed; their failure is not an
// error. Returns the number of successful deliveries.
func (h *Hub) Broadcast(sessionID string, msg any) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode broadcast for %s: %w", sessionID, err)
	}

	h.mu.RLock()
	set, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		telemetry.RecordBroadcast(0)
		return 0, nil
	}

	set.mu.Lock()
	delivered, pruned := 0, 0
	for id, ch := range set.channels {
		if err := ch.Send(payload); err != nil {
			delete(set.channels, id)
			pruned++
			log.Printf("📱 Pruned channel %s from session %s: %v", id, sessionID, err)
			continue
		}
		delivered++
	}
	empty := len(set.channels) == 0
	set.mu.Unlock()

	telemetry.RecordBroadcast(pruned)
	if empty {
		h.dropIfEmpty(sessionID, set)
	}
	return delivered, nil
}

// SendTo writes msg to a single channel, outside of any session fan-out
func SendTo(ch Channel, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return ch.Send(payload)
}

// dropIfEmpty removes the session entry if set is still registered and empty
func (h *Hub) dropIfEmpty(sessionID string, set *channelSet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] != set {
		return
	}
	set.mu.Lock()
	empty := len(set.channels) == 0
	set.mu.Unlock()
	if empty {
		delete(h.sessions, sessionID)
	}
}
