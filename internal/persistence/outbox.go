package persistence

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"paddle-arena/internal/telemetry"

	"golang.org/x/time/rate"
)

const (
	OutboxBufferSize      = 4096                   // Queued events before drops start
	MaxMovesPerSecond     = 120                    // Per-session recordMove rate limit
	BatchFlushSize        = 64                     // Events per batch write
	BatchFlushInterval    = 100 * time.Millisecond // How often to flush
	SessionLimiterCleanup = 5 * time.Minute        // Cleanup interval for session limiters
	StoreCallTimeout      = 2 * time.Second        // Per-event store deadline
)

// Outbox is a bounded write-behind queue in front of a Store.
// Append never blocks: when the queue is full or a session floods moves,
// the event is dropped and counted. Lifecycle events (create, join, leave,
// status, score) are never rate limited.
type Outbox struct {
	queue chan Event
	store Store

	// Per-session move limiter (prevents a single match from flooding storage)
	sessionLimiters sync.Map // map[string]*sessionLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	stopped  atomic.Bool

	sequence     uint64 // atomic
	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
	failedCount  uint64 // atomic
}

type sessionLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nanos
}

// NewOutbox creates an outbox draining into store
func NewOutbox(store Store) *Outbox {
	if store == nil {
		store = NopStore{}
	}
	return &Outbox{
		queue:    make(chan Event, OutboxBufferSize),
		store:    store,
		stopChan: make(chan struct{}),
	}
}

// Start begins the async writer goroutine
func (o *Outbox) Start() {
	if o.stopped.Load() || !o.started.CompareAndSwap(false, true) {
		return
	}
	o.writerWg.Add(2)
	go o.writerLoop()
	go o.cleanupLoop()
}

// Stop flushes queued events and shuts the writer down
func (o *Outbox) Stop() {
	o.stopOnce.Do(func() {
		o.stopped.Store(true)
		close(o.stopChan)
		if o.started.Load() {
			o.writerWg.Wait()
			return
		}
		// Never started: flush synchronously so nothing accepted is lost
		o.flushBatch(o.drain(nil))
	})
}

// Append queues an event. Returns false if the event was dropped.
func (o *Outbox) Append(e Event) bool {
	if o.stopped.Load() {
		o.drop()
		return false
	}

	if e.Type == EventTypeMoveRecorded && !o.sessionLimiter(e.SessionID).Allow() {
		o.drop()
		return false
	}

	e.Sequence = atomic.AddUint64(&o.sequence, 1)
	select {
	case o.queue <- e:
		atomic.AddUint64(&o.totalCount, 1)
		telemetry.RecordOutboxAppend(true)
		return true
	default:
		o.drop()
		return false
	}
}

func (o *Outbox) drop() {
	atomic.AddUint64(&o.droppedCount, 1)
	telemetry.RecordOutboxAppend(false)
}

func (o *Outbox) sessionLimiter(sessionID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := o.sessionLimiters.Load(sessionID); ok {
		e := entry.(*sessionLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &sessionLimiterEntry{
		limiter: rate.NewLimiter(MaxMovesPerSecond, MaxMovesPerSecond),
	}
	entry.lastUsed.Store(now)
	actual, _ := o.sessionLimiters.LoadOrStore(sessionID, entry)
	return actual.(*sessionLimiterEntry).limiter
}

// writerLoop batches events and hands them to the store
func (o *Outbox) writerLoop() {
	defer o.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-o.stopChan:
			// Final flush
			o.flushBatch(o.drain(batch))
			return

		case e := <-o.queue:
			batch = append(batch, e)
			if len(batch) >= BatchFlushSize {
				o.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				o.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

// drain empties whatever is still queued onto batch
func (o *Outbox) drain(batch []Event) []Event {
	for {
		select {
		case e := <-o.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

// cleanupLoop removes stale session limiters to prevent memory leak
func (o *Outbox) cleanupLoop() {
	defer o.writerWg.Done()

	ticker := time.NewTicker(SessionLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-SessionLimiterCleanup).UnixNano()
			o.sessionLimiters.Range(func(key, value interface{}) bool {
				if value.(*sessionLimiterEntry).lastUsed.Load() < cutoff {
					o.sessionLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

// flushBatch applies events in order. Failures are logged and counted,
// never retried: the in-memory session stays authoritative.
func (o *Outbox) flushBatch(batch []Event) {
	for _, e := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), StoreCallTimeout)
		err := Apply(ctx, o.store, e)
		cancel()
		if err != nil {
			atomic.AddUint64(&o.failedCount, 1)
			telemetry.RecordOutboxFailure()
			log.Printf("⚠️ Persistence %s for session %s failed: %v", e.Type, e.SessionID, err)
		}
	}
}

// GetStats returns outbox counters for monitoring
func (o *Outbox) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&o.totalCount),
		"dropped": atomic.LoadUint64(&o.droppedCount),
		"failed":  atomic.LoadUint64(&o.failedCount),
		"pending": len(o.queue),
		"running": o.started.Load() && !o.stopped.Load(),
	}
}

// GetDroppedCount returns the number of dropped events
func (o *Outbox) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&o.droppedCount)
}

// GetFailedCount returns the number of events the store rejected
func (o *Outbox) GetFailedCount() uint64 {
	return atomic.LoadUint64(&o.failedCount)
}
