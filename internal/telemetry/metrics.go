// Package telemetry holds the domain Prometheus metrics shared by the
// session, hub and persistence layers.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality (no per-session labels)
var (
	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_sessions",
		Help: "Sessions currently held by the registry, by status",
	}, []string{"status"}) // Bounded: "waiting", "active", "paused", "finished"

	sessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_sessions_created_total",
		Help: "Sessions created, by kind",
	}, []string{"kind"}) // Bounded: "human", "synthetic"

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_step_duration_seconds",
		Help:    "Time spent in one physics + opponent step",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
	})

	paddleHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_paddle_hits_total",
		Help: "Ball returns off a paddle",
	})

	pointsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_points_total",
		Help: "Points scored across all sessions",
	})

	matchesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_matches_finished_total",
		Help: "Sessions that reached the winning score",
	})

	inboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_inbound_messages_total",
		Help: "Inbound channel messages, by type",
	}, []string{"type"}) // Bounded: protocol types plus "unknown" and "malformed"

	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_broadcasts_total",
		Help: "Snapshot broadcasts issued",
	})

	channelsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_channels_pruned_total",
		Help: "Channels removed from the hub after a failed send",
	})

	outboxAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_outbox_appended_total",
		Help: "Persistence events accepted by the outbox",
	})

	outboxDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_outbox_dropped_total",
		Help: "Persistence events dropped by rate limiting or a full queue",
	})

	outboxFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_outbox_failed_total",
		Help: "Persistence events the store rejected",
	})
)

// SessionStatusChanged moves one session between status gauges.
// An empty from or to means the session entered or left the registry.
func SessionStatusChanged(from, to string) {
	if from == to {
		return
	}
	if from != "" {
		sessionsActive.WithLabelValues(from).Dec()
	}
	if to != "" {
		sessionsActive.WithLabelValues(to).Inc()
	}
}

// RecordSessionCreated counts a new session
func RecordSessionCreated(synthetic bool) {
	kind := "human"
	if synthetic {
		kind = "synthetic"
	}
	sessionsCreated.WithLabelValues(kind).Inc()
}

// RecordStep records step timing and outcome
func RecordStep(duration time.Duration, paddleHit, scored, finished bool) {
	stepDuration.Observe(duration.Seconds())
	if paddleHit {
		paddleHits.Inc()
	}
	if scored {
		pointsScored.Inc()
	}
	if finished {
		matchesFinished.Inc()
	}
}

// RecordInbound counts one inbound message by type
func RecordInbound(msgType string) {
	inboundMessages.WithLabelValues(msgType).Inc()
}

// RecordBroadcast counts a broadcast and the channels it pruned
func RecordBroadcast(pruned int) {
	broadcastsTotal.Inc()
	if pruned > 0 {
		channelsPruned.Add(float64(pruned))
	}
}

// RecordOutboxAppend counts an accepted or dropped persistence event
func RecordOutboxAppend(accepted bool) {
	if accepted {
		outboxAppended.Inc()
		return
	}
	outboxDropped.Inc()
}

// RecordOutboxFailure counts a store error
func RecordOutboxFailure() {
	outboxFailed.Inc()
}
