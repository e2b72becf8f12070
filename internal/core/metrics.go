package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_events_processed",
	Help: "Number of inbound events processed",
}, []string{"type"})

var raidTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_raid_transitions",
	Help: "Number of raid lifecycle transitions",
}, []string{"to"})

var spamEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_spam_escalations",
	Help: "Number of spam escalation steps taken",
}, []string{"step"})

var actionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_action_failures",
	Help: "Number of moderation actions that failed",
}, []string{"op"})

var persistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_persistence_failures",
	Help: "Number of storage calls that failed",
}, []string{"op"})

var sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "sentinel_sweep_duration_sec",
	Help: "Duration of one reconciliation sweep",
})
