package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle metrics
	PostsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "standup_posts_created_total",
			Help: "Total standup posts created",
		},
	)

	PostsInvalidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standup_posts_invalidated_total",
			Help: "Total posts invalidated",
		},
		[]string{"reason"}, // "expired", "message_deleted", "role_revoked", "room_removed"
	)

	PostsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "standup_posts_rejected_total",
			Help: "Total malformed submissions rejected",
		},
	)

	ReconcileFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standup_reconcile_failures_total",
			Help: "Total role reconciliation failures",
		},
		[]string{"op"}, // "grant" or "revoke"
	)

	// Sweeper metrics
	SweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "standup_sweep_runs_total",
			Help: "Total expiry sweep ticks",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "standup_sweep_duration_seconds",
			Help:    "Expiry sweep duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// Ingestion metrics
	GatewayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standup_gateway_events_total",
			Help: "Total gateway events handled",
		},
		[]string{"type"},
	)

	DedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "standup_dedup_hits_total",
			Help: "Total gateway events skipped as redelivered",
		},
	)

	CommandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standup_commands_total",
			Help: "Total admin commands handled",
		},
		[]string{"command"},
	)
)
