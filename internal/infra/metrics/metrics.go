// Package metrics provides Prometheus metrics for scrape.
// Counters, gauges and histograms for program operations, the task
// lifecycle, reward payouts and the node registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Operations ─────────────────────────────────────────────────────────────

// Operations counts submitted operations by name and outcome.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "operations_total",
	Help:      "Total submitted program operations.",
}, []string{"op", "result"})

// OperationLatency tracks transaction duration in seconds.
var OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "scrape",
	Name:      "operation_latency_seconds",
	Help:      "Program operation duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"op"})

// OperationErrors counts rejected operations by error kind.
var OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "operation_errors_total",
	Help:      "Rejected program operations by error kind.",
}, []string{"op", "kind"})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCreated counts created tasks.
var TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "tasks_created_total",
	Help:      "Total tasks created.",
})

// TasksAssigned counts assignments by path (direct, endpoint).
var TasksAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "tasks_assigned_total",
	Help:      "Total task assignments.",
}, []string{"path"})

// TasksCompleted counts completed tasks.
var TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
})

// TasksClosed counts closed tasks by the status they were closed in.
var TasksClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "tasks_closed_total",
	Help:      "Total closed tasks.",
}, []string{"status"})

// DatasetBytes tracks reported dataset sizes.
var DatasetBytes = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "scrape",
	Name:      "dataset_size_units",
	Help:      "Dataset size reported at task completion.",
	Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
})

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardsDistributed counts tokens paid out of the vault by kind
// (completion, bonus).
var RewardsDistributed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "rewards_distributed_total",
	Help:      "Total reward tokens paid from the vault.",
}, []string{"kind"})

// EscrowDeposited counts tokens escrowed by task creation.
var EscrowDeposited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "escrow_deposited_total",
	Help:      "Total reward tokens escrowed into the vault.",
})

// ─── Registry ───────────────────────────────────────────────────────────────

// RegistryNodes tracks registered provider nodes.
var RegistryNodes = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "scrape",
	Name:      "registry_nodes",
	Help:      "Number of provider nodes listed in the registry.",
})

// RegistryCapacity tracks allocated registry slots.
var RegistryCapacity = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "scrape",
	Name:      "registry_capacity",
	Help:      "Allocated registry slots.",
})

// ─── Events & Health ────────────────────────────────────────────────────────

// EventsPublished counts delivered events by sink and outcome.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scrape",
	Name:      "events_published_total",
	Help:      "Events delivered to publishers.",
}, []string{"sink", "result"})

// EventsRetryPending tracks events waiting to be republished.
var EventsRetryPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "scrape",
	Name:      "events_retry_pending",
	Help:      "Events queued for republishing after a failed delivery.",
})

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "scrape",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})
