package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "booner"

var (
	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "tasks_submitted_total",
		Help:      "Tasks accepted by the dispatcher.",
	}, []string{"target", "action"})

	TasksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "tasks_rejected_total",
		Help:      "Submissions rejected during validation.",
	}, []string{"reason"})

	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "tasks_finished_total",
		Help:      "Tasks that reached a terminal status.",
	}, []string{"target", "action", "status"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "task_duration_seconds",
		Help:      "Executor run time per task.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"action"})

	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatcher",
		Name:      "tasks_in_flight",
		Help:      "Tasks currently running.",
	})

	ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "probe_failures_total",
		Help:      "Target probes that failed or timed out.",
	}, []string{"target", "reason"})

	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "snapshot_build_seconds",
		Help:      "Time spent rebuilding the system snapshot.",
		Buckets:   prometheus.DefBuckets,
	})

	HubSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "subscribers",
		Help:      "Current subscribers per topic.",
	}, []string{"topic"})

	HubPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "messages_published_total",
		Help:      "Messages published per topic.",
	}, []string{"topic"})

	HubDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "subscribers_dropped_total",
		Help:      "Subscribers disconnected because their buffer was full.",
	}, []string{"topic"})
)
