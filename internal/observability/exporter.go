// Package observability exposes the pipeline counters to Prometheus, serves
// the health endpoint and copies snapshots into ClickHouse.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"solana-dex-router/internal/decoder"
	"solana-dex-router/internal/filter"
	"solana-dex-router/internal/metrics"
)

// DefaultNamespace prefixes every exported metric.
const DefaultNamespace = "dexrouter"

// SnapshotSource yields the current counters.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// RegisterExporter registers read-through collectors for src on reg. Values
// are read from the snapshot at scrape time, so nothing is double counted.
func RegisterExporter(reg prometheus.Registerer, namespace string, src SnapshotSource) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels prometheus.Labels, read func(metrics.Snapshot) float64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return read(src.Snapshot()) })
	}
	gauge := func(subsystem, name, help string, read func(metrics.Snapshot) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return read(src.Snapshot()) })
	}

	counter("pipeline", "events_received_total", "Events read from the upstream stream", nil,
		func(s metrics.Snapshot) float64 { return float64(s.Received) })
	counter("pipeline", "events_admitted_total", "Events that passed every filter stage", nil,
		func(s metrics.Snapshot) float64 { return float64(s.Admitted) })

	for _, stage := range filter.Stages {
		stage := stage
		counter("filter", "rejected_total", "Events rejected by filter stage", prometheus.Labels{"stage": string(stage)},
			func(s metrics.Snapshot) float64 { return float64(s.Rejected[stage]) })
	}

	for _, class := range []string{decoder.ClassPoolCreation, decoder.ClassSwap, decoder.ClassLiquidity, decoder.ClassOther} {
		class := class
		counter("decoder", "instructions_total", "Admitted instructions by class", prometheus.Labels{"class": class},
			func(s metrics.Snapshot) float64 { return float64(s.Classes[class]) })
	}

	counter("publisher", "publish_total", "Topic publish attempts by result", prometheus.Labels{"result": "success"},
		func(s metrics.Snapshot) float64 { return float64(s.PublishSuccess) })
	counter("publisher", "publish_total", "Topic publish attempts by result", prometheus.Labels{"result": "failure"},
		func(s metrics.Snapshot) float64 { return float64(s.PublishFailure) })

	gauge("pipeline", "avg_latency_ms", "Mean event-to-admission latency in milliseconds",
		func(s metrics.Snapshot) float64 { return s.AvgLatencyMs })
	gauge("pipeline", "filter_rate", "Admitted over received",
		func(s metrics.Snapshot) float64 { return s.FilterRate })
	gauge("publisher", "success_rate", "Successful over attempted publishes",
		func(s metrics.Snapshot) float64 { return s.PublishSuccessRate })
	gauge("health", "uptime_seconds", "Seconds since the pipeline started",
		func(s metrics.Snapshot) float64 { return s.Uptime.Seconds() })
	gauge("health", "stalled", "1 while the upstream is considered stalled",
		func(s metrics.Snapshot) float64 {
			if s.Stalled {
				return 1
			}
			return 0
		})
	gauge("health", "last_event_timestamp_seconds", "Unix time of the last admitted event",
		func(s metrics.Snapshot) float64 {
			if s.LastEventTime.IsZero() {
				return 0
			}
			return float64(s.LastEventTime.UnixMilli()) / 1000
		})
}
