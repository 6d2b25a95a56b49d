package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_sync_runs_total",
			Help: "Total number of reconciliation runs by outcome",
		},
		[]string{"outcome"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "airdrop_sync_duration_seconds",
			Help:    "Time spent per reconciliation run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	CandidatesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_candidates_processed_total",
			Help: "Total number of source candidates processed by result",
		},
		[]string{"result"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airdrop_records_total",
			Help: "Record lifecycle operations (created, updated, expired, deleted)",
		},
		[]string{"operation"},
	)

	ProbeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_probe_calls_total",
			Help: "Total number of contract verification probes by chain and outcome",
		},
		[]string{"blockchain", "outcome"},
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contract_probe_duration_seconds",
			Help:    "Contract verification probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"blockchain"},
	)

	MonitorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_events_total",
			Help: "Normalized domain events emitted by the event monitor",
		},
		[]string{"blockchain", "type"},
	)

	MonitorEventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_events_dropped_total",
			Help: "Events dropped because the consumer channel was full",
		},
		[]string{"blockchain"},
	)

	MonitorReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_reconnects_total",
			Help: "Reconnect attempts per blockchain stream",
		},
		[]string{"blockchain"},
	)

	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Source fetcher invocations by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RPC provider metrics
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total number of RPC requests by provider and method",
		},
		[]string{"provider", "method"},
	)

	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_errors_total",
			Help: "Total number of RPC errors by provider and error code",
		},
		[]string{"provider", "error_code"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"provider", "method"},
	)
)
