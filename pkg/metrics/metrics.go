package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered on the default registry through promauto, served by GET /metrics.
var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "path"},
	)

	// CommandsSent counts protocol lines written to the worker, by command tag.
	CommandsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_worker_commands_sent_total",
			Help: "Commands written to the worker input stream",
		},
		[]string{"command"},
	)

	// CommandsDropped counts commands that never reached the worker because its input
	// stream was not writable.
	CommandsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_worker_commands_dropped_total",
			Help: "Commands dropped because the worker input stream was not writable",
		},
		[]string{"command"},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_worker_events_total",
			Help: "Events delivered from the worker, by event tag",
		},
		[]string{"event"},
	)

	FramingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_worker_framing_errors_total",
			Help: "Output lines from the worker that were not valid JSON",
		},
	)

	WorkerStarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studio_worker_starts_total",
			Help: "Worker processes spawned",
		},
	)

	WorkerExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studio_worker_exits_total",
			Help: "Worker process exits, by reason",
		},
		[]string{"reason"},
	)

	// Training is 1 while a training run is in flight.
	Training = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studio_session_training",
			Help: "Whether a training run is in progress",
		},
	)

	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studio_graph_nodes",
			Help: "Number of nodes in the edited graph",
		},
	)
)
