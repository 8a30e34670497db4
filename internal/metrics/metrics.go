package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "player",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	PlaybackState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "player",
		Name:      "playback_state",
		Help:      "Current playback state (1=idle 2=buffering 3=ready 4=ended).",
	})

	EngineTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "engine_ticks_total",
		Help:      "Total scheduler ticks processed by the playback engine.",
	})

	EngineTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "player",
		Name:      "engine_tick_duration_seconds",
		Help:      "Wall time spent in one scheduler tick.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	DiscontinuitiesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "position_discontinuities_total",
		Help:      "Position discontinuities published, by reason.",
	}, []string{"reason"})

	TimedMessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "timed_messages_delivered_total",
		Help:      "Timed messages delivered at their stream position.",
	})

	TimedMessagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "timed_messages_dropped_total",
		Help:      "Timed messages dropped as canceled or unresolvable.",
	})

	RenderersEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "player",
		Name:      "renderers_enabled",
		Help:      "Number of currently enabled renderers.",
	})

	PlaybackErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "player",
		Name:      "playback_errors_total",
		Help:      "Playback errors surfaced on the event channel, by kind.",
	}, []string{"kind"})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "player",
		Name:      "ws_clients",
		Help:      "Number of connected WebSocket event subscribers.",
	})
)

// Register registers all collectors with the given registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PlaybackState,
		EngineTicksTotal,
		EngineTickDuration,
		DiscontinuitiesTotal,
		TimedMessagesDelivered,
		TimedMessagesDropped,
		RenderersEnabled,
		PlaybackErrorsTotal,
		WSClients,
	)
}
