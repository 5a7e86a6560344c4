package gbeapi

import (
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-session or per-tank labels).
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gbe_tick_duration_seconds",
		Help:    "Time spent in one session tick",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1},
	})

	sessionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gbe_session_count",
		Help: "Current number of live sessions",
	})

	tankCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gbe_tank_count",
		Help: "Current number of tanks across all sessions",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gbe_connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // bounded: "rate_limit", "origin", "ws_limit", "ws_total_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gbe_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gbe_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gbe_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gbe_websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// ObservabilityConfig configures the internal debug server.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // should stay on loopback in production
}

// DefaultObservabilityConfig returns safe defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{Enabled: true, ListenAddr: "127.0.0.1:6061"}
}

// StartDebugServer starts the pprof + prometheus debug server.
func StartDebugServer(cfg ObservabilityConfig, logger func(format string, args ...any)) error {
	if !cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		logger("gbe: debug server on %s", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			logger("gbe: debug server error: %v", err)
		}
	}()
	return nil
}

// RecordTick records tick timing for metrics.
func RecordTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }

// UpdateSessionCount updates the session gauge.
func UpdateSessionCount(n int) { sessionCount.Set(float64(n)) }

// UpdateTankCount updates the tank gauge.
func UpdateTankCount(n int) { tankCount.Set(float64(n)) }

// RecordConnectionRejected increments the rejection counter.
func RecordConnectionRejected(reason string) { connectionRejected.WithLabelValues(reason).Inc() }

// RecordRequest records HTTP request metrics.
func RecordRequest(method, endpoint string, status int, d time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates the active WebSocket connection gauge.
func UpdateWSConnections(n int) { wsConnectionsActive.Set(float64(n)) }

// IncrementWSMessages increments the WebSocket message counter.
func IncrementWSMessages() { wsMessagesTotal.Inc() }
