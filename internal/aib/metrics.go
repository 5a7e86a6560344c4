package aib

import (
	"log"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics grounded on internal/gbeapi/observability.go's promauto idiom,
// renamed from gbe_* to aib_* and scoped to the training loop and
// persistence worker (SPEC domain stack: "AIB training-loop TD-loss/
// Q-mean gauges").
var (
	tdLossGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aib_td_loss",
		Help: "Most recent TD error magnitude per AI tank model.",
	}, []string{"map_key"})

	qMeanGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aib_q_mean",
		Help: "Most recent mean Q-value per AI tank model.",
	}, []string{"map_key"})

	epsilonGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aib_epsilon",
		Help: "Current exploration epsilon per AI tank model.",
	}, []string{"map_key"})

	activeSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aib_active_sessions",
		Help: "Number of sessions the AI backend currently has an open stream to.",
	})

	saveLatencyHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aib_model_save_duration_seconds",
		Help:    "Latency of model-store save requests.",
		Buckets: prometheus.DefBuckets,
	})

	saveFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aib_model_save_failures_total",
		Help: "Total model-store save requests that failed.",
	})

	episodesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aib_episodes_total",
		Help: "Total closed training episodes per AI tank model.",
	}, []string{"map_key"})
)

// StartDebugServer serves /metrics, pprof, and /health on addr in a
// background goroutine, mirroring gbeapi.StartDebugServer's mux shape but
// scoped to the AI backend.
func StartDebugServer(addr string) {
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
		log.Printf("aib: debug server on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("aib: debug server error: %v", err)
		}
	}()
}
