// Package metrics provides Prometheus instrumentation for the decision engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Evaluations counts evaluation cycles, partitioned by asset.
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyquote_evaluations_total",
		Help: "Total evaluation cycles",
	}, []string{"asset"})

	// Signals counts mispricing signals by side and causality outcome.
	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyquote_signals_total",
		Help: "Mispricing signals detected",
	}, []string{"side", "causality"})

	// Entries counts accepted entries by side.
	Entries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyquote_entries_total",
		Help: "Accepted entry decisions",
	}, []string{"side"})

	// Rejections counts decision rejections by reason code.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyquote_rejections_total",
		Help: "Decision rejections by reason",
	}, []string{"reason"})

	// Hedges counts hedge orders placed, partitioned by emergency flag.
	Hedges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyquote_hedges_total",
		Help: "Hedge orders placed",
	}, []string{"emergency"})

	// EmergencyExits counts reversal-guard firings.
	EmergencyExits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyquote_emergency_exits_total",
		Help: "Reversal guard emergency exits",
	})

	// ActiveMarkets tracks registered markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyquote_active_markets",
		Help: "Number of registered markets",
	})

	// CycleDuration observes evaluation cycle latency.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyquote_cycle_duration_seconds",
		Help:    "Evaluation cycle duration in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// LockedProfit gauges guaranteed profit across paired positions.
	LockedProfit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyquote_locked_profit_dollars",
		Help: "Guaranteed settlement profit on paired shares",
	})

	// TelemetryDropped counts events lost to a full sink queue.
	TelemetryDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyquote_telemetry_dropped_total",
		Help: "Telemetry events dropped by the bounded queue",
	})
)

// Serve exposes /metrics on addr. Blocks; run it in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
