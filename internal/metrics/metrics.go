// Package metrics provides Prometheus instrumentation for the weather
// trading engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ForecastsFetchedTotal counts forecast fetches by provider and outcome.
	ForecastsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_forecasts_fetched_total",
		Help: "Total forecast fetch attempts by source and outcome",
	}, []string{"source", "outcome"})

	// SettlementsObservedTotal counts settlement closures by city.
	SettlementsObservedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_settlements_observed_total",
		Help: "Total settlements observed by city",
	}, []string{"city"})

	// PredictionsGeneratedTotal counts ensemble predictions produced.
	PredictionsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_predictions_generated_total",
		Help: "Total ensemble predictions generated, partitioned by confidence",
	}, []string{"city", "confidence"})

	// EVScanSignalsTotal counts EV-engine candidates by whether they cleared
	// the minimum-EV threshold.
	EVScanSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_ev_scan_signals_total",
		Help: "Total EV-engine candidates scanned, partitioned by outcome",
	}, []string{"outcome"})

	// RiskDenialsTotal counts orders denied by the risk guard chain, by
	// reason — matches internal/risk.Reason exactly.
	RiskDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_risk_denials_total",
		Help: "Total trade signals denied by the risk controller, by reason",
	}, []string{"reason"})

	// TradesExecutedTotal counts orders actually placed, by side and mode
	// (auto vs manual-approved).
	TradesExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_trades_executed_total",
		Help: "Total trades executed, partitioned by side and mode",
	}, []string{"side", "mode"})

	// TradesSettledTotal counts trades reaching a terminal settlement
	// outcome (won/lost).
	TradesSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_trades_settled_total",
		Help: "Total trades settled, partitioned by outcome",
	}, []string{"outcome"})

	// RealizedPnLCents tracks cumulative realized P&L in cents.
	RealizedPnLCents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boz_realized_pnl_cents_total",
		Help: "Cumulative realized P&L in cents (can be negative via Add)",
	})

	// ApprovalQueueSize tracks the number of PendingTrade rows awaiting
	// manual approval.
	ApprovalQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boz_approval_queue_size",
		Help: "Number of pending trades awaiting manual approval",
	})

	// PendingTradesExpiredTotal counts trades swept from PENDING to EXPIRED.
	PendingTradesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boz_pending_trades_expired_total",
		Help: "Total pending trades that expired before approval",
	})

	// OrchestrationCycleDuration tracks end-to-end cycle latency per user.
	OrchestrationCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "boz_orchestration_cycle_duration_seconds",
		Help:    "Trade orchestration cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OrchestrationCycleStalledTotal counts cycles killed by the watchdog.
	OrchestrationCycleStalledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boz_orchestration_cycle_stalled_total",
		Help: "Total orchestration cycles cancelled by the 10-minute watchdog",
	})

	// WebSocketClients tracks connected dashboard WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boz_websocket_clients",
		Help: "Number of connected dashboard WebSocket clients",
	})

	// ExchangeStreamReconnectsTotal counts kalshi stream reconnect attempts.
	ExchangeStreamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boz_exchange_stream_reconnects_total",
		Help: "Total reconnect attempts against the exchange WebSocket stream",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boz_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boz_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
