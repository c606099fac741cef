// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts buys executed, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amm_trades_total",
		Help: "Total number of buys executed",
	}, []string{"side"})

	// TradeLatency tracks buy execution latency, lock wait included.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amm_trade_latency_seconds",
		Help:    "Buy execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// OperationErrors counts rejected state-changing operations by reason.
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amm_operation_errors_total",
		Help: "Rejected operations by operation and error",
	}, []string{"op", "reason"})

	// ActiveMarkets tracks the number of unresolved markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amm_active_markets",
		Help: "Number of currently unresolved markets",
	})

	// MarketsAwaitingResolution tracks unresolved markets past their deadline.
	MarketsAwaitingResolution = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amm_markets_awaiting_resolution",
		Help: "Unresolved markets whose resolution time has passed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amm_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amm_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amm_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// ExposureLimitRejections counts buys rejected by the exposure limiter.
	ExposureLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amm_exposure_limit_rejections_total",
		Help: "Buys rejected by the exposure limiter",
	})

	// MarketVolume tracks cumulative gross volume in base units.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amm_market_volume_total",
		Help: "Cumulative gross buy volume in base units",
	}, []string{"side"})

	// FeesCollected tracks fees routed to the accumulator in base units.
	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amm_fees_collected_total",
		Help: "Fees collected in base units",
	})

	// ClaimsTotal counts settled claims.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amm_claims_total",
		Help: "Total number of settled claims",
	})

	// PayoutsTotal tracks paid-out winnings in base units.
	PayoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amm_payouts_total",
		Help: "Winnings paid out in base units",
	})

	// SweptTotal tracks residual vault balances swept to the authority.
	SweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amm_swept_total",
		Help: "Residual vault funds swept in base units",
	})

	// ArchiveFailures counts settlement snapshots that could not be written.
	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amm_archive_failures_total",
		Help: "Settlement archive uploads that failed",
	})
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

		// Use the route pattern for the path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	return h.Hijack()
}
