package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	factoringMetricsOnce sync.Once
	factoringRegistry    *FactoringMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "billfactor",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "billfactor",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "billfactor",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "billfactor",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter or auth checks.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records a JSON-RPC call. code is the JSON-RPC error code, or zero on
// success.
func (m *moduleMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit" or "unauthorized".
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// FactoringMetrics tracks marketplace operations executed by the node.
type FactoringMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pool     *prometheus.GaugeVec
}

// Factoring returns the singleton factoring metrics registry.
func Factoring() *FactoringMetrics {
	factoringMetricsOnce.Do(func() {
		factoringRegistry = &FactoringMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "billfactor",
				Subsystem: "factoring",
				Name:      "calls_total",
				Help:      "Factoring operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "billfactor",
				Subsystem: "factoring",
				Name:      "call_duration_seconds",
				Help:      "Execution time of factoring operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			pool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "billfactor",
				Subsystem: "factoring",
				Name:      "pool_balance",
				Help:      "Accrued fee pool per settlement currency.",
			}, []string{"currency"}),
		}
		prometheus.MustRegister(factoringRegistry.calls, factoringRegistry.duration, factoringRegistry.pool)
	})
	return factoringRegistry
}

// ObserveCall records one operation. outcome is "ok" or an error kind.
func (m *FactoringMetrics) ObserveCall(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.calls.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetPoolBalance publishes the pool balance. Values beyond float64 range are
// clamped.
func (m *FactoringMetrics) SetPoolBalance(currency string, amount *big.Int) {
	if m == nil {
		return
	}
	m.pool.WithLabelValues(strings.ToUpper(strings.TrimSpace(currency))).Set(bigToFloat(amount))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
