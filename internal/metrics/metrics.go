package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a point-in-time view of the demo server's counters
type Metrics struct {
	// Request metrics
	TotalRequests       uint64  `json:"total_requests"`
	SuccessfulRequests  uint64  `json:"successful_requests"`
	FailedRequests      uint64  `json:"failed_requests"`
	TotalResponseTime   uint64  `json:"total_response_time_ms"`
	AverageResponseTime float64 `json:"average_response_time_ms"`

	// Per-route metrics, keyed by route pattern
	Routes map[string]*RouteMetrics `json:"routes"`

	// Burn metrics
	BurnsStarted     uint64  `json:"burns_started"`
	BurnsCompleted   uint64  `json:"burns_completed"`
	BurnsRunning     int64   `json:"burns_running"`
	TotalBurnSeconds float64 `json:"total_burn_seconds"`

	// Demo endpoint metrics
	TotalDelaySeconds    float64 `json:"total_delay_seconds"`
	SimulatedErrors      uint64  `json:"simulated_errors"`
	ErrorEndpointSuccess uint64  `json:"error_endpoint_successes"`
	RateLimitedRequests  uint64  `json:"rate_limited_requests"`

	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`
}

// RouteMetrics holds metrics for a single route
type RouteMetrics struct {
	Route               string  `json:"route"`
	TotalRequests       uint64  `json:"total_requests"`
	FailedRequests      uint64  `json:"failed_requests"`
	TotalResponseTime   uint64  `json:"total_response_time_ms"`
	AverageResponseTime float64 `json:"average_response_time_ms"`
}

// Summary is the error-rate and accumulated-delay view served on /metrics
type Summary struct {
	ErrorRate  float64 `json:"error_rate"`
	TotalDelay float64 `json:"total_delay"`
}

// Collector accumulates metrics and mirrors them into a Prometheus registry
type Collector struct {
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
	totalResponseMs    atomic.Uint64
	burnsStarted       atomic.Uint64
	burnsCompleted     atomic.Uint64
	burnsRunning       atomic.Int64
	simulatedErrors    atomic.Uint64
	errorSuccesses     atomic.Uint64
	rateLimited        atomic.Uint64

	mu              sync.RWMutex
	routes          map[string]*RouteMetrics
	burnSeconds     float64
	slowDelaySecond float64
	startTime       time.Time

	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	burnsInFlight   prometheus.Gauge
	burnSecondsCtr  prometheus.Counter
	slowDelayCtr    prometheus.Counter
	simulatedErrCtr prometheus.Counter
	errSuccessCtr   prometheus.Counter
	rateLimitedCtr  prometheus.Counter
}

// NewCollector creates a collector with its own Prometheus registry
func NewCollector() *Collector {
	c := &Collector{
		routes:    make(map[string]*RouteMetrics),
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "furnace_http_requests_total",
				Help: "Total number of HTTP requests served.",
			},
			[]string{"route", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "furnace_http_request_duration_seconds",
				Help:    "Histogram of request latencies.",
				Buckets: []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"route"},
		),
		burnsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "furnace_cpu_burns_in_flight",
			Help: "Number of CPU burns currently pinning a goroutine.",
		}),
		burnSecondsCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "furnace_cpu_burn_seconds_total",
			Help: "Wall time spent in completed CPU burns.",
		}),
		slowDelayCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "total_delay_slow_endpoint",
			Help: "Total time spent waiting for slow endpoint to answer (seconds).",
		}),
		simulatedErrCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulated_errors_total",
			Help: "Total count of simulated errors.",
		}),
		errSuccessCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "error_endpoint_success_total",
			Help: "Total count of successful requests on the error endpoint.",
		}),
		rateLimitedCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "furnace_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}

	c.registry.MustRegister(
		c.requests,
		c.latency,
		c.burnsInFlight,
		c.burnSecondsCtr,
		c.slowDelayCtr,
		c.simulatedErrCtr,
		c.errSuccessCtr,
		c.rateLimitedCtr,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordRequest records a served request on a route
func (c *Collector) RecordRequest(route string, status int, elapsed time.Duration) {
	ms := uint64(elapsed.Milliseconds())
	failed := status >= http.StatusInternalServerError

	c.totalRequests.Add(1)
	c.totalResponseMs.Add(ms)
	if failed {
		c.failedRequests.Add(1)
	} else {
		c.successfulRequests.Add(1)
	}

	c.mu.Lock()
	rm, ok := c.routes[route]
	if !ok {
		rm = &RouteMetrics{Route: route}
		c.routes[route] = rm
	}
	rm.TotalRequests++
	rm.TotalResponseTime += ms
	if failed {
		rm.FailedRequests++
	}
	rm.AverageResponseTime = float64(rm.TotalResponseTime) / float64(rm.TotalRequests)
	c.mu.Unlock()

	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// BurnStarted records the start of a CPU burn
func (c *Collector) BurnStarted() {
	c.burnsStarted.Add(1)
	c.burnsRunning.Add(1)
	c.burnsInFlight.Inc()
}

// BurnFinished records the end of a CPU burn that ran for elapsed
func (c *Collector) BurnFinished(elapsed time.Duration) {
	c.burnsCompleted.Add(1)
	c.burnsRunning.Add(-1)
	c.burnsInFlight.Dec()

	secs := math.Max(elapsed.Seconds(), 0)
	c.mu.Lock()
	c.burnSeconds += secs
	c.mu.Unlock()
	c.burnSecondsCtr.Add(secs)
}

// AddSlowDelay accumulates the delay served by the slow endpoint
func (c *Collector) AddSlowDelay(seconds float64) {
	c.mu.Lock()
	c.slowDelaySecond += seconds
	c.mu.Unlock()
	c.slowDelayCtr.Add(seconds)
}

// RecordSimulatedError counts an injected failure
func (c *Collector) RecordSimulatedError() {
	c.simulatedErrors.Add(1)
	c.simulatedErrCtr.Inc()
}

// RecordErrorEndpointSuccess counts a non-failing call to the error endpoint
func (c *Collector) RecordErrorEndpointSuccess() {
	c.errorSuccesses.Add(1)
	c.errSuccessCtr.Inc()
}

// RecordRateLimitedRequest records a rate-limited request
func (c *Collector) RecordRateLimitedRequest() {
	c.rateLimited.Add(1)
	c.rateLimitedCtr.Inc()
}

// Summary returns the simulated error rate (errors per success, as a
// percentage) and the accumulated slow endpoint delay.
func (c *Collector) Summary() Summary {
	errs := float64(c.simulatedErrors.Load())
	oks := float64(c.errorSuccesses.Load())

	c.mu.RLock()
	delay := c.slowDelaySecond
	c.mu.RUnlock()

	s := Summary{TotalDelay: delay}
	if oks > 0 {
		s.ErrorRate = errs / oks * 100
	}
	return s
}

// GetMetrics returns a copy of current metrics
func (c *Collector) GetMetrics() *Metrics {
	total := c.totalRequests.Load()
	totalMs := c.totalResponseMs.Load()

	m := &Metrics{
		TotalRequests:        total,
		SuccessfulRequests:   c.successfulRequests.Load(),
		FailedRequests:       c.failedRequests.Load(),
		TotalResponseTime:    totalMs,
		BurnsStarted:         c.burnsStarted.Load(),
		BurnsCompleted:       c.burnsCompleted.Load(),
		BurnsRunning:         c.burnsRunning.Load(),
		SimulatedErrors:      c.simulatedErrors.Load(),
		ErrorEndpointSuccess: c.errorSuccesses.Load(),
		RateLimitedRequests:  c.rateLimited.Load(),
		StartTime:            c.startTime,
		Uptime:               time.Since(c.startTime).Round(time.Millisecond).String(),
		Routes:               make(map[string]*RouteMetrics),
	}
	if total > 0 {
		m.AverageResponseTime = float64(totalMs) / float64(total)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	m.TotalBurnSeconds = c.burnSeconds
	m.TotalDelaySeconds = c.slowDelaySecond
	for name, rm := range c.routes {
		cp := *rm
		m.Routes[name] = &cp
	}
	return m
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// MetricsHandler returns an HTTP handler serving the full metrics snapshot
func (c *Collector) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.GetMetrics())
	}
}

// SummaryHandler returns an HTTP handler serving the error-rate summary
func (c *Collector) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.Summary())
	}
}

// HealthHandler returns an HTTP handler for the health endpoint
func (c *Collector) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := c.GetMetrics()
		writeJSON(w, map[string]interface{}{
			"status":         "healthy",
			"uptime":         m.Uptime,
			"total_requests": m.TotalRequests,
			"burns_running":  m.BurnsRunning,
		})
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format
func (c *Collector) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// GinMiddleware records request metrics keyed by the matched route pattern.
// Unmatched requests are grouped under "unmatched".
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.RecordRequest(route, ctx.Writer.Status(), time.Since(start))
	}
}
