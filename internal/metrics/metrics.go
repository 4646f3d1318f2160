// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_attempts_started_total",
		Help: "Attempts started",
	})

	AttemptsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quiz_attempts_active",
		Help: "Attempts currently in progress with a running timer",
	})

	AttemptsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_submitted_total",
			Help: "Attempts submitted, by reason (MANUAL, EXPIRED, SNAPSHOT)",
		},
		[]string{"reason"},
	)

	AttemptsAbandoned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_attempts_abandoned_total",
		Help: "Attempts abandoned before submission",
	})

	ScorePercentage = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quiz_score_percentage",
		Help:    "Distribution of result percentages",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	ResultSaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_result_save_failures_total",
		Help: "Results that could not be handed to persistence",
	})

	ResultsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_results_persisted_total",
			Help: "Results written to PostgreSQL by the worker, by path (batch, single, requeued)",
		},
		[]string{"path"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptsStarted,
			AttemptsActive,
			AttemptsSubmitted,
			AttemptsAbandoned,
			ScorePercentage,
			ResultSaveFailures,
			ResultsPersisted,
		)
	})
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
