package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "raffle"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	salesCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "sales_committed_total",
			Help:      "Tickets moved from available to sold.",
		},
		[]string{"denomination", "reason"},
	)

	commitConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "commit_conflicts_total",
			Help:      "Commits rejected because the ticket was no longer available.",
		},
		[]string{"denomination"},
	)

	commitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "commit_duration_seconds",
			Help:      "Duration of ticket commits.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"denomination"},
	)

	bonusAwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bonus",
			Name:      "awards_total",
			Help:      "Bonus ticket outcomes by reason.",
		},
		[]string{"reason", "outcome"},
	)

	draws = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draw",
			Name:      "runs_total",
			Help:      "Draw attempts by outcome.",
		},
		[]string{"denomination", "outcome"},
	)

	rollovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draw",
			Name:      "rollovers_total",
			Help:      "Completed pool rollovers.",
		},
		[]string{"denomination"},
	)

	pendingPayments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "pending",
			Help:      "Payments waiting for admin verification at the last listing.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		salesCommitted,
		commitConflicts,
		commitDuration,
		bonusAwards,
		draws,
		rollovers,
		pendingPayments,
		httpRequests,
		httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func label(den int) string {
	return strconv.Itoa(den)
}

// RecordSale counts a committed sale; reason is empty for paid tickets.
func RecordSale(den int, reason string, took time.Duration) {
	if reason == "" {
		reason = "paid"
	}
	salesCommitted.WithLabelValues(label(den), reason).Inc()
	commitDuration.WithLabelValues(label(den)).Observe(took.Seconds())
}

func RecordConflict(den int) {
	commitConflicts.WithLabelValues(label(den)).Inc()
}

// RecordBonus counts a bonus outcome such as awarded, shortfall or failed.
func RecordBonus(reason, outcome string) {
	bonusAwards.WithLabelValues(reason, outcome).Inc()
}

// RecordDraw counts a draw attempt such as completed, insufficient or failed.
func RecordDraw(den int, outcome string) {
	draws.WithLabelValues(label(den), outcome).Inc()
}

func RecordRollover(den int) {
	rollovers.WithLabelValues(label(den)).Inc()
}

func SetPendingPayments(n int) {
	pendingPayments.Set(float64(n))
}
