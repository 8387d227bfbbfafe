// Package metrics provides Prometheus instrumentation for the Lojix platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lojix",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lojix",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ChargesGeneratedTotal counts monthly charges created by the generation job.
	ChargesGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lojix",
		Name:      "charges_generated_total",
		Help:      "Total monthly charges created.",
	})

	// ChargeTransitionsTotal counts charge status transitions by target status.
	ChargeTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lojix",
			Name:      "charge_transitions_total",
			Help:      "Charge status transitions by resulting status.",
		},
		[]string{"status"},
	)

	// TenantSuspensionsTotal counts tenants suspended by the overdue escalation.
	TenantSuspensionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lojix",
		Name:      "tenant_suspensions_total",
		Help:      "Tenants suspended for non-payment.",
	})

	// TenantReactivationsTotal counts tenants reactivated by payment.
	TenantReactivationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lojix",
		Name:      "tenant_reactivations_total",
		Help:      "Tenants reactivated after payment.",
	})

	// WebhooksProcessedTotal counts inbound gateway webhooks by outcome.
	WebhooksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lojix",
			Name:      "webhooks_processed_total",
			Help:      "Inbound payment webhooks by outcome.",
		},
		[]string{"outcome"},
	)

	// AccessDecisionsTotal counts access-gate resolutions by result.
	AccessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lojix",
			Name:      "access_decisions_total",
			Help:      "Access gate decisions by result code.",
		},
		[]string{"result"},
	)

	// LoginLockoutsTotal counts login lockouts triggered by repeated failures.
	LoginLockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lojix",
		Name:      "login_lockouts_total",
		Help:      "Login lockouts triggered.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lojix", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lojix", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lojix", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lojix", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChargesGeneratedTotal,
		ChargeTransitionsTotal,
		TenantSuspensionsTotal,
		TenantReactivationsTotal,
		WebhooksProcessedTotal,
		AccessDecisionsTotal,
		LoginLockoutsTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
