package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomcast_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomcast_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_events_published_total",
			Help: "Room broadcasts issued, by event.",
		},
		[]string{"event"},
	)
	deliveryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_delivery_failures_total",
			Help: "Per-connection deliveries dropped during fan-out.",
		},
		[]string{"event", "reason"},
	)
	commitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomcast_commit_duration_seconds",
			Help:    "Durable commit latency by action kind and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "outcome"},
	)
	compensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_compensations_total",
			Help: "Correction broadcasts sent after a failed commit.",
		},
		[]string{"kind"},
	)
	tasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomcast_commit_tasks_in_flight",
			Help: "Background commits currently running.",
		},
	)
	auditPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_audit_publish_errors_total",
			Help: "Total number of outcome publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		eventsPublishedTotal,
		deliveryFailuresTotal,
		commitDuration,
		compensationsTotal,
		tasksInFlight,
		auditPublishErrorsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncEventPublished(event string) {
	eventsPublishedTotal.WithLabelValues(event).Inc()
}

func IncDeliveryFailure(event, reason string) {
	deliveryFailuresTotal.WithLabelValues(event, reason).Inc()
}

func ObserveCommit(kind, outcome string, d time.Duration) {
	commitDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

func IncCompensation(kind string) {
	compensationsTotal.WithLabelValues(kind).Inc()
}

func IncTasksInFlight() {
	tasksInFlight.Inc()
}

func DecTasksInFlight() {
	tasksInFlight.Dec()
}

func IncAuditPublishError() {
	auditPublishErrorsTotal.Inc()
}
