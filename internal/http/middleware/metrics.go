package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "support_chat"
	// unmatchedRoute labels requests no route matched, keeping raw paths out
	// of label values.
	unmatchedRoute = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration, including the whole stream for chat replies.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 90},
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_inflight",
		Help:      "Requests currently being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_response_size_bytes",
		Help:      "Response body size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"method", "path"})

	activeStreams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "chat_streams_active",
		Help:      "Chat replies currently streaming, by transport.",
	}, []string{"transport"})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429.",
	})

	idempotentReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "idempotent_replays_total",
		Help:      "Chat turns answered from a stored reply.",
	})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize,
		activeStreams, rateLimited, idempotentReplays)
}

// Metrics records request count, latency, size and concurrency. Routes are
// labelled by their pattern (c.FullPath()).
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// TrackStream counts one active chat stream on transport ("http" or "ws")
// until the returned func is called.
func TrackStream(transport string) func() {
	g := activeStreams.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}
