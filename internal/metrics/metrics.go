// Package metrics exposes Prometheus instrumentation for the API.
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
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docshub_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docshub_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"method", "route"})

	projectReplaces = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docshub_project_replace_total",
		Help: "Project replace calls by whether they touched the document collections and their result",
	}, []string{"kind", "result"})

	sideEffectErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docshub_side_effect_errors_total",
		Help: "Failed background side effects by kind",
	}, []string{"kind"})

	eventStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docshub_event_streams",
		Help: "Open change-notification streams",
	})
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveReplace records a project replace. collections is true when the
// replace carried documents, content or note lists.
func ObserveReplace(collections bool, err error) {
	kind := "metadata"
	if collections {
		kind = "collections"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	projectReplaces.WithLabelValues(kind, result).Inc()
}

// SideEffectFailed counts a failed search, history or notification write.
func SideEffectFailed(kind string) {
	sideEffectErrors.WithLabelValues(kind).Inc()
}

// StreamOpened tracks an event stream; call the returned func when it closes.
func StreamOpened() func() {
	eventStreams.Inc()
	return eventStreams.Dec
}

func Handler() http.Handler {
	return promhttp.Handler()
}
