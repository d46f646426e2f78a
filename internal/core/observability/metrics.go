package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the service's own collectors. internal/metrics merges it
// with the process collectors for scraping.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"method", "route", "status"},
	)

	editorEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_events_total",
			Help: "Editor events applied, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	editorAdvisories = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editor_advisories_total",
			Help: "User-facing advisories raised by the editor.",
		},
		[]string{"code"},
	)

	overlayOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_ops_total",
			Help: "Persistent overlay operations performed on map surfaces.",
		},
		[]string{"op"},
	)

	submissions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submission attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Live editing sessions held in memory.",
		},
	)

	kafkaMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_total",
			Help: "Kafka messages handled, by direction and result.",
		},
		[]string{"direction", "result"},
	)

	kafkaProcessingSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kafka_response_processing_seconds",
			Help:    "Time to apply one response message.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	redisPublish = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlay_publish_total",
			Help: "Overlay render commands published to Redis, by result.",
		},
		[]string{"result"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveEditorEvent records one engine operation. err==nil counts as "ok".
func ObserveEditorEvent(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "refused"
	}
	editorEvents.WithLabelValues(op, outcome).Inc()
}

func IncAdvisory(code string) {
	editorAdvisories.WithLabelValues(code).Inc()
}

func ObserveOverlayOp(op string) {
	overlayOps.WithLabelValues(op).Inc()
}

func ObserveSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

func IncKafka(direction, result string) {
	kafkaMessages.WithLabelValues(direction, result).Inc()
}

func ObserveResponseProcessing(d time.Duration) {
	kafkaProcessingSeconds.Observe(d.Seconds())
}

func IncRedisPublish(result string) {
	redisPublish.WithLabelValues(result).Inc()
}
