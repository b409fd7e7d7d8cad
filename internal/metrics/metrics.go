package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	attemptsStarted   *prometheus.CounterVec
	attemptsFinalized *prometheus.CounterVec
	responses         *prometheus.CounterVec
	manualGrades      prometheus.Counter
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attemptsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Attempts created, by quiz",
		}, []string{"quiz_id"}),
		attemptsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_attempts_finalized_total",
			Help: "Attempts moved to a terminal state",
		}, []string{"state", "trigger"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_responses_recorded_total",
			Help: "Responses written, by question kind and verdict",
		}, []string{"kind", "verdict"}),
		manualGrades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_manual_grades_total",
			Help: "Essay responses graded by an instructor",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.attemptsStarted,
		m.attemptsFinalized,
		m.responses,
		m.manualGrades,
		m.requests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) AttemptStarted(quizID string) {
	if m == nil {
		return
	}
	m.attemptsStarted.WithLabelValues(quizID).Inc()
}

func (m *Metrics) AttemptFinalized(state, trigger string) {
	if m == nil {
		return
	}
	m.attemptsFinalized.WithLabelValues(state, trigger).Inc()
}

// ResponseRecorded counts a write; verdict is correct, incorrect or pending.
func (m *Metrics) ResponseRecorded(kind, verdict string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(kind, verdict).Inc()
}

func (m *Metrics) ManualGraded() {
	if m == nil {
		return
	}
	m.manualGrades.Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
