package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authentication listener metrics.
var (
	connsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "identity_connections_in_flight",
		Help: "Connections currently being handled by a worker.",
	})

	connsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_connections_total",
			Help: "Handled connections by result.",
		},
		[]string{"result"},
	)

	authTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_auth_requests_total",
			Help: "Authentication decisions by outcome.",
		},
		[]string{"outcome"},
	)

	connDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "identity_connection_duration_seconds",
		Help:    "Time from accept to connection close.",
		Buckets: prometheus.DefBuckets,
	})

	directorySize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "identity_directory_entities",
			Help: "Entities held by the directory per collection.",
		},
		[]string{"kind"},
	)
)

// EventSource is the live decision feed as seen by metrics.
type EventSource interface {
	Subscribers() int
	Dropped() uint64
}

var (
	eventsMu  sync.RWMutex
	eventsSrc EventSource

	eventSubscribers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "identity_event_subscribers",
		Help: "Clients attached to the admin decision feed.",
	}, func() float64 {
		if src := observedEvents(); src != nil {
			return float64(src.Subscribers())
		}
		return 0
	})

	eventsDropped = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "identity_events_dropped_total",
		Help: "Decisions not delivered to a subscriber whose buffer was full.",
	}, func() float64 {
		if src := observedEvents(); src != nil {
			return float64(src.Dropped())
		}
		return 0
	})
)

// Admin HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			connsInFlight, connsTotal, authTotal, connDuration, directorySize,
			eventSubscribers, eventsDropped,
			httpInFlight, httpRequestsTotal, httpRequestDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ConnStarted marks a connection as in flight and returns a func recording its result.
func ConnStarted() func(result string) {
	connsInFlight.Inc()
	start := time.Now()
	return func(result string) {
		connsInFlight.Dec()
		connDuration.Observe(time.Since(start).Seconds())
		connsTotal.WithLabelValues(result).Inc()
	}
}

// AuthDecision counts one authentication outcome ("okay" or "not okay").
func AuthDecision(outcome string) {
	authTotal.WithLabelValues(outcome).Inc()
}

// SetDirectorySize publishes the size of one directory collection.
func SetDirectorySize(kind string, n int) {
	directorySize.WithLabelValues(kind).Set(float64(n))
}

// ObserveEvents points the event feed metrics at src. A nil src reports zero.
func ObserveEvents(src EventSource) {
	eventsMu.Lock()
	eventsSrc = src
	eventsMu.Unlock()
}

func observedEvents() EventSource {
	eventsMu.RLock()
	defer eventsMu.RUnlock()
	return eventsSrc
}

// RouteFunc resolves the route pattern of a served request, for bounded label cardinality.
type RouteFunc func(r *http.Request) string

// Instrument wraps next with request count, latency and in-flight metrics.
func Instrument(next http.Handler, route RouteFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if route != nil {
			if p := route(r); p != "" {
				path = p
			}
		}
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
