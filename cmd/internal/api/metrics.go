package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	logins          *prometheus.CounterVec
	deviceActions   *prometheus.CounterVec
	viewSessions    *prometheus.CounterVec
	contentRequests *prometheus.CounterVec
	sweeperDeleted  prometheus.Counter
	feedDropped     prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

// NewMetrics registers pdfgate collectors on a fresh registry together with
// the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfgate",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		deviceActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfgate",
			Name:      "device_actions_total",
			Help:      "Admin device actions by action and result.",
		}, []string{"action", "result"}),
		viewSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfgate",
			Name:      "view_sessions_total",
			Help:      "View sessions handed out, split by issued or reused.",
		}, []string{"result"}),
		contentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfgate",
			Name:      "content_requests_total",
			Help:      "Access gateway requests by result.",
		}, []string{"result"}),
		sweeperDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfgate",
			Name:      "view_sessions_swept_total",
			Help:      "Expired view sessions deleted by the sweeper.",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfgate",
			Name:      "device_feed_dropped_total",
			Help:      "Device events dropped because a subscriber queue was full.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_class"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.deviceActions,
		m.viewSessions,
		m.contentRequests,
		m.sweeperDeleted,
		m.feedDropped,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.logins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) deviceAction(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if mp, ok := classify(err); ok {
			result = mp.code
		}
	}
	m.deviceActions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) viewSession(reused bool) {
	if m == nil {
		return
	}
	if reused {
		m.viewSessions.WithLabelValues("reused").Inc()
		return
	}
	m.viewSessions.WithLabelValues("issued").Inc()
}

func (m *Metrics) content(result string) {
	if m != nil {
		m.contentRequests.WithLabelValues(result).Inc()
	}
}

// SweptViewSessions is passed to the view session sweeper as its observer.
func (m *Metrics) SweptViewSessions(n int) {
	if m != nil && n > 0 {
		m.sweeperDeleted.Add(float64(n))
	}
}

// FeedDropped is passed to the realtime hub as its drop callback.
func (m *Metrics) FeedDropped() {
	if m != nil {
		m.feedDropped.Inc()
	}
}

// Instrument records request latency keyed by the matched chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status/100)+"xx").
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}
