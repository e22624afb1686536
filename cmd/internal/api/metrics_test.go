package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetrics_ExposesCountersAndRoutes(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.login("success")
	m.viewSession(true)
	m.content("gone")
	m.SweptViewSessions(3)
	m.FeedDropped()

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/documents/{shareID}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/abc", nil))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`pdfgate_logins_total{outcome="success"} 1`,
		`pdfgate_view_sessions_total{result="reused"} 1`,
		`pdfgate_content_requests_total{result="gone"} 1`,
		`pdfgate_view_sessions_swept_total 3`,
		`pdfgate_device_feed_dropped_total 1`,
		`route="/documents/{shareID}"`,
		`status_class="4xx"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.login("success")
	m.SweptViewSessions(1)
	m.FeedDropped()
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	if got := m.Instrument(next); got == nil {
		t.Fatalf("nil metrics must pass the handler through")
	}
}
