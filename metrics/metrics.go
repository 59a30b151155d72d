// Package metrics exposes relay counters in Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
)

var validNamespace = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// namespace prefixes every metric name. Set by New.
var namespace = "lay"

// MetricsServer serves /metrics on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New configures the metric namespace and builds a server listening on addr.
// The server is only started by ListenAndServe, so an empty addr is allowed.
func New(ns, addr string) (*MetricsServer, error) {
	if !validNamespace.MatchString(ns) {
		return nil, fmt.Errorf("invalid metrics namespace %q", ns)
	}
	namespace = ns

	mux := chi.NewRouter()
	mux.Get("/metrics", Handler)

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// Handler writes all registered metrics plus process metrics.
func Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

// IncRequest counts a relay operation attempt.
func IncRequest(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s_relay_requests_total{op=%q}`, namespace, op)).Inc()
}

// IncRejected counts a relay operation that failed with the given error kind.
func IncRejected(op, kind string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s_relay_rejected_total{op=%q,kind=%q}`, namespace, op, kind)).Inc()
}

// ObserveStore records the latency of a store call.
func ObserveStore(op string, start time.Time) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`%s_store_duration_seconds{op=%q}`, namespace, op)).UpdateDuration(start)
}

// SetPostsServed records the size of the latest post query result.
func SetPostsServed(n int) {
	metrics.GetOrCreateGauge(fmt.Sprintf(`%s_relay_last_query_posts`, namespace), nil).Set(float64(n))
}
