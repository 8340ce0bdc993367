// Package metrics exposes the Prometheus metrics of all packages.
// Metrics are defined next to the code that updates them (session, cache,
// chunky, joblock) and registered via promauto on the default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer all metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Mux returns a mux with /metrics and /health.
func Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Server serves Mux on an address until its context ends.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr. Use ":0" for a random port.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{Handler: Mux(), ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.Serve(s.ln)
	}()
	log.Info().Str("addr", s.Addr()).Msg("Metrics server listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	<-errc
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/session):
//   - mpapi_requests_total{operation, status} (Counter): RIA requests by operation and HTTP status
//   - mpapi_request_duration_seconds{operation} (Histogram): Request duration by operation
//   - mpapi_errors_total{class} (Counter): Transport errors by class (client, server, network)
//   - mpapi_requests_in_flight (Gauge): Requests awaiting a response
//
// Run Metrics (pkg/chunky):
//   - mpapi_runs_total{state} (Counter): Runs by terminal state (completed, failed, skipped)
//   - mpapi_run_duration_seconds (Histogram): Run duration
//   - mpapi_chunks_total{outcome} (Counter): Chunks by outcome (written, resumed, empty, failed)
//   - mpapi_related_fetches_total{module} (Counter): Related record searches by module
//   - mpapi_related_items_total{module} (Counter): Related records merged by module
//
// Cache Metrics (pkg/cache):
//   - mpapi_cache_hits_total{layer="redis"} (Counter)
//   - mpapi_cache_misses_total (Counter)
//   - mpapi_cache_size_bytes{layer="redis"} (Gauge)
//   - mpapi_cache_errors_total{operation} (Counter)
//
// Lock Metrics (pkg/joblock):
//   - mpapi_job_lock_conflicts_total (Counter): Runs refused because the job was locked
//   - mpapi_job_locks_held (Gauge)
//
// Example Prometheus Queries:
//
//	# Chunks written per minute
//	rate(mpapi_chunks_total{outcome="written"}[5m]) * 60
//
//	# Server error rate
//	rate(mpapi_errors_total{class="server"}[5m])
//
//	# P95 search latency
//	histogram_quantile(0.95, rate(mpapi_request_duration_seconds_bucket{operation="search"}[5m]))
