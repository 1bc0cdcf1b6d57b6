// Package metrics exposes Prometheus instrumentation for the fleet
// provisioning service on a dedicated listen address, separate from the
// API server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ControlPlaneRequests counts control-plane API calls by operation and result.
	ControlPlaneRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_requests_total",
		Help: "Control-plane API requests by operation and result.",
	}, []string{"operation", "result"})

	// ControlPlaneRetries counts rate-limit retries against the control plane.
	ControlPlaneRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_rate_limit_retries_total",
		Help: "Requests retried after an HTTP 429 from the control plane.",
	})

	// ProvisioningRuns counts provisioning workflows by outcome.
	ProvisioningRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_runs_total",
		Help: "Provisioning workflow runs by outcome.",
	}, []string{"outcome"})

	// StatusCacheHits counts status snapshots served from cache.
	StatusCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "status_cache_hits_total",
		Help: "Status requests answered from the snapshot cache.",
	})

	// StatusCacheMisses counts status resolutions that queried the control plane.
	StatusCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "status_cache_misses_total",
		Help: "Status requests that required a fresh control-plane query.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given service name and listen address.
func New(name, listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
