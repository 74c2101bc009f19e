package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartagg_fetch_requests_total",
			Help: "Total number of source document fetches",
		},
		[]string{"host", "status", "blocker"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartagg_fetch_duration_seconds",
			Help:    "Duration of source document fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartagg_fetch_bytes_total",
			Help: "Total bytes downloaded across all source fetches",
		},
		[]string{"host"},
	)

	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartagg_enrichments_total",
			Help: "Enrichment lookups by enricher and outcome",
		},
		[]string{"enricher", "outcome"},
	)

	EnrichmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartagg_enrichment_duration_seconds",
			Help:    "Duration of enrichment lookups in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"enricher"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartagg_runs_total",
			Help: "Pipeline runs by final state",
		},
		[]string{"state", "partial"},
	)
)

// RecordFetch updates the fetch metrics for one request against host.
func RecordFetch(host string, d time.Duration, size int, err error) {
	status, blocker := "ok", ""
	var fe *chart.FetchError
	switch {
	case err == nil:
	case errors.As(err, &fe) && fe.StatusCode != 0:
		status = strconv.Itoa(fe.StatusCode)
		blocker = fe.Blocker
	default:
		status = "error"
	}

	FetchRequestsTotal.WithLabelValues(host, status, blocker).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(host).Add(float64(size))
}

// RecordEnrichment counts one enrichment lookup.
func RecordEnrichment(enricher string, outcome chart.Outcome, d time.Duration) {
	EnrichmentsTotal.WithLabelValues(enricher, string(outcome)).Inc()
	EnrichmentDuration.WithLabelValues(enricher).Observe(d.Seconds())
}

// RecordRun counts a finished pipeline run.
func RecordRun(state chart.State, partial bool) {
	RunsTotal.WithLabelValues(string(state), strconv.FormatBool(partial)).Inc()
}

// Handler exposes the registered metrics for mounting on another server.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", srv.Addr, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
