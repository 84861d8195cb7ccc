package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoforge_jobs_submitted_total",
			Help: "Total number of background jobs accepted",
		},
		[]string{"kind"},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoforge_jobs_finished_total",
			Help: "Total number of background jobs reaching a terminal state",
		},
		[]string{"kind", "state"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seoforge_job_duration_seconds",
			Help:    "Wall time of background jobs from start to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	StageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoforge_stage_fallbacks_total",
			Help: "Pipeline stages that degraded to their offline fallback",
		},
		[]string{"pipeline", "stage"},
	)

	ProbeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoforge_autocomplete_requests_total",
			Help: "Autocomplete source requests by outcome",
		},
		[]string{"source", "outcome"},
	)

	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoforge_collaborator_calls_total",
			Help: "Calls to external collaborators (llm, pagespeed, serp) by outcome",
		},
		[]string{"collaborator", "outcome"},
	)

	PageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seoforge_page_fetches_total",
			Help: "Competitor page fetches by status and challenge detection",
		},
		[]string{"status", "challenged"},
	)
)

// Outcome labels an error as "ok" or "error".
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordJob updates the terminal-state counters for a finished job.
func RecordJob(kind, state string, elapsed time.Duration) {
	JobsFinished.WithLabelValues(kind, state).Inc()
	JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordFetch counts a page fetch. A zero status means the request failed
// before a response arrived.
func RecordFetch(status int, challenged bool) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	PageFetches.WithLabelValues(statusStr, strconv.FormatBool(challenged)).Inc()
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
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
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
