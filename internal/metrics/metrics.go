package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page kinds used as the "kind" label.
const (
	KindFirst = "first"
	KindNext  = "next"
)

var (
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bingscrape_page_fetches_total",
			Help: "Total number of result pages requested",
		},
		[]string{"kind", "status"},
	)

	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bingscrape_page_fetch_duration_seconds",
			Help:    "Duration of result page requests in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	PageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bingscrape_page_bytes_total",
			Help: "Total bytes downloaded across all result pages",
		},
		[]string{"kind"},
	)

	ChallengesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bingscrape_challenges_total",
			Help: "Pages recognized as bot challenges instead of results",
		},
		[]string{"source"},
	)

	ResultsExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bingscrape_results_extracted_total",
			Help: "Total number of search results extracted",
		},
	)

	ItemsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bingscrape_items_skipped_total",
			Help: "Listing items skipped because a required field was missing",
		},
	)

	MalformedPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bingscrape_malformed_pages_total",
			Help: "Pages without a results listing container",
		},
	)
)

// RecordFetch updates fetch metrics for one page request. A non-nil err
// records the status as "error".
func RecordFetch(kind string, statusCode int, size int, d time.Duration, err error) {
	status := strconv.Itoa(statusCode)
	if err != nil {
		status = "error"
	}
	PageFetchesTotal.WithLabelValues(kind, status).Inc()
	PageFetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	PageBytesTotal.WithLabelValues(kind).Add(float64(size))
}

// RecordExtraction updates extraction metrics for one parsed page.
func RecordExtraction(extracted, skipped int) {
	ResultsExtractedTotal.Add(float64(extracted))
	ItemsSkippedTotal.Add(float64(skipped))
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer builds a metrics server for addr (host:port).
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}
