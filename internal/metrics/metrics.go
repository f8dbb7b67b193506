package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for a scan. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RecordsTotal      prometheus.Counter
	RecordsReported   prometheus.Counter
	RecordsSuppressed prometheus.Counter
	RecordsDuplicate  prometheus.Counter
	BytesSkipped      prometheus.Counter
	Scores            prometheus.Histogram

	registry *prometheus.Registry
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "utmpscan_records_total",
			Help: "Total number of records accepted by the scanner",
		}),
		RecordsReported: factory.NewCounter(prometheus.CounterOpts{
			Name: "utmpscan_records_reported_total",
			Help: "Total number of records forwarded to destinations",
		}),
		RecordsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "utmpscan_records_suppressed_total",
			Help: "Total number of records dropped for exceeding the maximum score",
		}),
		RecordsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "utmpscan_records_duplicate_total",
			Help: "Total number of records dropped as recently seen duplicates",
		}),
		BytesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "utmpscan_bytes_skipped_total",
			Help: "Total number of bytes discarded while resynchronising",
		}),
		Scores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "utmpscan_record_score",
			Help:    "Suspicion scores of accepted records",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
		}),
		registry: reg,
	}
}

// ObserveRecord counts an accepted record and its score.
func (m *Metrics) ObserveRecord(score int) {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
	m.Scores.Observe(float64(score))
}

// IncrementReported counts a record handed to a destination.
func (m *Metrics) IncrementReported() {
	if m == nil {
		return
	}
	m.RecordsReported.Inc()
}

// IncrementSuppressed counts a record above the score cutoff.
func (m *Metrics) IncrementSuppressed() {
	if m == nil {
		return
	}
	m.RecordsSuppressed.Inc()
}

// IncrementDuplicate counts a record suppressed as already seen.
func (m *Metrics) IncrementDuplicate() {
	if m == nil {
		return
	}
	m.RecordsDuplicate.Inc()
}

// AddSkipped counts bytes the scanner stepped over.
func (m *Metrics) AddSkipped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesSkipped.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler at /metrics on ln until ctx is done.
func (m *Metrics) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("serving metrics on %s", ln.Addr()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: %w", err)
		}
		return ctx.Err()
	}
}

// ListenAndServe is Serve on a TCP listener bound to addr.
func (m *Metrics) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return m.Serve(ctx, ln)
}
