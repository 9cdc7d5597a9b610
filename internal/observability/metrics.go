// Package observability holds the run's Prometheus metrics and OpenTelemetry
// tracing setup.
package observability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/gnss-arcs/internal/logging"
)

// Arc kinds counted by gnss_arcs_total.
const (
	ArcObserved  = "observed"
	ArcPredicted = "predicted"
	ArcMatched   = "matched"
)

// PipelineCollector bundles the Prometheus metrics of one reconciliation run.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	RowsRead      prometheus.Counter
	RowsSkipped   *prometheus.CounterVec
	Arcs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Completeness  *prometheus.GaugeVec
	Warnings      prometheus.Counter
}

// NewPipelineCollector registers the run metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	rowsRead, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gnss_rows_read_total",
		Help: "Observation rows accepted from the input table.",
	}), "gnss_rows_read_total")
	if err != nil {
		return nil, err
	}
	skipped, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnss_rows_skipped_total",
		Help: "Observation rows skipped, labeled by reason.",
	}, []string{"reason"}), "gnss_rows_skipped_total")
	if err != nil {
		return nil, err
	}
	arcs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnss_arcs_total",
		Help: "Arcs produced, labeled by kind (observed, predicted, matched).",
	}, []string{"kind"}), "gnss_arcs_total")
	if err != nil {
		return nil, err
	}
	stages, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gnss_stage_duration_seconds",
		Help:    "Wall time of each pipeline stage in seconds.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"}), "gnss_stage_duration_seconds")
	if err != nil {
		return nil, err
	}
	completeness, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gnss_prn_completeness",
		Help: "Observed over predicted epochs per satellite.",
	}, []string{"prn"}), "gnss_prn_completeness")
	if err != nil {
		return nil, err
	}
	warnings, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gnss_warnings_total",
		Help: "Data-consistency warnings logged during the run.",
	}), "gnss_warnings_total")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:      gatherer,
		RowsRead:      rowsRead,
		RowsSkipped:   skipped,
		Arcs:          arcs,
		StageDuration: stages,
		Completeness:  completeness,
		Warnings:      warnings,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PipelineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// AddRows counts accepted rows.
func (c *PipelineCollector) AddRows(n int) {
	if c == nil {
		return
	}
	c.RowsRead.Add(float64(n))
}

// AddSkipped counts skipped rows for one reason.
func (c *PipelineCollector) AddSkipped(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.RowsSkipped.WithLabelValues(reason).Add(float64(n))
}

// AddArcs counts arcs of one kind.
func (c *PipelineCollector) AddArcs(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Arcs.WithLabelValues(kind).Add(float64(n))
}

// ObserveStage records a stage duration.
func (c *PipelineCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetCompleteness sets the completeness gauge of a satellite. Undefined
// ratios are not exported.
func (c *PipelineCollector) SetCompleteness(prn string, v float64) {
	if c == nil || math.IsNaN(v) {
		return
	}
	c.Completeness.WithLabelValues(prn).Set(v)
}

// AddWarnings counts data-consistency warnings.
func (c *PipelineCollector) AddWarnings(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.Warnings.Add(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics in the node-exporter textfile
// format. The file is replaced atomically.
func (c *PipelineCollector) WriteTextfile(path string) error {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Serve exposes /metrics on addr until ctx is cancelled. It returns once
// the listener is bound.
func (c *PipelineCollector) Serve(ctx context.Context, addr string, log logging.Logger) (net.Addr, error) {
	if log == nil {
		log = logging.Noop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server stopped", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving metrics", logging.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// register adds c to reg, reusing an already registered collector of the
// same type.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return c, nil
}
