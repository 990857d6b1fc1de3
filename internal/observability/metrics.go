// Package observability provides the Prometheus metrics of the acquisition core.
package observability

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
	"github.com/tphakala/lightsheet-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors of the application.
type Metrics struct {
	registry *prometheus.Registry
	Recycler *metrics.RecyclerMetrics
	Pipeline *metrics.PipelineMetrics
	Playback *metrics.PlaybackMetrics
	System   *metrics.SystemMetrics
}

// NewMetrics creates a private registry and registers every collector on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	recyclerMetrics, err := metrics.NewRecyclerMetrics(registry)
	if err != nil {
		return nil, registrationError(err, "recycler")
	}

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, registrationError(err, "pipeline")
	}

	playbackMetrics, err := metrics.NewPlaybackMetrics(registry)
	if err != nil {
		return nil, registrationError(err, "playback")
	}

	systemMetrics, err := metrics.NewSystemMetrics(registry)
	if err != nil {
		return nil, registrationError(err, "system")
	}

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, registrationError(err, "go")
	}

	return &Metrics{
		registry: registry,
		Recycler: recyclerMetrics,
		Pipeline: pipelineMetrics,
		Playback: playbackMetrics,
		System:   systemMetrics,
	}, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logger().Handler(), slog.LevelError),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}

func registrationError(err error, collector string) error {
	return errors.New(err).
		Component("observability").
		Category(errors.CategoryConfiguration).
		Context("collector", collector).
		Build()
}

func logger() *slog.Logger {
	l := logging.ForService("observability")
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "observability")
}
