package observability

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/observability/metrics"
)

// ErrTelemetryDisabled is returned by NewEndpoint when telemetry is off.
var ErrTelemetryDisabled = errors.New(errors.NewStd("telemetry not enabled in settings")).
	Component("observability").
	Category(errors.CategoryConfiguration).
	Build()

// Endpoint serves the metrics over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics

	mu   sync.Mutex
	addr net.Addr
}

// NewEndpoint creates an endpoint for metrics. It fails when telemetry is
// not enabled in settings.
func NewEndpoint(settings *conf.Settings, m *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, ErrTelemetryDisabled
	}

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       m,
	}, nil
}

// Start listens on the configured address and serves until quitChan is
// closed, then shuts the server down gracefully. wg tracks both the server
// and the shutdown goroutine.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryResource).
			Context("address", e.listenAddress).
			Build()
	}

	e.mu.Lock()
	e.addr = listener.Addr()
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := e.server
	e.mu.Unlock()

	log := logger()
	wg.Go(func() {
		log.Info("telemetry endpoint starting", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("telemetry HTTP server error", "error", err)
		}
	})

	wg.Go(func() {
		e.gracefulShutdown(server, quitChan)
	})
	return nil
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(server *http.Server, quitChan <-chan struct{}) {
	<-quitChan
	log := logger()
	log.Info("stopping telemetry server")
	ctx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("telemetry server shutdown error", "error", err)
	}
}

// Addr returns the address the endpoint listens on, nil before Start.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// Metrics returns the Metrics instance served by this Endpoint.
func (e *Endpoint) Metrics() *Metrics {
	return e.metrics
}
