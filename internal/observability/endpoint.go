package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/conf"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	metricspkg "github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability/metrics"
)

// Endpoint serves the Prometheus /metrics page while a run is in progress.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics

	mu   sync.Mutex
	addr net.Addr
}

// NewEndpoint creates an endpoint for metrics. It returns an error when the
// endpoint is disabled in settings.
func NewEndpoint(settings conf.MetricsSettings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, fmt.Errorf("metrics endpoint not enabled in settings")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics endpoint requires metrics")
	}

	return &Endpoint{
		listenAddress: settings.Listen,
		metrics:       metrics,
	}, nil
}

// Start binds the listen address and serves until quitChan is closed. The
// serving goroutine is tracked by wg.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.listenAddress, err)
	}
	e.mu.Lock()
	e.addr = listener.Addr()
	e.mu.Unlock()

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricspkg.ShutdownTimeout,
	}

	wg.Go(func() {
		GetLogger().Info("metrics endpoint starting", logger.String("address", listener.Addr().String()))
		if err := e.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			GetLogger().Error("metrics HTTP server error", logger.Error(err))
		}
	})
	wg.Go(func() {
		e.gracefulShutdown(quitChan)
	})
	return nil
}

// Addr returns the bound address, or nil before Start.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	GetLogger().Info("stopping metrics endpoint")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		GetLogger().Error("metrics server shutdown error", logger.Error(err))
	}
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
