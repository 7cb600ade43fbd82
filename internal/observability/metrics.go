// Package observability exposes the Prometheus metrics of nmix runs.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability/metrics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/posterior"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Sampler   *metrics.SamplerMetrics
	Datastore *metrics.DatastoreMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	samplerMetrics, err := metrics.NewSamplerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Sampler:   samplerMetrics,
		Datastore: datastoreMetrics,
	}, nil
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", m.metricsHandler)
}

// metricsHandler is the HTTP handler for the /metrics endpoint.
func (m *Metrics) metricsHandler(w http.ResponseWriter, r *http.Request) {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
	h.ServeHTTP(w, r)
}

// ErrorHook counts every enhanced error by component and category. Register
// it with errors.AddErrorHook.
func (m *Metrics) ErrorHook() errors.Hook {
	return func(ee *errors.EnhancedError) {
		m.Sampler.RecordError(ee.GetComponent(), ee.GetCategory())
	}
}

// PublishResult exposes the convergence and fit scores of an analyzed model.
func (m *Metrics) PublishResult(r *posterior.Result) {
	name := r.Model()
	for _, row := range r.Selection.Table {
		m.Sampler.SetRhat(name, row.Name, row.Rhat)
		m.Sampler.SetEffectiveSize(name, row.Name, row.ESS)
	}
	m.Sampler.SetDIC(name, r.Score.DIC)
}
