package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SamplerMetrics contains Prometheus metrics for MCMC runs and diagnostics.
type SamplerMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	iterationsTotal *prometheus.CounterVec
	activeChains    *prometheus.GaugeVec
	acceptanceRate  *prometheus.GaugeVec
	rhat            *prometheus.GaugeVec
	effectiveSize   *prometheus.GaugeVec
	dic             *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewSamplerMetrics creates and registers sampler metrics.
func NewSamplerMetrics(registry *prometheus.Registry) (*SamplerMetrics, error) {
	m := &SamplerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SamplerMetrics) initMetrics() error {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nmix_operations_total",
			Help: "Total number of sampler operations by status",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nmix_operation_duration_seconds",
			Help:    "Time taken by sampler operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount15),
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nmix_errors_total",
			Help: "Total number of errors by operation and category",
		},
		[]string{"operation", "error_type"},
	)

	m.iterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nmix_sampler_iterations_total",
			Help: "Total number of completed sampler iterations",
		},
		[]string{"model"},
	)

	m.activeChains = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nmix_sampler_active_chains",
			Help: "Number of chains currently running",
		},
		[]string{"model"},
	)

	m.acceptanceRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nmix_sampler_acceptance_rate",
			Help: "Post burn-in Metropolis acceptance rate per parameter",
		},
		[]string{"model", "param"},
	)

	m.rhat = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nmix_diagnostics_rhat",
			Help: "Potential scale reduction factor per parameter",
		},
		[]string{"model", "param"},
	)

	m.effectiveSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nmix_diagnostics_effective_size",
			Help: "Pooled effective sample size per parameter",
		},
		[]string{"model", "param"},
	)

	m.dic = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nmix_posterior_dic",
			Help: "Deviance information criterion of the last fit per model",
		},
		[]string{"model"},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.iterationsTotal,
		m.activeChains,
		m.acceptanceRate,
		m.rhat,
		m.effectiveSize,
		m.dic,
	}
	return nil
}

// Describe implements the Collector interface.
func (m *SamplerMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface.
func (m *SamplerMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *SamplerMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *SamplerMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *SamplerMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// ChainStarted implements SamplerRecorder.
func (m *SamplerMetrics) ChainStarted(model string) {
	m.activeChains.WithLabelValues(model).Inc()
}

// ChainFinished implements SamplerRecorder.
func (m *SamplerMetrics) ChainFinished(model string) {
	m.activeChains.WithLabelValues(model).Dec()
}

// AddIterations implements SamplerRecorder.
func (m *SamplerMetrics) AddIterations(model string, n int) {
	m.iterationsTotal.WithLabelValues(model).Add(float64(n))
}

// ObserveAcceptance implements SamplerRecorder.
func (m *SamplerMetrics) ObserveAcceptance(model, param string, rate float64) {
	m.acceptanceRate.WithLabelValues(model, param).Set(rate)
}

// SetRhat publishes the R-hat of param.
func (m *SamplerMetrics) SetRhat(model, param string, rhat float64) {
	m.rhat.WithLabelValues(model, param).Set(rhat)
}

// SetEffectiveSize publishes the effective sample size of param.
func (m *SamplerMetrics) SetEffectiveSize(model, param string, n float64) {
	m.effectiveSize.WithLabelValues(model, param).Set(n)
}

// SetDIC publishes the DIC of model.
func (m *SamplerMetrics) SetDIC(model string, dic float64) {
	m.dic.WithLabelValues(model).Set(dic)
}
