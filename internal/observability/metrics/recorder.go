// Package metrics provides custom Prometheus metrics for nmix fits.
package metrics

import "sync"

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction rather than concrete collectors.
type Recorder interface {
	// RecordOperation records an operation with its status (e.g. "chain", "success").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}

// SamplerRecorder extends Recorder with the progress signals of an MCMC run.
type SamplerRecorder interface {
	Recorder

	// ChainStarted marks a chain of model as running.
	ChainStarted(model string)
	// ChainFinished marks a chain of model as done, successfully or not.
	ChainFinished(model string)
	// AddIterations counts completed sampler iterations.
	AddIterations(model string, n int)
	// ObserveAcceptance records the post burn-in acceptance rate of a parameter.
	ObserveAcceptance(model, param string, rate float64)
}

// MemoryRecorder captures everything it is given. It is used in tests and as
// a lightweight in-process recorder when no Prometheus registry is wanted.
type MemoryRecorder struct {
	mu         sync.RWMutex
	operations map[string]map[string]int // operation -> status -> count
	durations  map[string][]float64
	errors     map[string]map[string]int // operation -> errorType -> count
	iterations map[string]int
	acceptance map[string]map[string]float64
	active     map[string]int
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		operations: make(map[string]map[string]int),
		durations:  make(map[string][]float64),
		errors:     make(map[string]map[string]int),
		iterations: make(map[string]int),
		acceptance: make(map[string]map[string]float64),
		active:     make(map[string]int),
	}
}

// RecordOperation implements Recorder.
func (r *MemoryRecorder) RecordOperation(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.operations[operation] == nil {
		r.operations[operation] = make(map[string]int)
	}
	r.operations[operation][status]++
}

// RecordDuration implements Recorder.
func (r *MemoryRecorder) RecordDuration(operation string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.durations[operation] = append(r.durations[operation], seconds)
}

// RecordError implements Recorder.
func (r *MemoryRecorder) RecordError(operation, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errors[operation] == nil {
		r.errors[operation] = make(map[string]int)
	}
	r.errors[operation][errorType]++
}

// ChainStarted implements SamplerRecorder.
func (r *MemoryRecorder) ChainStarted(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[model]++
}

// ChainFinished implements SamplerRecorder.
func (r *MemoryRecorder) ChainFinished(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[model]--
}

// AddIterations implements SamplerRecorder.
func (r *MemoryRecorder) AddIterations(model string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations[model] += n
}

// ObserveAcceptance implements SamplerRecorder.
func (r *MemoryRecorder) ObserveAcceptance(model, param string, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acceptance[model] == nil {
		r.acceptance[model] = make(map[string]float64)
	}
	r.acceptance[model][param] = rate
}

// OperationCount returns the count of an operation with status.
func (r *MemoryRecorder) OperationCount(operation, status string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operations[operation][status]
}

// Durations returns a copy of the durations recorded for operation.
func (r *MemoryRecorder) Durations(operation string) []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	durations, ok := r.durations[operation]
	if !ok {
		return nil
	}
	out := make([]float64, len(durations))
	copy(out, durations)
	return out
}

// ErrorCount returns the count of errorType for operation.
func (r *MemoryRecorder) ErrorCount(operation, errorType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errors[operation][errorType]
}

// Iterations returns the iterations counted for model.
func (r *MemoryRecorder) Iterations(model string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.iterations[model]
}

// Acceptance returns the last acceptance rate observed for param.
func (r *MemoryRecorder) Acceptance(model, param string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rate, ok := r.acceptance[model][param]
	return rate, ok
}

// ActiveChains returns the number of running chains of model.
func (r *MemoryRecorder) ActiveChains(model string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[model]
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

// RecordOperation does nothing.
func (NoOpRecorder) RecordOperation(operation, status string) {}

// RecordDuration does nothing.
func (NoOpRecorder) RecordDuration(operation string, seconds float64) {}

// RecordError does nothing.
func (NoOpRecorder) RecordError(operation, errorType string) {}

// ChainStarted does nothing.
func (NoOpRecorder) ChainStarted(model string) {}

// ChainFinished does nothing.
func (NoOpRecorder) ChainFinished(model string) {}

// AddIterations does nothing.
func (NoOpRecorder) AddIterations(model string, n int) {}

// ObserveAcceptance does nothing.
func (NoOpRecorder) ObserveAcceptance(model, param string, rate float64) {}
