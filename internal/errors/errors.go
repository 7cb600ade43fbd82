// Package errors provides categorized errors with structured context and
// optional reporting hooks. It re-exports the standard library helpers so
// packages import it in place of the standard errors package.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrorCategory groups errors for reporting and for callers that branch on
// the kind of failure.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryFileParsing   ErrorCategory = "file-parsing"
	CategoryDatabase      ErrorCategory = "database"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryGeneric       ErrorCategory = "generic"
	CategoryState         ErrorCategory = "state"

	CategoryModel       ErrorCategory = "model-specification" // model compilation and covariate wiring
	CategorySampling    ErrorCategory = "sampling"            // MCMC engine failures
	CategoryConvergence ErrorCategory = "convergence"         // diagnostics input errors
	CategorySummary     ErrorCategory = "posterior-summary"   // summarization and prediction

	CategoryTimeout      ErrorCategory = "timeout"
	CategoryCancellation ErrorCategory = "cancellation"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

const modulePath = "github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models"

// EnhancedError wraps an error with the component that raised it, a
// category and context values. It is immutable once built.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
	component string
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, and anything else through
// the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component that raised the error.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetCategory returns the category as a metrics label.
func (ee *EnhancedError) GetCategory() string { return string(ee.Category) }

// GetContext returns a copy of the context values.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts an enhanced error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts an enhanced error from a format string. %w wraps as in
// fmt.Errorf.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the raising component. Without it the component is taken
// from the calling package.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. Without it the category is inferred.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds one context value.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// ShapeContext records the expected and actual shape of a tensor.
func (eb *ErrorBuilder) ShapeContext(name string, want, got []int) *ErrorBuilder {
	return eb.Context("tensor", name).
		Context("want_shape", want).
		Context("got_shape", got)
}

// FileContext records the base name and extension of a file. Directories
// are left out so errors can be reported without exposing local paths.
func (eb *ErrorBuilder) FileContext(path string) *ErrorBuilder {
	if path == "" {
		return eb
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		ext = "none"
	}
	return eb.Context("file", filepath.Base(path)).Context("file_extension", ext)
}

// Timing records how long the failed operation ran.
func (eb *ErrorBuilder) Timing(operation string, d time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", d.Milliseconds())
}

// Build creates the error and passes it to the registered hooks.
func (eb *ErrorBuilder) Build() *EnhancedError {
	component := eb.component
	if component == "" {
		component = callerComponent()
	}
	category := eb.category
	if category == "" {
		category = detectCategory(eb.err, component)
	}
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: component,
	}
	if hasActiveReporting.Load() {
		runHooks(ee)
	}
	return ee
}

// callerComponent returns the first package of this module on the stack
// outside this package, by its last path element.
func callerComponent() string {
	var pcs [16]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if component := componentOf(frame.Function); component != "" {
			return component
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// componentOf maps a fully qualified function name to its package name, or
// "" for functions outside the module and inside this package.
func componentOf(funcName string) string {
	rest, ok := strings.CutPrefix(funcName, modulePath+"/")
	if !ok {
		return ""
	}
	slash := strings.LastIndex(rest, "/")
	pkg := rest
	if dot := strings.Index(rest[slash+1:], "."); dot >= 0 {
		pkg = rest[:slash+1+dot]
	}
	switch pkg {
	case "internal/errors":
		return ""
	case "internal/conf":
		return "configuration"
	}
	return pkg[slash+1:]
}

// detectCategory infers a category from the wrapped chain, the message and
// finally the component.
func detectCategory(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}
	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) && enhanced.Category != "" {
		return enhanced.Category
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return CategoryCancellation
	case stderrors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "shape") || strings.Contains(msg, "mismatch") ||
		strings.Contains(msg, "invalid") || strings.Contains(msg, "must be"):
		return CategoryValidation
	case strings.Contains(msg, "parse") || strings.Contains(msg, "decode") ||
		strings.Contains(msg, "unmarshal"):
		return CategoryFileParsing
	case strings.Contains(msg, "file") || strings.Contains(msg, "open"):
		return CategoryFileIO
	}

	switch component {
	case "model":
		return CategoryModel
	case "mcmc":
		return CategorySampling
	case "diagnostics":
		return CategoryConvergence
	case "posterior":
		return CategorySummary
	case "datastore":
		return CategoryDatabase
	case "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

// FileError categorizes a file I/O failure on path.
func FileError(err error, path string) *EnhancedError {
	return New(err).
		Category(CategoryFileIO).
		FileContext(path).
		Build()
}

// NewStd creates a plain error, for sentinels.
func NewStd(text string) error { return stderrors.New(text) }

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error { return stderrors.Unwrap(err) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhanced *EnhancedError
	return stderrors.As(err, &enhanced) && enhanced.Category == category
}

// IsNotFound reports whether err wraps a CategoryNotFound error.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
