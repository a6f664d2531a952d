package vfields

import "github.com/kailas-cloud/vfields/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrConfiguration       = domain.ErrConfiguration
	ErrComputation         = domain.ErrComputation
	ErrResourceExhausted   = domain.ErrResourceExhausted
	ErrFieldNotFound       = domain.ErrFieldNotFound
	ErrUnsupportedOperator = domain.ErrUnsupportedOperator
	ErrInvalidPredicate    = domain.ErrInvalidPredicate
)

// Typed errors. Use errors.As() to inspect.
type (
	// ConfigError describes one problem with one field definition.
	ConfigError = domain.ConfigError
	// ConfigErrors lists every problem found in one registration.
	ConfigErrors = domain.ConfigErrors
	// ComputationError identifies the field and entity whose computation failed.
	ComputationError = domain.ComputationError
	// ResourceExhaustedError reports the breached limit.
	ResourceExhaustedError = domain.ResourceExhaustedError
)
