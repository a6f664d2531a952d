package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration signals an invalid virtual field definition.
	ErrConfiguration = errors.New("invalid field configuration")
	// ErrComputation signals a compute function failure.
	ErrComputation = errors.New("field computation failed")
	// ErrResourceExhausted signals a breached memory, time or size limit.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrCache signals a failure of the backing cache. Never surfaced to callers.
	ErrCache = errors.New("cache failure")
	// ErrFieldNotFound signals a reference to an unregistered virtual field.
	ErrFieldNotFound = errors.New("virtual field not found")
	// ErrUnsupportedOperator signals an operator not enabled for a field.
	ErrUnsupportedOperator = errors.New("unsupported operator")
	// ErrInvalidPredicate signals a malformed filter predicate.
	ErrInvalidPredicate = errors.New("invalid predicate")
)

// ConfigError describes one problem with one field definition.
type ConfigError struct {
	Field   string
	Problem string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Problem
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Problem)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// ConfigErrors accumulates every problem found in one validation pass.
type ConfigErrors []*ConfigError

func (e ConfigErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ce := range e {
		msgs[i] = ce.Error()
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), strings.Join(msgs, "; "))
}

func (e ConfigErrors) Unwrap() error { return ErrConfiguration }

// Fields returns the distinct field names that have at least one problem, in report order.
func (e ConfigErrors) Fields() []string {
	seen := make(map[string]bool, len(e))
	var out []string
	for _, ce := range e {
		if !seen[ce.Field] {
			seen[ce.Field] = true
			out = append(out, ce.Field)
		}
	}
	return out
}

// ComputationError identifies the field and entity whose computation failed.
type ComputationError struct {
	Field     string
	EntityKey string
	Err       error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: field %q, entity %q: %v", ErrComputation.Error(), e.Field, e.EntityKey, e.Err)
}

// Is matches ErrComputation.
func (e *ComputationError) Is(target error) bool { return target == ErrComputation }

func (e *ComputationError) Unwrap() error { return e.Err }

// ResourceExhaustedError reports which limit was breached.
type ResourceExhaustedError struct {
	Resource string // memory, time, sort_records
	Limit    int64
	Observed int64
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s limit %d exceeded (observed %d)",
		ErrResourceExhausted.Error(), e.Resource, e.Limit, e.Observed)
}

func (e *ResourceExhaustedError) Unwrap() error { return ErrResourceExhausted }

// NewResourceExhausted creates a resource limit error.
func NewResourceExhausted(resource string, limit, observed int64) error {
	return &ResourceExhaustedError{Resource: resource, Limit: limit, Observed: observed}
}
