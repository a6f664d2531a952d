package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Fields int
}

// Service coordinates health checks.
type Service struct {
	cache  CachePinger
	fields FieldCounter
}

// New creates a Service. cache is nil for the in-process cache.
func New(cache CachePinger, fields FieldCounter) *Service {
	return &Service{cache: cache, fields: fields}
}

// Check runs health checks against all components.
// A failing shared cache degrades the service (lookups fall back to computing);
// a registry with no fields leaves nothing to serve.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	n := s.fields.Len()
	if n == 0 {
		checks["fields"] = CheckError
	} else {
		checks["fields"] = CheckOK
	}

	status := Healthy
	switch {
	case checks["fields"] == CheckError:
		status = Unhealthy
	case checks["cache"] == CheckError:
		status = Degraded
	}

	return Report{Status: status, Checks: checks, Fields: n}
}
