package health

import (
	"context"
	"sort"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "healthy"
	// Degraded indicates an optional dependency is failing; documents are still served.
	Degraded Status = "degraded"
	// Unhealthy indicates document storage is unavailable.
	Unhealthy Status = "unhealthy"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// StorageCheck is the check name of document storage.
const StorageCheck = "storage"

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type namedChecker struct {
	name    string
	checker Checker
}

// Service coordinates health checks.
type Service struct {
	storage  Pinger
	optional []namedChecker
}

// Option registers an optional dependency.
type Option func(*Service)

// WithCheck adds an optional dependency under name. A nil checker is ignored.
func WithCheck(name string, c Checker) Option {
	return func(s *Service) {
		if c != nil {
			s.optional = append(s.optional, namedChecker{name: name, checker: c})
		}
	}
}

// New creates a Service.
func New(storage Pinger, opts ...Option) *Service {
	s := &Service{storage: storage}
	for _, o := range opts {
		o(s)
	}
	sort.Slice(s.optional, func(i, j int) bool { return s.optional[i].name < s.optional[j].name })
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.optional)+1)
	status := Healthy

	for _, c := range s.optional {
		if err := c.checker.HealthCheck(ctx); err != nil {
			checks[c.name] = CheckError
			status = Degraded
		} else {
			checks[c.name] = CheckOK
		}
	}

	if err := s.storage.Ping(ctx); err != nil {
		checks[StorageCheck] = CheckError
		status = Unhealthy
	} else {
		checks[StorageCheck] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
