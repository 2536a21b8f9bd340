package health

import "context"

// Pinger checks document storage availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker checks an optional dependency (provider, index, event bus).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
