package ports

import (
	"context"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
)

// Probe performs one remote health check. A returned error marks the target as failed;
// the caller decides which status that maps to.
// Implementations need not be safe for concurrent use.
type Probe interface {
	Probe(ctx context.Context) (health.Result, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) (health.Result, error)

func (f ProbeFunc) Probe(ctx context.Context) (health.Result, error) { return f(ctx) }

// HealthEvaluator answers whether a target is healthy.
// Only cancellation of ctx is returned as an error; probe failures are reported as results.
type HealthEvaluator interface {
	Evaluate(ctx context.Context, check health.CheckContext) (health.Result, error)
}

// HealthService runs registered checks and aggregates them into a report.
type HealthService interface {
	Register(reg health.Registration, evaluator HealthEvaluator) error
	CheckHealth(ctx context.Context, predicate func(health.Registration) bool) (*health.Report, error)
	CheckOne(ctx context.Context, name string) (*health.ReportEntry, error)
	Registrations() []health.Registration
}
