package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrHealthCheckNotFound  = errors.New("health check not found")
	ErrDuplicateHealthCheck = errors.New("health check already registered")
)

const timedOutDescription = "health check timed out"

type registeredCheck struct {
	reg       health.Registration
	evaluator ports.HealthEvaluator
}

type healthService struct {
	mu     sync.RWMutex
	checks []registeredCheck
	logger *logrus.Logger
}

// NewHealthService creates an empty health service.
func NewHealthService(logger *logrus.Logger) ports.HealthService {
	return &healthService{logger: logger}
}

func (s *healthService) Register(reg health.Registration, evaluator ports.HealthEvaluator) error {
	if reg.Name == "" {
		return fmt.Errorf("health check name is required")
	}
	if evaluator == nil {
		return fmt.Errorf("health check %q has no evaluator", reg.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.checks {
		if c.reg.Name == reg.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateHealthCheck, reg.Name)
		}
	}
	s.checks = append(s.checks, registeredCheck{reg: reg, evaluator: evaluator})
	return nil
}

func (s *healthService) Registrations() []health.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regs := make([]health.Registration, 0, len(s.checks))
	for _, c := range s.checks {
		regs = append(regs, c.reg)
	}
	return regs
}

// CheckHealth runs every check accepted by predicate (all when nil) in parallel.
// It fails only when ctx itself is cancelled.
func (s *healthService) CheckHealth(ctx context.Context, predicate func(health.Registration) bool) (*health.Report, error) {
	s.mu.RLock()
	selected := make([]registeredCheck, 0, len(s.checks))
	for _, c := range s.checks {
		if predicate == nil || predicate(c.reg) {
			selected = append(selected, c)
		}
	}
	s.mu.RUnlock()

	start := time.Now()
	entries := make([]health.ReportEntry, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range selected {
		i, c := i, c
		g.Go(func() error {
			entry, err := s.run(gctx, c)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byName := make(map[string]health.ReportEntry, len(selected))
	for i, c := range selected {
		byName[c.reg.Name] = entries[i]
	}
	report := health.NewReport(byName, time.Since(start))
	if s.logger != nil && report.Status != health.StatusHealthy {
		s.logger.WithFields(logrus.Fields{"status": report.Status.String(), "checks": len(selected)}).Warn("health report not healthy")
	}
	return report, nil
}

func (s *healthService) CheckOne(ctx context.Context, name string) (*health.ReportEntry, error) {
	s.mu.RLock()
	var found *registeredCheck
	for i := range s.checks {
		if s.checks[i].reg.Name == name {
			c := s.checks[i]
			found = &c
			break
		}
	}
	s.mu.RUnlock()
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}
	entry, err := s.run(ctx, *found)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// run evaluates one check. A per-check timeout becomes a failure entry; cancellation of
// the parent ctx is returned.
func (s *healthService) run(ctx context.Context, c registeredCheck) (health.ReportEntry, error) {
	checkCtx := ctx
	if c.reg.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, c.reg.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.evaluator.Evaluate(checkCtx, health.CheckContext{Registration: c.reg})
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return health.ReportEntry{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return health.ReportEntry{
				Status:      c.reg.FailureStatus,
				Description: timedOutDescription,
				Cause:       err,
				Duration:    elapsed,
				Tags:        c.reg.Tags,
			}, nil
		}
		return health.ReportEntry{}, err
	}
	return health.ReportEntry{
		Status:      result.Status,
		Description: result.Description,
		Cause:       result.Cause,
		Duration:    elapsed,
		Tags:        c.reg.Tags,
	}, nil
}
