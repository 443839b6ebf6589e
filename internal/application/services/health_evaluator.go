package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
	"github.com/sirupsen/logrus"
)

const (
	DefaultJitterCeiling      = 5 * time.Second
	minDegradedResultDuration = 35 * time.Second
)

var ErrInvalidEvaluatorConfig = errors.New("invalid health evaluator config")

// EvaluatorConfig controls how long probe results are reused.
type EvaluatorConfig struct {
	// FreshDuration is how long a healthy result is served from cache.
	// Zero disables caching.
	FreshDuration time.Duration
	// DegradedDuration is how long a non-healthy result is served from cache.
	// Zero selects max(35s, FreshDuration/2).
	DegradedDuration time.Duration
	// DisableCaching forces every evaluation to run the probe.
	DisableCaching bool
	// JitterCeiling bounds the random delay added to every expiry. Zero selects
	// DefaultJitterCeiling; use NoJitter to turn jitter off.
	JitterCeiling time.Duration
}

// NoJitter is a JitterCeiling value that disables expiry jitter.
const NoJitter time.Duration = -1

func (c EvaluatorConfig) validate() error {
	if c.FreshDuration < 0 {
		return fmt.Errorf("%w: fresh duration must not be negative, got %s", ErrInvalidEvaluatorConfig, c.FreshDuration)
	}
	if c.DegradedDuration < 0 {
		return fmt.Errorf("%w: degraded duration must not be negative, got %s", ErrInvalidEvaluatorConfig, c.DegradedDuration)
	}
	if c.JitterCeiling < 0 && c.JitterCeiling != NoJitter {
		return fmt.Errorf("%w: jitter ceiling must not be negative, got %s", ErrInvalidEvaluatorConfig, c.JitterCeiling)
	}
	return nil
}

type cachedResult struct {
	result    health.Result
	expiresAt time.Time
}

// EvaluatorOption customises a CachedEvaluator.
type EvaluatorOption func(*CachedEvaluator)

// WithClock replaces time.Now for expiry computations.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *CachedEvaluator) { e.now = now }
}

// WithJitter replaces the random jitter source. fn receives the jitter ceiling.
func WithJitter(fn func(ceiling time.Duration) time.Duration) EvaluatorOption {
	return func(e *CachedEvaluator) { e.jitter = fn }
}

// CachedEvaluator memoizes a probe result per key and lets at most one probe run at a time.
// One evaluator must be shared by every caller probing the same target.
type CachedEvaluator struct {
	key              string
	probe            ports.Probe
	cachingEnabled   bool
	freshDuration    time.Duration
	degradedDuration time.Duration
	jitterCeiling    time.Duration

	slot  atomic.Pointer[cachedResult]
	guard chan struct{}

	now    func() time.Time
	jitter func(time.Duration) time.Duration
	logger *logrus.Logger
}

// NewCachedEvaluator creates an evaluator for the target identified by key.
func NewCachedEvaluator(key string, probe ports.Probe, cfg EvaluatorConfig, logger *logrus.Logger, opts ...EvaluatorOption) (*CachedEvaluator, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidEvaluatorConfig)
	}
	if probe == nil {
		return nil, fmt.Errorf("%w: probe is required", ErrInvalidEvaluatorConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	degraded := cfg.DegradedDuration
	if degraded == 0 {
		degraded = max(minDegradedResultDuration, cfg.FreshDuration/2)
	}
	ceiling := cfg.JitterCeiling
	switch ceiling {
	case 0:
		ceiling = DefaultJitterCeiling
	case NoJitter:
		ceiling = 0
	}

	e := &CachedEvaluator{
		key:              key,
		probe:            probe,
		cachingEnabled:   cfg.FreshDuration > 0 && !cfg.DisableCaching,
		freshDuration:    cfg.FreshDuration,
		degradedDuration: degraded,
		jitterCeiling:    ceiling,
		guard:            make(chan struct{}, 1),
		now:              time.Now,
		jitter:           uniformJitter,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func uniformJitter(ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

func (e *CachedEvaluator) Key() string { return e.key }

func (e *CachedEvaluator) CachingEnabled() bool { return e.cachingEnabled }

func (e *CachedEvaluator) FreshDuration() time.Duration { return e.freshDuration }

func (e *CachedEvaluator) DegradedDuration() time.Duration { return e.degradedDuration }

// Evaluate returns the cached result while it is fresh and otherwise runs the probe once,
// sharing the new result with every caller that waited for it.
func (e *CachedEvaluator) Evaluate(ctx context.Context, check health.CheckContext) (health.Result, error) {
	if !e.cachingEnabled {
		return e.execute(ctx, check)
	}

	if r, ok := e.fresh(); ok {
		return r, nil
	}

	if err := ctx.Err(); err != nil {
		return health.Result{}, err
	}
	select {
	case e.guard <- struct{}{}:
	case <-ctx.Done():
		return health.Result{}, ctx.Err()
	}
	defer func() { <-e.guard }()

	// another caller may have refreshed the slot while we waited
	if r, ok := e.fresh(); ok {
		return r, nil
	}

	result, err := e.execute(ctx, check)
	if err != nil {
		return health.Result{}, err
	}

	ttl := e.freshDuration
	if result.Status != health.StatusHealthy {
		ttl = e.degradedDuration
	}
	ttl += e.jitter(e.jitterCeiling)
	e.slot.Store(&cachedResult{result: result, expiresAt: e.now().Add(ttl)})

	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{"key": e.key, "status": result.Status.String(), "ttl": ttl.String()}).Debug("health result cached")
	}
	return result, nil
}

func (e *CachedEvaluator) fresh() (health.Result, bool) {
	entry := e.slot.Load()
	if entry == nil || !e.now().Before(entry.expiresAt) {
		return health.Result{}, false
	}
	cacheHits.WithLabelValues(e.key).Inc()
	return entry.result, true
}

// execute runs the probe and converts failures into results. Only cancellation of ctx
// is returned as an error. Failures are logged after the cancellation check so a probe
// cut short by its caller is not reported as a failure.
func (e *CachedEvaluator) execute(ctx context.Context, check health.CheckContext) (result health.Result, err error) {
	start := time.Now()
	var cause error
	defer func() {
		if rec := recover(); rec != nil {
			cause = fmt.Errorf("health probe panicked: %v", rec)
			result, err = e.failure(check, cause), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			result, err = health.Result{}, ctxErr
			return
		}
		if cause != nil && e.logger != nil {
			e.logger.WithFields(logrus.Fields{"key": e.key, "check": check.Registration.Name}).WithError(cause).Warn("health probe failed")
		}
		probeDuration.WithLabelValues(e.key).Observe(time.Since(start).Seconds())
		probeExecutions.WithLabelValues(e.key, result.Status.String()).Inc()
	}()

	r, perr := e.probe.Probe(ctx)
	if perr != nil {
		cause = perr
		return e.failure(check, perr), nil
	}
	return r, nil
}

func (e *CachedEvaluator) failure(check health.CheckContext, cause error) health.Result {
	return health.Result{Status: check.Registration.FailureStatus, Description: cause.Error(), Cause: cause}
}

var _ ports.HealthEvaluator = (*CachedEvaluator)(nil)
