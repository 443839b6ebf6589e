package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/cloud-storage-provider/internal/application/services"
	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noJitter(time.Duration) time.Duration { return 0 }

func countingProbe(calls *atomic.Int32, result health.Result, err error) ports.Probe {
	return ports.ProbeFunc(func(ctx context.Context) (health.Result, error) {
		calls.Add(1)
		return result, err
	})
}

var defaultCheck = health.CheckContext{Registration: health.Registration{Name: "storage:azure:default"}}

func newEvaluator(t *testing.T, key string, probe ports.Probe, cfg impl.EvaluatorConfig, opts ...impl.EvaluatorOption) *impl.CachedEvaluator {
	t.Helper()
	e, err := impl.NewCachedEvaluator(key, probe, cfg, logrus.New(), opts...)
	require.NoError(t, err)
	return e
}

func TestNewCachedEvaluator_RejectsInvalidConfig(t *testing.T) {
	probe := ports.ProbeFunc(func(ctx context.Context) (health.Result, error) { return health.Healthy("ok"), nil })
	cases := map[string]struct {
		key   string
		probe ports.Probe
		cfg   impl.EvaluatorConfig
	}{
		"empty key":         {key: "", probe: probe, cfg: impl.EvaluatorConfig{FreshDuration: time.Minute}},
		"nil probe":         {key: "k", probe: nil, cfg: impl.EvaluatorConfig{FreshDuration: time.Minute}},
		"negative fresh":    {key: "k", probe: probe, cfg: impl.EvaluatorConfig{FreshDuration: -time.Second}},
		"negative degraded": {key: "k", probe: probe, cfg: impl.EvaluatorConfig{FreshDuration: time.Minute, DegradedDuration: -time.Second}},
		"negative jitter":   {key: "k", probe: probe, cfg: impl.EvaluatorConfig{FreshDuration: time.Minute, JitterCeiling: -2 * time.Second}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := impl.NewCachedEvaluator(tc.key, tc.probe, tc.cfg, nil)
			require.Error(t, err)
			require.ErrorIs(t, err, impl.ErrInvalidEvaluatorConfig)
		})
	}
}

func TestNewCachedEvaluator_DegradedDurationDefaults(t *testing.T) {
	probe := ports.ProbeFunc(func(ctx context.Context) (health.Result, error) { return health.Healthy("ok"), nil })

	e := newEvaluator(t, "defaults-60s", probe, impl.EvaluatorConfig{FreshDuration: 60 * time.Second})
	assert.Equal(t, 35*time.Second, e.DegradedDuration())

	e = newEvaluator(t, "defaults-120s", probe, impl.EvaluatorConfig{FreshDuration: 120 * time.Second})
	assert.Equal(t, 60*time.Second, e.DegradedDuration())

	e = newEvaluator(t, "defaults-explicit", probe, impl.EvaluatorConfig{FreshDuration: 60 * time.Second, DegradedDuration: 10 * time.Second})
	assert.Equal(t, 10*time.Second, e.DegradedDuration())
}

func TestEvaluate_ReturnsCachedResultWhileFresh(t *testing.T) {
	var calls atomic.Int32
	clock := newFakeClock()
	e := newEvaluator(t, "fresh-respect", countingProbe(&calls, health.Healthy("Connected"), nil),
		impl.EvaluatorConfig{FreshDuration: time.Minute}, impl.WithClock(clock.Now), impl.WithJitter(noJitter))

	first, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	require.Equal(t, health.StatusHealthy, first.Status)

	clock.Advance(59 * time.Second)
	second, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.GetCacheHits().WithLabelValues("fresh-respect")))
}

func TestEvaluate_RefreshesAfterExpiry(t *testing.T) {
	var calls atomic.Int32
	clock := newFakeClock()
	e := newEvaluator(t, "expiry-refresh", countingProbe(&calls, health.Healthy("Connected"), nil),
		impl.EvaluatorConfig{FreshDuration: time.Minute}, impl.WithClock(clock.Now), impl.WithJitter(noJitter))

	_, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvaluate_UnhealthyResultUsesDegradedDuration(t *testing.T) {
	var calls atomic.Int32
	clock := newFakeClock()
	boom := errors.New("connection refused")
	e := newEvaluator(t, "differential-ttl", countingProbe(&calls, health.Result{}, boom),
		impl.EvaluatorConfig{FreshDuration: 60 * time.Second}, impl.WithClock(clock.Now), impl.WithJitter(noJitter))

	r, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	require.Equal(t, health.StatusUnhealthy, r.Status)

	clock.Advance(34 * time.Second)
	_, err = e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	_, err = e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "unhealthy result must expire after 35s, not 60s")
}

func TestEvaluate_ProbeErrorBecomesFailureResult(t *testing.T) {
	boom := errors.New("403 AuthorizationPermissionMismatch")
	var calls atomic.Int32
	e := newEvaluator(t, "probe-error", countingProbe(&calls, health.Healthy("ignored"), boom), impl.EvaluatorConfig{FreshDuration: time.Minute})

	r, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnhealthy, r.Status)
	assert.ErrorIs(t, r.Cause, boom)

	degradedCheck := health.CheckContext{Registration: health.Registration{Name: "x", FailureStatus: health.StatusDegraded}}
	e = newEvaluator(t, "probe-error-degraded", countingProbe(&calls, health.Result{}, boom), impl.EvaluatorConfig{})
	r, err = e.Evaluate(context.Background(), degradedCheck)
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, r.Status)
	assert.ErrorIs(t, r.Cause, boom)
}

func TestEvaluate_ProbePanicBecomesUnhealthy(t *testing.T) {
	probe := ports.ProbeFunc(func(ctx context.Context) (health.Result, error) { panic("nil client") })
	e := newEvaluator(t, "probe-panic", probe, impl.EvaluatorConfig{FreshDuration: time.Minute})

	var r health.Result
	var err error
	require.NotPanics(t, func() { r, err = e.Evaluate(context.Background(), defaultCheck) })
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnhealthy, r.Status)
	require.Error(t, r.Cause)
	assert.Contains(t, r.Cause.Error(), "nil client")
}

func TestEvaluate_CachingDisabledRunsProbeEveryTime(t *testing.T) {
	var calls atomic.Int32
	e := newEvaluator(t, "cache-disabled", countingProbe(&calls, health.Healthy("ok"), nil), impl.EvaluatorConfig{FreshDuration: 0})
	require.False(t, e.CachingEnabled())

	for i := 0; i < 5; i++ {
		_, err := e.Evaluate(context.Background(), defaultCheck)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())

	calls.Store(0)
	e = newEvaluator(t, "cache-disabled-flag", countingProbe(&calls, health.Healthy("ok"), nil), impl.EvaluatorConfig{FreshDuration: time.Minute, DisableCaching: true})
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), defaultCheck)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestEvaluate_CoalescesConcurrentCallers(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	probe := ports.ProbeFunc(func(ctx context.Context) (health.Result, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return health.Healthy("Connected to storage service"), nil
	})
	e := newEvaluator(t, "coalescing", probe, impl.EvaluatorConfig{FreshDuration: time.Minute})

	const callers = 32
	results := make([]health.Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Evaluate(context.Background(), defaultCheck)
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.GetProbeExecutions().WithLabelValues("coalescing", "healthy")))
}

func TestEvaluate_CancelledWaiterDoesNotDisturbRefresh(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	probe := ports.ProbeFunc(func(ctx context.Context) (health.Result, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return health.Healthy("Connected"), nil
	})
	e := newEvaluator(t, "cancel-waiter", probe, impl.EvaluatorConfig{FreshDuration: time.Minute})

	leaderDone := make(chan health.Result, 1)
	go func() {
		r, err := e.Evaluate(context.Background(), defaultCheck)
		if err == nil {
			leaderDone <- r
		}
		close(leaderDone)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	go func() {
		_, err := e.Evaluate(ctx, defaultCheck)
		waiterErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-waiterErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	close(release)
	r, ok := <-leaderDone
	require.True(t, ok)
	assert.Equal(t, health.StatusHealthy, r.Status)

	cached, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, r, cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEvaluate_CancelledProbeIsNotCached(t *testing.T) {
	var calls atomic.Int32
	probe := ports.ProbeFunc(func(ctx context.Context) (health.Result, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return health.Result{}, ctx.Err()
		}
		return health.Healthy("Connected"), nil
	})
	e := newEvaluator(t, "cancel-probe", probe, impl.EvaluatorConfig{FreshDuration: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Evaluate(ctx, defaultCheck)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	r, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, r.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvaluate_AlreadyCancelledContextFailsFast(t *testing.T) {
	var calls atomic.Int32
	e := newEvaluator(t, "cancel-fast", countingProbe(&calls, health.Healthy("ok"), nil), impl.EvaluatorConfig{FreshDuration: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Evaluate(ctx, defaultCheck)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestEvaluate_JitterStaysWithinCeiling(t *testing.T) {
	const (
		fresh   = 10 * time.Second
		ceiling = 2 * time.Second
		step    = 50 * time.Millisecond
	)
	var calls atomic.Int32
	clock := newFakeClock()
	e := newEvaluator(t, "jitter-bound", countingProbe(&calls, health.Healthy("ok"), nil),
		impl.EvaluatorConfig{FreshDuration: fresh, JitterCeiling: ceiling}, impl.WithClock(clock.Now))

	_, err := e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	last := clock.Now()

	for refreshes := 0; refreshes < 100; {
		clock.Advance(step)
		before := calls.Load()
		_, err := e.Evaluate(context.Background(), defaultCheck)
		require.NoError(t, err)

		elapsed := clock.Now().Sub(last)
		if calls.Load() == before {
			require.LessOrEqual(t, elapsed, fresh+ceiling, "entry outlived fresh duration plus jitter ceiling")
			continue
		}
		offset := elapsed - fresh
		require.GreaterOrEqual(t, offset, time.Duration(0), "entry expired before its fresh duration")
		require.Less(t, offset, ceiling+step)
		last = clock.Now()
		refreshes++
	}
}

func warnings(hook *logtest.Hook, msg string) int {
	n := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == msg {
			n++
		}
	}
	return n
}

func TestEvaluate_CancelledCheckIsNotLoggedAsFailure(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	blocking := ports.ProbeFunc(func(ctx context.Context) (health.Result, error) {
		<-ctx.Done()
		return health.Result{}, ctx.Err()
	})
	e, err := impl.NewCachedEvaluator("cancel-quiet", blocking, impl.EvaluatorConfig{FreshDuration: time.Minute}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Evaluate(ctx, defaultCheck)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, warnings(hook, "health probe failed"))
}

func TestEvaluate_CheckFailureIsLoggedOnce(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	var calls atomic.Int32
	e, err := impl.NewCachedEvaluator("fail-logged", countingProbe(&calls, health.Result{}, errors.New("dial tcp: refused")),
		impl.EvaluatorConfig{FreshDuration: time.Minute}, logger)
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), defaultCheck)
	require.NoError(t, err)
	assert.Equal(t, 1, warnings(hook, "health probe failed"))
}
