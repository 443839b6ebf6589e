package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/cloud-storage-provider/internal/application/services"
	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	tmocks "github.com/avatarctic/cloud-storage-provider/test/mocks"
)

func fixedEvaluator(r health.Result) *tmocks.HealthEvaluatorMock {
	return &tmocks.HealthEvaluatorMock{EvaluateFn: func(ctx context.Context, check health.CheckContext) (health.Result, error) {
		return r, nil
	}}
}

func TestHealthService_ReportUsesWorstStatus(t *testing.T) {
	svc := impl.NewHealthService(nil)
	require.NoError(t, svc.Register(health.Registration{Name: "storage:azure:default", Tags: []string{"ready"}}, fixedEvaluator(health.Healthy("Connected"))))
	require.NoError(t, svc.Register(health.Registration{Name: "cache:redis"}, fixedEvaluator(health.Degraded("slow", nil))))

	report, err := svc.CheckHealth(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, report.Status)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, "Connected", report.Entries["storage:azure:default"].Description)
	assert.Equal(t, []string{"ready"}, report.Entries["storage:azure:default"].Tags)

	ready, err := svc.CheckHealth(context.Background(), func(r health.Registration) bool { return r.HasTag("ready") })
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, ready.Status)
	assert.Len(t, ready.Entries, 1)
}

func TestHealthService_EmptyReportIsHealthy(t *testing.T) {
	report, err := impl.NewHealthService(nil).CheckHealth(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Empty(t, report.Entries)
}

func TestHealthService_RejectsDuplicateNames(t *testing.T) {
	svc := impl.NewHealthService(nil)
	require.NoError(t, svc.Register(health.Registration{Name: "a"}, fixedEvaluator(health.Healthy(""))))
	err := svc.Register(health.Registration{Name: "a"}, fixedEvaluator(health.Healthy("")))
	require.ErrorIs(t, err, impl.ErrDuplicateHealthCheck)
	require.Error(t, svc.Register(health.Registration{Name: ""}, fixedEvaluator(health.Healthy(""))))
	require.Error(t, svc.Register(health.Registration{Name: "b"}, nil))
}

func TestHealthService_CheckTimeoutBecomesFailureEntry(t *testing.T) {
	slow := &tmocks.HealthEvaluatorMock{EvaluateFn: func(ctx context.Context, check health.CheckContext) (health.Result, error) {
		<-ctx.Done()
		return health.Result{}, ctx.Err()
	}}
	svc := impl.NewHealthService(nil)
	require.NoError(t, svc.Register(health.Registration{Name: "slow", Timeout: 10 * time.Millisecond, FailureStatus: health.StatusDegraded}, slow))

	report, err := svc.CheckHealth(context.Background(), nil)
	require.NoError(t, err)
	entry := report.Entries["slow"]
	assert.Equal(t, health.StatusDegraded, entry.Status)
	assert.Equal(t, "health check timed out", entry.Description)
	assert.True(t, errors.Is(entry.Cause, context.DeadlineExceeded))
}

func TestHealthService_ParentCancellationIsReturned(t *testing.T) {
	blocking := &tmocks.HealthEvaluatorMock{EvaluateFn: func(ctx context.Context, check health.CheckContext) (health.Result, error) {
		<-ctx.Done()
		return health.Result{}, ctx.Err()
	}}
	svc := impl.NewHealthService(nil)
	require.NoError(t, svc.Register(health.Registration{Name: "blocking"}, blocking))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.CheckHealth(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHealthService_CheckOne(t *testing.T) {
	svc := impl.NewHealthService(nil)
	require.NoError(t, svc.Register(health.Registration{Name: "storage:azure:default"}, fixedEvaluator(health.Unhealthy("down", errors.New("dial tcp")))))

	entry, err := svc.CheckOne(context.Background(), "storage:azure:default")
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnhealthy, entry.Status)

	_, err = svc.CheckOne(context.Background(), "missing")
	require.ErrorIs(t, err, impl.ErrHealthCheckNotFound)
	assert.Len(t, svc.Registrations(), 1)
}
