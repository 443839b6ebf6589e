package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/cloud-storage-provider/internal/application/services"
	tmocks "github.com/avatarctic/cloud-storage-provider/test/mocks"
)

func TestRateLimiter_AllowsUpToBurst(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := &tmocks.RateLimitRepositoryMock{Start: start}
	rl := impl.NewRateLimiterService(repo, &impl.RateLimiterConfig{RequestsPerMinute: 2, BurstMultiplier: 1.5}, nil)

	ctx := context.Background()
	for i, wantRemaining := range []int{2, 1, 0} {
		allowed, remaining, limit, reset, err := rl.Allow(ctx, "default:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
		assert.Equal(t, wantRemaining, remaining)
		assert.Equal(t, 2, limit)
		assert.Equal(t, start.Add(time.Minute), reset)
	}

	allowed, remaining, _, _, err := rl.Allow(ctx, "default:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, _, _, _, err = rl.Allow(ctx, "archive:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed, "subjects are counted separately")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	repo := &tmocks.RateLimitRepositoryMock{Err: errors.New("redis down")}
	rl := impl.NewRateLimiterService(repo, &impl.RateLimiterConfig{RequestsPerMinute: 1}, nil)

	allowed, remaining, limit, _, err := rl.Allow(context.Background(), "default:10.0.0.1")
	require.Error(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, 1, limit)
}

func TestRateLimiter_Defaults(t *testing.T) {
	repo := &tmocks.RateLimitRepositoryMock{}
	rl := impl.NewRateLimiterService(repo, nil, nil)
	_, remaining, limit, _, err := rl.Allow(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, 120, limit)
	assert.Equal(t, 119, remaining)
}
