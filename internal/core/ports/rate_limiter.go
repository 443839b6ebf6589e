package ports

import (
	"context"
	"time"
)

// RateLimitRepository stores fixed-window request counters.
// Implementations must be safe for concurrent use.
type RateLimitRepository interface {
	// IncrementWindow atomically increments the counter for subject in the current window
	// and ensures the key expires after ttl. Returns the updated count and the window start.
	IncrementWindow(ctx context.Context, subject string, window time.Duration, keyPrefix string, ttl time.Duration) (count int, windowStart time.Time, err error)
}

// RateLimiter decides whether a caller may issue another storage request.
type RateLimiter interface {
	// Allow consumes one request unit for subject.
	// remaining: requests still allowed in the current window after this one (>=0)
	// limit: configured requests per window
	// reset: when the current window ends
	Allow(ctx context.Context, subject string) (allowed bool, remaining int, limit int, reset time.Time, err error)
}
