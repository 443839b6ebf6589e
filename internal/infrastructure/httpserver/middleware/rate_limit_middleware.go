package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

// RateLimitMiddleware throttles requests per storage provider and client address.
type RateLimitMiddleware struct {
	rateLimiter ports.RateLimiter
	rejected    *prometheus.CounterVec
	logger      *logrus.Logger
}

// NewRateLimitMiddleware returns a middleware that passes everything through when rateLimiter is nil.
func NewRateLimitMiddleware(rateLimiter ports.RateLimiter, rejected *prometheus.CounterVec, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter, rejected: rejected, logger: logger}
}

// Subject is the counter key for a request: the provider path parameter plus the real client IP.
func Subject(c echo.Context) string {
	provider := c.Param("provider")
	if provider == "" {
		provider = "-"
	}
	return provider + ":" + c.RealIP()
}

func (r *RateLimitMiddleware) Handler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.rateLimiter == nil {
				return next(c)
			}
			subject := Subject(c)
			allowed, remaining, limit, reset, rlErr := r.rateLimiter.Allow(c.Request().Context(), subject)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if rlErr != nil {
				if r.logger != nil {
					r.logger.WithError(rlErr).WithField("subject", subject).Warn("rate limiter error; allowing request (fail-open)")
				}
				return next(c)
			}

			if !allowed {
				if r.rejected != nil {
					r.rejected.WithLabelValues(c.Param("provider")).Inc()
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
