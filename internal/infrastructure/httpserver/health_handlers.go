package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/cloud-storage-provider/internal/application/services"
	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
)

const readyTag = "ready"

type healthEntryResponse struct {
	Status      health.Status `json:"status"`
	Description string        `json:"description,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    string        `json:"duration"`
	Tags        []string      `json:"tags,omitempty"`
}

type healthReportResponse struct {
	Status        health.Status                  `json:"status"`
	TotalDuration string                         `json:"total_duration"`
	Timestamp     string                         `json:"timestamp"`
	Checks        map[string]healthEntryResponse `json:"checks"`
}

func toEntryResponse(e health.ReportEntry) healthEntryResponse {
	resp := healthEntryResponse{
		Status:      e.Status,
		Description: e.Description,
		Duration:    e.Duration.String(),
		Tags:        e.Tags,
	}
	if e.Cause != nil {
		resp.Error = e.Cause.Error()
	}
	return resp
}

// statusCode maps a health status to HTTP. Degraded still serves traffic.
func statusCode(s health.Status) int {
	if s == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (s *Server) healthContext(c echo.Context) (context.Context, context.CancelFunc) {
	if s.config.HealthTimeout > 0 {
		return context.WithTimeout(c.Request().Context(), s.config.HealthTimeout)
	}
	return context.WithCancel(c.Request().Context())
}

func (s *Server) writeReport(c echo.Context, predicate func(health.Registration) bool) error {
	ctx, cancel := s.healthContext(c)
	defer cancel()

	report, err := s.healthSvc.CheckHealth(ctx, predicate)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "health check aborted: "+err.Error())
	}
	resp := healthReportResponse{
		Status:        report.Status,
		TotalDuration: report.TotalDuration.String(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Checks:        make(map[string]healthEntryResponse, len(report.Entries)),
	}
	for name, e := range report.Entries {
		resp.Checks[name] = toEntryResponse(e)
	}
	return c.JSON(statusCode(report.Status), resp)
}

// healthCheck runs every registered check.
func (s *Server) healthCheck(c echo.Context) error {
	return s.writeReport(c, nil)
}

// readinessCheck runs the checks tagged "ready".
func (s *Server) readinessCheck(c echo.Context) error {
	return s.writeReport(c, func(r health.Registration) bool { return r.HasTag(readyTag) })
}

// livenessCheck reports that the process serves requests; it probes nothing.
func (s *Server) livenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": health.StatusHealthy.String()})
}

func (s *Server) singleHealthCheck(c echo.Context) error {
	ctx, cancel := s.healthContext(c)
	defer cancel()

	entry, err := s.healthSvc.CheckOne(ctx, c.Param("name"))
	if errors.Is(err, services.ErrHealthCheckNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "health check aborted: "+err.Error())
	}
	return c.JSON(statusCode(entry.Status), toEntryResponse(*entry))
}
