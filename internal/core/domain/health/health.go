package health

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome class of a health probe. Values are ordered from worst to
// best so the overall status of several checks is their minimum.
type Status int

const (
	StatusUnhealthy Status = iota
	StatusDegraded
	StatusHealthy
)

func (s Status) String() string {
	switch s {
	case StatusUnhealthy:
		return "unhealthy"
	case StatusDegraded:
		return "degraded"
	case StatusHealthy:
		return "healthy"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status as its lowercase name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus parses a status name. An empty string yields StatusUnhealthy.
func ParseStatus(name string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "unhealthy":
		return StatusUnhealthy, nil
	case "degraded":
		return StatusDegraded, nil
	case "healthy":
		return StatusHealthy, nil
	default:
		return StatusUnhealthy, fmt.Errorf("unknown health status %q", name)
	}
}

// Result is produced by one probe execution. It is passed by value and never
// modified after construction.
type Result struct {
	Status      Status
	Description string
	Cause       error
}

func Healthy(description string) Result {
	return Result{Status: StatusHealthy, Description: description}
}

func Degraded(description string, cause error) Result {
	return Result{Status: StatusDegraded, Description: description, Cause: cause}
}

func Unhealthy(description string, cause error) Result {
	return Result{Status: StatusUnhealthy, Description: description, Cause: cause}
}

// Registration describes how a named check is run and reported.
type Registration struct {
	Name string
	// FailureStatus is reported when the probe fails. The zero value is StatusUnhealthy.
	FailureStatus Status
	// Timeout bounds a single check run; zero means no per-check timeout.
	Timeout time.Duration
	Tags    []string
}

// HasTag reports whether the registration carries tag.
func (r Registration) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CheckContext is handed to evaluators on every run.
type CheckContext struct {
	Registration Registration
}

// ReportEntry is the outcome of one registered check within a Report.
type ReportEntry struct {
	Status      Status
	Description string
	Cause       error
	Duration    time.Duration
	Tags        []string
}

// Report aggregates the entries of several checks.
type Report struct {
	Status        Status
	TotalDuration time.Duration
	Entries       map[string]ReportEntry
}

// NewReport computes the overall status as the worst entry status. An empty report is healthy.
func NewReport(entries map[string]ReportEntry, total time.Duration) *Report {
	overall := StatusHealthy
	for _, e := range entries {
		if e.Status < overall {
			overall = e.Status
		}
	}
	return &Report{Status: overall, TotalDuration: total, Entries: entries}
}
