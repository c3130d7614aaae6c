package health

import (
	"context"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeGateway CheckType = "gateway"
	CheckTypeHTTP    CheckType = "http"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config controls how results are debounced into a Status
type Config struct {
	// Timeout bounds a single check
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking as down
	Retries int

	// StartPeriod is the grace period during which failures are not counted
	StartPeriod time.Duration
}

// DefaultConfig returns a Config that reports a gateway down on the first
// failed check
func DefaultConfig() Config {
	return Config{
		Timeout: 120 * time.Second,
		Retries: 1,
	}
}

// Status tracks the debounced liveness of one monitored instance
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int

	LastCheck  time.Time
	LastResult Result

	// Healthy is the debounced verdict
	Healthy bool

	StartedAt time.Time
}

// NewStatus creates a Status that is healthy until proven otherwise
func NewStatus() *Status {
	return &Status{
		Healthy:   true,
		StartedAt: time.Now(),
	}
}

// Update folds a new result into the status
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	if s.InStartPeriod(config) {
		return
	}
	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0

	retries := config.Retries
	if retries < 1 {
		retries = 1
	}
	if s.ConsecutiveFailures >= retries {
		s.Healthy = false
	}
}

// InStartPeriod returns true if we're still in the startup grace period
func (s *Status) InStartPeriod(config Config) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < config.StartPeriod
}
