// Package health implements Deployment Readiness (spec §4.6): after a
// container starts, poll either its declared HTTP health endpoint or a
// plain TCP connect, tracking consecutive passes/failures.
package health

import (
	"context"
	"time"
)

// CheckType identifies which readiness strategy produced a Result.
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
)

// Result is the outcome of one check.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker performs one readiness probe.
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Config controls polling cadence and pass/fail thresholds.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	// Retries is carried in the config but not consulted by Status.Update:
	// a single failed check marks the status unhealthy.
	Retries int
	// RequiredSuccesses is consecutive passes required before declaring
	// healthy; spec §4.6 requires 2 for the HTTP path.
	RequiredSuccesses int
	// StartPeriod is a grace period before polling begins, for
	// slow-starting containers.
	StartPeriod time.Duration
}

// DefaultConfig polls every 500 ms with a 5 s per-check timeout and
// requires 2 consecutive passes. It sets no overall deadline; callers
// bound PollUntilReady with their own context timeout.
func DefaultConfig() Config {
	return Config{
		Interval:          500 * time.Millisecond,
		Timeout:           5 * time.Second,
		Retries:           3,
		RequiredSuccesses: 2,
		StartPeriod:       0,
	}
}

// Status tracks consecutive pass/fail counts for one container.
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
	StartedAt            time.Time
}

// NewStatus starts a Status in the not-yet-healthy state; readiness must be
// earned by consecutive passes, unlike the teacher's "assume healthy"
// default, because spec §4.6 requires N consecutive passes before a
// container is considered ready.
func NewStatus() *Status {
	return &Status{StartedAt: time.Now()}
}

// Update folds one check Result into Status, given the pass/fail
// thresholds in cfg.
func (s *Status) Update(result Result, cfg Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		if s.ConsecutiveSuccesses >= cfg.RequiredSuccesses {
			s.Healthy = true
		}
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
		s.Healthy = false
	}
}

// InStartPeriod reports whether the grace period before the first poll is
// still in effect.
func (s *Status) InStartPeriod(cfg Config) bool {
	if cfg.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < cfg.StartPeriod
}

// PollUntilReady polls checker on cfg.Interval until Status reports
// Healthy, the context is cancelled, or totalTimeout elapses. It implements
// the readiness criteria order of spec §4.6: callers choose an HTTPChecker
// when a health endpoint is known, else a TCPChecker.
func PollUntilReady(ctx context.Context, checker Checker, cfg Config, totalTimeout time.Duration) (*Status, error) {
	status := NewStatus()

	deadline := time.Now().Add(totalTimeout)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		if status.InStartPeriod(cfg) {
			select {
			case <-ctx.Done():
				return status, ctx.Err()
			case <-time.After(cfg.StartPeriod):
			}
		}

		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		result := checker.Check(checkCtx)
		cancel()

		status.Update(result, cfg)
		if status.Healthy {
			return status, nil
		}

		if time.Now().After(deadline) {
			return status, context.DeadlineExceeded
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
