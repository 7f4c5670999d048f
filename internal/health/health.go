// Package health implements HealthProbe: HTTP and script-based liveness
// checks plus a consecutive-failure monitor, per spec §4.4. Grounded on
// original_source/crates/oxidepm-health/src/lib.rs.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

// Result is the outcome of a single probe evaluation.
type Result struct {
	Healthy    bool
	Timestamp  time.Time
	DurationMs int64
	Message    string
}

func healthy(d time.Duration) Result {
	return Result{Healthy: true, Timestamp: time.Now().UTC(), DurationMs: d.Milliseconds()}
}

func unhealthy(d time.Duration, msg string) Result {
	return Result{Healthy: false, Timestamp: time.Now().UTC(), DurationMs: d.Milliseconds(), Message: msg}
}

// Checker performs one-shot HTTP or script probes.
type Checker struct {
	client *http.Client
}

// NewChecker builds a Checker with a generous default client timeout; the
// per-check timeout from HealthCheck.TimeoutSecs is applied via context on
// each call, same as the Rust checker's tokio::time::timeout wrapper.
func NewChecker() *Checker {
	return &Checker{client: &http.Client{Timeout: 30 * time.Second}}
}

// Check runs cfg's HTTP or script probe, or reports healthy immediately if
// neither is configured.
func (c *Checker) Check(ctx context.Context, cfg *appspec.HealthCheck) Result {
	start := time.Now()
	timeoutDur := time.Duration(cfg.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeoutDur)
	defer cancel()

	if cfg.HTTPURL != "" {
		return c.checkHTTP(ctx, cfg.HTTPURL, cfg.ExpectedStatus, start)
	}
	if cfg.Script != "" {
		return c.checkScript(ctx, cfg.Script, start)
	}
	return healthy(time.Since(start))
}

func (c *Checker) checkHTTP(ctx context.Context, url string, expected []int, start time.Time) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return unhealthy(time.Since(start), fmt.Sprintf("Request failed: %s", err))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return unhealthy(time.Since(start), "Timeout")
		}
		return unhealthy(time.Since(start), fmt.Sprintf("Request failed: %s", err))
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if statusExpected(status, expected) {
		return healthy(time.Since(start))
	}
	return unhealthy(time.Since(start), fmt.Sprintf("Unexpected status: %d", status))
}

func statusExpected(status int, expected []int) bool {
	if len(expected) == 0 {
		return status == http.StatusOK
	}
	for _, s := range expected {
		if s == status {
			return true
		}
	}
	return false
}

func (c *Checker) checkScript(ctx context.Context, script string, start time.Time) Result {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	err := cmd.Run()
	if ctx.Err() != nil {
		return unhealthy(time.Since(start), "Timeout")
	}
	if err == nil {
		return healthy(time.Since(start))
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return unhealthy(time.Since(start), fmt.Sprintf("Exit code: %d", exitErr.ExitCode()))
	}
	return unhealthy(time.Since(start), fmt.Sprintf("Script error: %s", err))
}

// Monitor wraps a Checker with consecutive-failure tracking for one
// SupervisedProcess's HealthCheck configuration.
type Monitor struct {
	checker             *Checker
	config              *appspec.HealthCheck
	consecutiveFailures int
}

func NewMonitor(cfg *appspec.HealthCheck) *Monitor {
	return &Monitor{checker: NewChecker(), config: cfg}
}

// Check performs one evaluation, resetting the failure count on success or
// incrementing it on failure.
func (m *Monitor) Check(ctx context.Context) Result {
	result := m.checker.Check(ctx, m.config)
	if result.Healthy {
		m.consecutiveFailures = 0
	} else {
		m.consecutiveFailures++
	}
	return result
}

// IsUnhealthy reports whether the consecutive failure count has reached
// the configured retry threshold.
func (m *Monitor) IsUnhealthy() bool {
	return m.consecutiveFailures >= m.config.Retries
}

// FailureCount returns the current consecutive-failure count.
func (m *Monitor) FailureCount() int {
	return m.consecutiveFailures
}

// Interval returns the configured check interval.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.config.IntervalSecs) * time.Second
}

// Reset clears the failure counter, used after a manual restart.
func (m *Monitor) Reset() {
	m.consecutiveFailures = 0
}
