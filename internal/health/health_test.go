package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

func TestCheckerNoConfigIsHealthy(t *testing.T) {
	checker := NewChecker()
	result := checker.Check(context.Background(), &appspec.HealthCheck{TimeoutSecs: 1})
	require.True(t, result.Healthy)
}

func TestCheckerScriptSuccess(t *testing.T) {
	checker := NewChecker()
	result := checker.Check(context.Background(), &appspec.HealthCheck{Script: "exit 0", TimeoutSecs: 1})
	require.True(t, result.Healthy)
}

func TestCheckerScriptFailure(t *testing.T) {
	checker := NewChecker()
	result := checker.Check(context.Background(), &appspec.HealthCheck{Script: "exit 1", TimeoutSecs: 1})
	require.False(t, result.Healthy)
	require.Contains(t, result.Message, "Exit code")
}

func TestCheckerHTTPExpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	checker := NewChecker()
	result := checker.Check(context.Background(), &appspec.HealthCheck{
		HTTPURL: srv.URL, ExpectedStatus: []int{http.StatusAccepted}, TimeoutSecs: 2,
	})
	require.True(t, result.Healthy)
}

func TestCheckerHTTPUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	checker := NewChecker()
	result := checker.Check(context.Background(), &appspec.HealthCheck{HTTPURL: srv.URL, TimeoutSecs: 2})
	require.False(t, result.Healthy)
}

func TestMonitorFailureCounting(t *testing.T) {
	m := NewMonitor(&appspec.HealthCheck{Script: "exit 1", Retries: 3, TimeoutSecs: 1})
	require.False(t, m.IsUnhealthy())
	m.Check(context.Background())
	require.False(t, m.IsUnhealthy())
	m.Check(context.Background())
	require.False(t, m.IsUnhealthy())
	m.Check(context.Background())
	require.True(t, m.IsUnhealthy())
}

func TestMonitorResetsOnSuccess(t *testing.T) {
	m := NewMonitor(&appspec.HealthCheck{Script: "exit 1", Retries: 2, TimeoutSecs: 1})
	m.Check(context.Background())
	m.Check(context.Background())
	require.True(t, m.IsUnhealthy())
	m.config.Script = "exit 0"
	m.Check(context.Background())
	require.False(t, m.IsUnhealthy())
}
