package hooks

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/logstream"
)

func newTestLog(t *testing.T) *logstream.Writer {
	t.Helper()
	w, err := logstream.NewWriter(filepath.Join(t.TempDir(), "app-hooks.log"), logstream.DefaultRotationConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitForLine(t *testing.T, w *logstream.Writer, contains string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		lines, err := logstream.Tail(w.Path(), 20)
		require.NoError(t, err)
		for _, l := range lines {
			if contains == "" || containsSubstring(l, contains) {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for hook log line containing %q", contains)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func containsSubstring(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (needle == "" || indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestRunNoScriptConfiguredIsNoOp(t *testing.T) {
	w := newTestLog(t)
	Run(appspec.Hooks{}, Context{Event: EventStart}, w)
	time.Sleep(50 * time.Millisecond)
	lines, err := logstream.Tail(w.Path(), 10)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestRunSuccessLogsOk(t *testing.T) {
	w := newTestLog(t)
	Run(appspec.Hooks{OnStart: "exit 0"}, Context{AppID: 1, AppName: "app", Event: EventStart}, w)
	waitForLine(t, w, "Event: start")
}

func TestRunFailureLogsFailed(t *testing.T) {
	w := newTestLog(t)
	Run(appspec.Hooks{OnCrash: "exit 1"}, Context{AppID: 1, AppName: "app", Event: EventCrash}, w)
	waitForLine(t, w, "FAILED")
}

func TestRunEnvContract(t *testing.T) {
	w := newTestLog(t)
	pid := 4242
	code := 7
	script := `echo "id=$OPM_APP_ID name=$OPM_APP_NAME event=$OPM_EVENT pid=$OPM_PID code=$OPM_EXIT_CODE"`
	Run(appspec.Hooks{OnError: script}, Context{
		AppID: 9, AppName: "myapp", Event: EventError, PID: &pid, ExitCode: &code,
	}, w)
	waitForLine(t, w, "id=9 name=myapp event=error pid=4242 code=7")
}
