package supervisor

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/env"
	"github.com/oxidepm/oxidepm/internal/registry"
	"github.com/oxidepm/oxidepm/internal/selector"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("raw-command specs assume a unix shell")
	}
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	requireUnix(t)
	reg, err := registry.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	s := New(Config{
		Registry: reg,
		Env:      env.New(),
		LogDir:   t.TempDir(),
	})
	t.Cleanup(s.Shutdown)
	return s
}

func sleepSpec(name string) *appspec.AppSpec {
	return &appspec.AppSpec{
		Name:    name,
		Mode:    appspec.ModeRawCommand,
		Command: "sleep",
		Args:    []string{"30"},
	}
}

func waitForStatus(t *testing.T, s *Supervisor, sel selector.Selector, want appspec.Status, timeout time.Duration) appspec.RunState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last appspec.RunState
	for time.Now().Before(deadline) {
		view, err := s.Show(context.Background(), sel)
		if err == nil {
			last = view.State
			if last.Status == want {
				return last
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, last seen %+v", want, last)
	return last
}

func TestStartStop(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	st, err := s.Start(ctx, sleepSpec("start-stop"))
	require.NoError(t, err)
	require.Equal(t, appspec.StatusRunning, st.Status)
	require.NotNil(t, st.PID)

	n, err := s.Stop(ctx, selector.Selector{Kind: selector.KindID, ID: st.AppID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	view, err := s.Show(ctx, selector.Selector{Kind: selector.KindID, ID: st.AppID})
	require.NoError(t, err)
	require.Equal(t, appspec.StatusStopped, view.State.Status)
	require.Nil(t, view.State.PID)
}

func TestStartDuplicateNameWhileRunningRejected(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	_, err := s.Start(ctx, sleepSpec("dupe"))
	require.NoError(t, err)

	_, err = s.Start(ctx, sleepSpec("dupe"))
	require.Error(t, err)

	sel := selector.Selector{Kind: selector.KindName, Name: "dupe"}
	_, _ = s.Stop(ctx, sel)
}

func TestRestartIncrementsCount(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	st, err := s.Start(ctx, sleepSpec("restartable"))
	require.NoError(t, err)

	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}
	n, err := s.Restart(ctx, sel)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	view := waitForStatus(t, s, sel, appspec.StatusRunning, 2*time.Second)
	require.Equal(t, 1, view.Restarts)

	_, _ = s.Stop(ctx, sel)
}

func TestAutoRestartOnCrash(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	spec := &appspec.AppSpec{
		Name:    "crasher",
		Mode:    appspec.ModeRawCommand,
		Command: "sh",
		Args:    []string{"-c", "exit 1"},
		RestartPolicy: appspec.RestartPolicy{
			AutoRestart:     true,
			MaxRestarts:     3,
			CrashWindowSecs: 60,
		},
	}
	st, err := s.Start(ctx, spec)
	require.NoError(t, err)

	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}
	view := waitForStatus(t, s, sel, appspec.StatusRunning, 3*time.Second)
	require.GreaterOrEqual(t, view.Restarts, 1)

	_, _ = s.Stop(ctx, sel)
}

func TestClusterStartAndStop(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	spec := &appspec.AppSpec{
		Name:      "web",
		Mode:      appspec.ModeRawCommand,
		Command:   "sleep",
		Args:      []string{"30"},
		Instances: 3,
	}
	st, err := s.Start(ctx, spec)
	require.NoError(t, err)
	require.Len(t, st.ClusterInstanceIDs, 3)

	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}
	n, err := s.Stop(ctx, sel)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = s.Delete(ctx, sel)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDescribeReturnsStaticFields(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	st, err := s.Start(ctx, sleepSpec("describe-me"))
	require.NoError(t, err)
	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}

	d, err := s.Describe(ctx, sel)
	require.NoError(t, err)
	require.Equal(t, "describe-me", d.Name)
	require.Equal(t, "sleep", d.Command)

	_, _ = s.Stop(ctx, sel)
}

func TestLogsAndFlush(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	spec := &appspec.AppSpec{
		Name:    "logger",
		Mode:    appspec.ModeRawCommand,
		Command: "sh",
		Args:    []string{"-c", "echo hello-from-test; sleep 30"},
	}
	st, err := s.Start(ctx, spec)
	require.NoError(t, err)
	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}

	require.Eventually(t, func() bool {
		lines, err := s.Logs(ctx, LogQuery{Selector: sel, Lines: 10, Stdout: true})
		return err == nil && len(lines) > 0
	}, 2*time.Second, 50*time.Millisecond)

	n, err := s.Flush(sel)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, _ = s.Stop(ctx, sel)
}

func TestSaveAndResurrect(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	st, err := s.Start(ctx, sleepSpec("resurrectable"))
	require.NoError(t, err)
	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}

	path := filepath.Join(t.TempDir(), "saved.json")
	n, err := s.Save(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.FileExists(t, path)

	_, err = s.Delete(ctx, sel)
	require.NoError(t, err)

	n, err = s.Resurrect(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	view, err := s.Show(ctx, selector.Selector{Kind: selector.KindName, Name: "resurrectable"})
	require.NoError(t, err)
	require.Equal(t, appspec.StatusRunning, view.State.Status)

	_, _ = s.Stop(ctx, selector.Selector{Kind: selector.KindID, ID: view.Spec.ID})
}

func TestResurrectSkipsAlreadyRegisteredName(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	st, err := s.Start(ctx, sleepSpec("already-there"))
	require.NoError(t, err)
	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}

	path := filepath.Join(t.TempDir(), "saved.json")
	_, err = s.Save(ctx, path)
	require.NoError(t, err)

	n, err := s.Resurrect(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 0, n, "already-registered app should be skipped")

	_, _ = s.Stop(ctx, sel)
}

func TestResurrectMissingFileIsNoop(t *testing.T) {
	s := newTestSupervisor(t)
	n, err := s.Resurrect(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStatusListsStoppedAppsFromRegistry(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	st, err := s.Start(ctx, sleepSpec("registered-only"))
	require.NoError(t, err)
	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}
	_, err = s.Stop(ctx, sel)
	require.NoError(t, err)

	views, err := s.Status(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, appspec.StatusStopped, views[0].State.Status)
}

func TestReloadSingleSwapsBackToOriginalName(t *testing.T) {
	s := newTestSupervisor(t)
	ctx := context.Background()

	st, err := s.Start(ctx, sleepSpec("reloadable"))
	require.NoError(t, err)
	origPID := *st.PID
	sel := selector.Selector{Kind: selector.KindID, ID: st.AppID}

	n, err := s.Reload(ctx, sel)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	view, err := s.Show(ctx, selector.Selector{Kind: selector.KindName, Name: "reloadable"})
	require.NoError(t, err)
	require.Equal(t, appspec.StatusRunning, view.State.Status)
	require.NotEqual(t, origPID, *view.State.PID)

	_, _ = s.Stop(ctx, selector.Selector{Kind: selector.KindName, Name: "reloadable"})
}
