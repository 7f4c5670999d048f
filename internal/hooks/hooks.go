// Package hooks implements HookRunner: fire-and-forget lifecycle scripts
// run with a fixed OPM_* environment contract, per spec §4.5. Grounded on
// original_source/crates/oxidepmd/src/supervisor.rs's run_hook/run_hook_script.
package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/oxidepm/oxidepm/internal/appspec"
	"github.com/oxidepm/oxidepm/internal/logstream"
)

const scriptTimeout = 30 * time.Second

// Event names the fixed lifecycle events a hook can fire on.
type Event string

const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventRestart Event = "restart"
	EventCrash   Event = "crash"
	EventError   Event = "error"
)

// Context carries the values the environment contract exposes to the script.
type Context struct {
	AppID    int64
	AppName  string
	Event    Event
	PID      *int
	ExitCode *int
}

// scriptFor returns the configured script for ctx.Event, or "" if none.
func scriptFor(h appspec.Hooks, event Event) string {
	switch event {
	case EventStart:
		return h.OnStart
	case EventStop:
		return h.OnStop
	case EventRestart:
		return h.OnRestart
	case EventCrash:
		return h.OnCrash
	case EventError:
		return h.OnError
	default:
		return ""
	}
}

// Run fires hooks.<event>, if configured, in its own goroutine, and never
// blocks the caller (spec §4.5's "strictly fire-and-forget" requirement).
// Output is appended to hooksLog; the run's outcome is not observable to
// the caller beyond the log.
func Run(h appspec.Hooks, ctx Context, hooksLog *logstream.Writer) {
	script := scriptFor(h, ctx.Event)
	if script == "" {
		return
	}
	go func() {
		out, err := runScript(script, ctx)
		label := fmt.Sprintf("Event: %s", ctx.Event)
		if err != nil {
			_ = hooksLog.WriteLine(label + " FAILED: " + err.Error())
			return
		}
		if out != "" {
			_ = hooksLog.WriteLine(label + " output: " + out)
		} else {
			_ = hooksLog.WriteLine(label + " ok")
		}
	}()
}

func runScript(script string, hctx Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Env = append(os.Environ(),
		"OPM_APP_ID="+strconv.FormatInt(hctx.AppID, 10),
		"OPM_APP_NAME="+hctx.AppName,
		"OPM_EVENT="+string(hctx.Event),
	)
	if hctx.PID != nil {
		cmd.Env = append(cmd.Env, "OPM_PID="+strconv.Itoa(*hctx.PID))
	}
	if hctx.ExitCode != nil {
		cmd.Env = append(cmd.Env, "OPM_EXIT_CODE="+strconv.Itoa(*hctx.ExitCode))
	}

	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return "", fmt.Errorf("hook timed out after %s", scriptTimeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("exited with code %d: %s", exitErr.ExitCode(), string(out))
		}
		return "", fmt.Errorf("failed to execute hook: %w", err)
	}
	return string(out), nil
}
