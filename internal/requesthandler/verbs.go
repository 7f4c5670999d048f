package requesthandler

import (
	"context"
	"time"

	"github.com/oxidepm/oxidepm/internal/ipc"
	"github.com/oxidepm/oxidepm/internal/logstream"
	"github.com/oxidepm/oxidepm/internal/supervisor"
)

func appInfoOf(v supervisor.AppView) ipc.AppInfo {
	return ipc.AppInfo{Spec: v.Spec, State: v.State}
}

func (h *Handler) start(ctx context.Context, req *ipc.Request) *ipc.Response {
	if req.Spec == nil {
		return ipc.Err("start requires a spec")
	}
	st, err := h.sup.Start(ctx, req.Spec)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Started(st.AppID, req.Spec.Name)
}

func (h *Handler) stop(ctx context.Context, req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	n, err := h.sup.Stop(ctx, sel)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Stopped(n)
}

func (h *Handler) restart(ctx context.Context, req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	n, err := h.sup.Restart(ctx, sel)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Restarted(n)
}

func (h *Handler) delete(ctx context.Context, req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	n, err := h.sup.Delete(ctx, sel)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Deleted(n)
}

func (h *Handler) status(ctx context.Context) *ipc.Response {
	views, err := h.sup.Status(ctx)
	if err != nil {
		return errResponse(err)
	}
	apps := make([]ipc.AppInfo, len(views))
	for i, v := range views {
		apps[i] = appInfoOf(v)
	}
	return ipc.StatusResp(apps)
}

func (h *Handler) show(ctx context.Context, req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	view, err := h.sup.Show(ctx, sel)
	if err != nil {
		return errResponse(err)
	}
	return ipc.ShowResp(appInfoOf(view))
}

func (h *Handler) logs(ctx context.Context, req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	lines, err := h.sup.Logs(ctx, supervisor.LogQuery{
		Selector: sel,
		Lines:    req.Lines,
		Stdout:   req.Stdout,
		Stderr:   req.Stderr,
	})
	if err != nil {
		return errResponse(err)
	}
	return ipc.LogLines(lines)
}

// followLogs implements Logs{follow: true}: an initial tail identical to a
// non-follow Logs call, then a continuous stream of log_line responses as
// new lines are appended. Per query.go's LogPath, only one stream (stdout
// unless stderr-only was requested) is followed - a selector matching both
// streams at once has no well-defined interleave order to stream live.
func (h *Handler) followLogs(ctx context.Context, req *ipc.Request, send func(*ipc.Response) error) error {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return send(errResponse(err))
	}
	stdout := req.Stdout || !req.Stderr
	lines, err := h.sup.Logs(ctx, supervisor.LogQuery{Selector: sel, Lines: req.Lines, Stdout: stdout, Stderr: !stdout})
	if err != nil {
		return send(errResponse(err))
	}
	if err := send(ipc.LogLines(lines)); err != nil {
		return err
	}

	path, err := h.sup.LogPath(sel, stdout)
	if err != nil {
		return send(errResponse(err))
	}

	ch := make(chan string, 64)
	followCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- logstream.Follow(followCtx, path, ch) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-ch:
			if err := send(ipc.LogLine(line)); err != nil {
				return err
			}
		case err := <-errCh:
			return err
		}
	}
}

func (h *Handler) save(ctx context.Context) *ipc.Response {
	n, err := h.sup.Save(ctx, h.savedPath)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Saved(n, h.savedPath)
}

func (h *Handler) resurrect(ctx context.Context) *ipc.Response {
	n, err := h.sup.Resurrect(ctx, h.savedPath)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Resurrected(n)
}

func (h *Handler) reload(ctx context.Context, req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	n, err := h.sup.Reload(ctx, sel)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Reloaded(n)
}

func (h *Handler) flush(req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	n, err := h.sup.Flush(sel)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Flushed(n)
}

func (h *Handler) describe(ctx context.Context, req *ipc.Request) *ipc.Response {
	sel, err := parseSelector(req.Selector)
	if err != nil {
		return errResponse(err)
	}
	d, err := h.sup.Describe(ctx, sel)
	if err != nil {
		return errResponse(err)
	}
	return ipc.Described(d.Name, d.Command, d.Args, d.Cwd, d.Env, string(d.Mode))
}

// kill implements the Kill verb: save the registry snapshot, respond, then
// hand off to Handler.shutdown on a short delay so the response reaches the
// client before the daemon stops accepting connections. Grounded on
// other_examples/.../daemon.go's handleShutdown.
func (h *Handler) kill(ctx context.Context) *ipc.Response {
	if _, err := h.sup.Save(ctx, h.savedPath); err != nil {
		h.log.Warn("kill: save failed", "error", err)
	}
	if h.shutdown != nil {
		go func() {
			time.Sleep(50 * time.Millisecond)
			h.shutdown()
		}()
	}
	return ipc.Ok("shutting down")
}
