// Package requesthandler implements §4.8's dispatch table: it decodes
// nothing itself (that's internal/ipc's job) but translates each already-
// decoded ipc.Request into the Supervisor call it names, and the
// Supervisor's result back into the matching ipc.Response variant.
//
// Grounded on original_source/crates/oxidepmd/src/handler.rs's
// handle_request match-on-variant dispatch (one arm per Request variant,
// each calling straight into the Supervisor and wrapping Ok/Err into a
// Response), adapted to Go's no-sum-types Request/Response shape.
package requesthandler

import (
	"context"
	"log/slog"

	"github.com/oxidepm/oxidepm/internal/apperr"
	"github.com/oxidepm/oxidepm/internal/ipc"
	"github.com/oxidepm/oxidepm/internal/selector"
	"github.com/oxidepm/oxidepm/internal/supervisor"
)

// Handler is the single entry point the IPC server calls per request. A
// request handler instance is shared by every connection; its one piece of
// mutable state (none here - all of it lives in the Supervisor) needs no
// lock of its own.
type Handler struct {
	sup       *supervisor.Supervisor
	savedPath string
	log       *slog.Logger

	// shutdown is invoked once the Kill response has been written, so the
	// client sees "Ok, shutting down" before the daemon actually stops
	// accepting connections (grounded on
	// other_examples/.../daemon.go's handleShutdown: reply first, then
	// close(d.shutdown) after a short delay).
	shutdown func()
}

// New builds a Handler. shutdown is called from a separate goroutine after
// Kill's response is flushed; it is the daemon's own responsibility to stop
// the IPC server and exit.
func New(sup *supervisor.Supervisor, savedPath string, log *slog.Logger, shutdown func()) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{sup: sup, savedPath: savedPath, log: log, shutdown: shutdown}
}

// Handle implements ipc.Handler for every verb except Logs{follow: true}.
func (h *Handler) Handle(ctx context.Context, req *ipc.Request) *ipc.Response {
	switch req.Type {
	case ipc.ReqPing:
		return ipc.Pong()
	case ipc.ReqStart:
		return h.start(ctx, req)
	case ipc.ReqStop:
		return h.stop(ctx, req)
	case ipc.ReqRestart:
		return h.restart(ctx, req)
	case ipc.ReqDelete:
		return h.delete(ctx, req)
	case ipc.ReqStatus:
		return h.status(ctx)
	case ipc.ReqShow:
		return h.show(ctx, req)
	case ipc.ReqLogs:
		return h.logs(ctx, req)
	case ipc.ReqSave:
		return h.save(ctx)
	case ipc.ReqResurrect:
		return h.resurrect(ctx)
	case ipc.ReqReload:
		return h.reload(ctx, req)
	case ipc.ReqFlush:
		return h.flush(req)
	case ipc.ReqDescribe:
		return h.describe(ctx, req)
	case ipc.ReqKill:
		return h.kill(ctx)
	default:
		return ipc.Err("unknown request type: " + string(req.Type))
	}
}

// HandleFollow implements ipc.Handler's streaming half. Only Logs{follow:
// true} does real streaming work; every other type falls back to a single
// Handle call, which the IPC server never actually routes here (see
// server.go's dispatch), but a correct fallback costs nothing.
func (h *Handler) HandleFollow(ctx context.Context, req *ipc.Request, send func(*ipc.Response) error) error {
	if req.Type != ipc.ReqLogs || !req.Follow {
		return send(h.Handle(ctx, req))
	}
	return h.followLogs(ctx, req, send)
}

func errResponse(err error) *ipc.Response {
	return ipc.Err(err.Error())
}

func parseSelector(s string) (selector.Selector, error) {
	if s == "" {
		return selector.Selector{}, apperr.New(apperr.InvalidSelector, "empty selector")
	}
	return selector.Parse(s), nil
}
