package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/oxidepm/oxidepm/internal/apperr"
)

// Handler dispatches one decoded Request to the supervisor and produces a
// Response. HandleFollow additionally streams LogLine responses for a
// Logs{follow: true} request until the client disconnects or ctx is
// cancelled; every other request type's HandleFollow implementation should
// just send a single Handle(ctx, req) result.
type Handler interface {
	Handle(ctx context.Context, req *Request) *Response
	HandleFollow(ctx context.Context, req *Request, send func(*Response) error) error
}

// Server owns the bound domain socket (spec §6: ~/.oxidepm/daemon.sock,
// 0600, stale sockets cleaned up at startup).
type Server struct {
	path string
	ln   net.Listener
	log  *slog.Logger
}

// Listen binds path, removing a stale socket file left by a daemon that is
// no longer running. "Stale" is decided by a short dial probe (grounded on
// other_examples/.../internal/daemon/daemon.go's Run(): a live daemon
// answers the dial, so only a failed dial justifies removing the file) -
// a blind removal, as the original Rust server.rs does unconditionally on
// every bind, would also kill a second daemon's socket out from under it.
func Listen(path string, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, apperr.Wrap(apperr.IpcError, "create socket dir", err)
	}

	if _, err := os.Lstat(path); err == nil {
		if conn, dialErr := net.DialTimeout("unix", path, 200*time.Millisecond); dialErr == nil {
			_ = conn.Close()
			return nil, apperr.New(apperr.DaemonAlreadyRunning, "a daemon is already listening on "+path)
		}
		log.Info("removing stale socket", "path", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.IpcError, "remove stale socket", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.IpcError, "bind socket", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, apperr.Wrap(apperr.IpcError, "chmod socket", err)
	}
	return &Server{path: path, ln: ln, log: log}, nil
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

// Serve accepts connections until ctx is cancelled or the listener closes,
// dispatching each request line to handler on its own goroutine per
// connection. Grounded on the aetherflow daemon's Accept loop +
// per-connection decode/dispatch/encode goroutine.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		connID := uuid.NewString()
		go s.handleConn(ctx, connID, conn, handler)
	}
}

func (s *Server) handleConn(ctx context.Context, connID string, nc net.Conn, handler Handler) {
	defer nc.Close()
	c := NewConn(nc)
	log := s.log.With("conn_id", connID)

	for {
		req, ok, err := c.ReadRequest()
		if err != nil {
			var aerr *apperr.Error
			if errors.As(err, &aerr) {
				_ = c.WriteResponse(Err(aerr.Error()))
			}
			log.Warn("request read failed", "error", err)
			return
		}
		if !ok {
			return // client closed the connection
		}
		log.Debug("request", "type", req.Type)

		if req.Type == ReqLogs && req.Follow {
			if err := handler.HandleFollow(ctx, req, c.WriteResponse); err != nil {
				log.Warn("follow stream ended", "error", err)
			}
			continue
		}

		resp := handler.Handle(ctx, req)
		if err := c.WriteResponse(resp); err != nil {
			log.Warn("response write failed", "error", err)
			return
		}
	}
}
