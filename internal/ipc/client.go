package ipc

import (
	"errors"
	"net"

	"github.com/oxidepm/oxidepm/internal/apperr"
)

// Dial connects to a daemon listening on path, mapping a missing socket or
// a refused connection to DaemonNotRunning (grounded on
// original_source/crates/oxidepm-ipc/src/client.rs's connect(), which maps
// NotFound/ConnectionRefused to Error::DaemonNotRunning).
func Dial(path string) (*Conn, error) {
	c, err := net.Dial("unix", path)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return nil, apperr.New(apperr.DaemonNotRunning, "no daemon listening on "+path)
		}
		return nil, apperr.Wrap(apperr.IpcConnectionFailed, "dial", err)
	}
	return NewConn(c), nil
}

// Call sends req and reads exactly one response line - the shape every
// verb except Logs{follow: true} uses.
func (c *Conn) Call(req *Request) (*Response, error) {
	if err := c.WriteRequest(req); err != nil {
		return nil, err
	}
	resp, ok, err := c.ReadResponse()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.IpcError, "daemon closed the connection without responding")
	}
	return resp, nil
}

// CallStreaming sends req and invokes onResponse for every response line
// until the connection closes or onResponse returns false - the shape
// Logs{follow: true} uses (an unbounded sequence of log_line responses).
func (c *Conn) CallStreaming(req *Request, onResponse func(*Response) bool) error {
	if err := c.WriteRequest(req); err != nil {
		return err
	}
	for {
		resp, ok, err := c.ReadResponse()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !onResponse(resp) {
			return nil
		}
	}
}
