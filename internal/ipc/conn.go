package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/oxidepm/oxidepm/internal/apperr"
)

// MaxMessageSize is the per-message ceiling spec §5/§6 requires: an
// oversize line must surface as an IPC error, never grow the server's
// memory without bound. Grounded on
// original_source/crates/oxidepm-ipc/src/server.rs's MAX_MESSAGE_SIZE (10MB,
// enforced there via AsyncReadExt::take on the socket before buffering a
// line; here via bufio.Scanner's own max-token-size limit).
const MaxMessageSize = 10 << 20

// Conn is one NDJSON connection, usable from either the daemon (reading
// Requests, writing Responses) or the CLI (writing Requests, reading
// Responses).
type Conn struct {
	c       net.Conn
	scanner *bufio.Scanner

	writeMu sync.Mutex
}

// NewConn wraps an already-established connection.
func NewConn(c net.Conn) *Conn {
	s := bufio.NewScanner(c)
	s.Buffer(make([]byte, 4096), MaxMessageSize)
	return &Conn{c: c, scanner: s}
}

func (c *Conn) Close() error { return c.c.Close() }

func (c *Conn) nextLine() ([]byte, bool, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return nil, false, apperr.New(apperr.IpcError, "message exceeds 10 MiB limit")
			}
			return nil, false, apperr.Wrap(apperr.IpcError, "read", err)
		}
		return nil, false, nil // EOF, connection closed
	}
	return c.scanner.Bytes(), true, nil
}

func (c *Conn) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.IpcError, "marshal", err)
	}
	b = append(b, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.c.Write(b); err != nil {
		return apperr.Wrap(apperr.IpcError, "write", err)
	}
	return nil
}

// ReadRequest reads the next request line. ok is false on a clean
// connection close (no more requests).
func (c *Conn) ReadRequest() (req *Request, ok bool, err error) {
	line, ok, err := c.nextLine()
	if err != nil || !ok {
		return nil, ok, err
	}
	var r Request
	if jerr := json.Unmarshal(line, &r); jerr != nil {
		return nil, true, apperr.Wrap(apperr.IpcError, "invalid request", jerr)
	}
	return &r, true, nil
}

// WriteResponse writes one response line.
func (c *Conn) WriteResponse(r *Response) error { return c.writeLine(r) }

// WriteRequest writes one request line (client side).
func (c *Conn) WriteRequest(r *Request) error { return c.writeLine(r) }

// ReadResponse reads the next response line (client side). ok is false on a
// clean connection close.
func (c *Conn) ReadResponse() (resp *Response, ok bool, err error) {
	line, ok, err := c.nextLine()
	if err != nil || !ok {
		return nil, ok, err
	}
	var r Response
	if jerr := json.Unmarshal(line, &r); jerr != nil {
		return nil, true, apperr.Wrap(apperr.IpcError, "invalid response", jerr)
	}
	return &r, true, nil
}
