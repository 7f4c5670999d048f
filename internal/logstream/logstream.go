package logstream

import (
	"bufio"
	"io"
	"path/filepath"

	"github.com/oxidepm/oxidepm/internal/appspec"
)

// LogStream pairs the three per-app log files spec §6 requires: stdout,
// stderr, and the hook-runner's own transcript. File paths derive only from
// the app's already-validated name, so no caller-supplied path ever reaches
// the filesystem (spec §3/§8, path-traversal invariant).
type LogStream struct {
	Out   *Writer
	Err   *Writer
	Hooks *Writer
}

// Open creates (or reopens) the three log files for name under dir, using
// config for all three. name must already have passed appspec.ValidateName.
func Open(dir, name string, config RotationConfig) (*LogStream, error) {
	out, err := NewWriter(filepath.Join(dir, name+"-out.log"), config)
	if err != nil {
		return nil, err
	}
	errW, err := NewWriter(filepath.Join(dir, name+"-err.log"), config)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	hooks, err := NewWriter(filepath.Join(dir, name+"-hooks.log"), config)
	if err != nil {
		_ = out.Close()
		_ = errW.Close()
		return nil, err
	}
	return &LogStream{Out: out, Err: errW, Hooks: hooks}, nil
}

// Close closes all three underlying writers, returning the first error.
func (ls *LogStream) Close() error {
	errOut := ls.Out.Close()
	errErr := ls.Err.Close()
	errHooks := ls.Hooks.Close()
	switch {
	case errOut != nil:
		return errOut
	case errErr != nil:
		return errErr
	default:
		return errHooks
	}
}

// Flush truncates all three live files, leaving rotated backups untouched.
func (ls *LogStream) Flush() error {
	if err := ls.Out.Flush(); err != nil {
		return err
	}
	if err := ls.Err.Flush(); err != nil {
		return err
	}
	return ls.Hooks.Flush()
}

var _ = appspec.ValidateName // documents the precondition on name above

// PumpLines reads newline-delimited output from r (typically a child
// process's stdout/stderr pipe) and appends each line to w with a
// timestamp, until r reaches EOF. Intended to run in its own goroutine; the
// caller closes the pipe to stop it. Grounded on the capture-task pattern in
// oxidepm-logs (lines are captured and timestamped independently of the
// child's own buffering, rather than piping raw bytes straight to disk).
func PumpLines(r io.Reader, w *Writer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		_ = w.WriteLine(scanner.Text())
	}
}
