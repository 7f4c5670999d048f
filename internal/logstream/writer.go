package logstream

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer is an append-only, size-rotated log file with an optional
// broadcast of newly written lines to live followers. Grounded on
// oxidepm-logs::writer::LogWriter.
type Writer struct {
	mu          sync.Mutex
	path        string
	f           *os.File
	buf         *bufio.Writer
	config      RotationConfig
	currentSize int64
	subs        map[chan string]struct{}
}

// NewWriter opens (creating if absent) path for append, creating its parent
// directory if missing.
func NewWriter(path string, config RotationConfig) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{
		path:        path,
		f:           f,
		buf:         bufio.NewWriter(f),
		config:      config,
		currentSize: info.Size(),
		subs:        make(map[chan string]struct{}),
	}, nil
}

// Path returns the live file path.
func (w *Writer) Path() string { return w.path }

// Subscribe registers ch to receive every line written from now on. The
// caller must call Unsubscribe when done; sends are non-blocking (a slow
// subscriber drops lines rather than stalling writers).
func (w *Writer) Subscribe(ch chan string) {
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
}

// Unsubscribe removes a previously-registered channel.
func (w *Writer) Unsubscribe(ch chan string) {
	w.mu.Lock()
	delete(w.subs, ch)
	w.mu.Unlock()
}

// WriteLine appends a single line, prefixed with a UTC timestamp, and
// rotates if the configured size threshold is now exceeded.
func (w *Writer) WriteLine(line string) error {
	formatted := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"), line)
	return w.writeRaw(formatted)
}

func (w *Writer) writeRaw(formatted string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.buf.WriteString(formatted)
	if err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	w.currentSize += int64(n)

	for ch := range w.subs {
		select {
		case ch <- formatted:
		default:
		}
	}

	if w.currentSize >= w.config.MaxSizeBytes {
		return w.rotate()
	}
	return nil
}

// rotate shifts .N-1 -> .N (dropping the oldest once max_files is reached),
// renames the live file to .1, and opens a fresh live file. Caller must hold w.mu.
func (w *Writer) rotate() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	_ = w.f.Close()

	for i := w.config.MaxFiles; i >= 1; i-- {
		oldPath := rotatedPath(w.path, i)
		newPath := rotatedPath(w.path, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			if i >= w.config.MaxFiles {
				_ = os.Remove(oldPath)
			} else {
				_ = os.Rename(oldPath, newPath)
			}
		}
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, rotatedPath(w.path, 1)); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	w.f = f
	w.buf = bufio.NewWriter(f)
	w.currentSize = 0
	return nil
}

// Flush truncates the live file to zero length, without deleting it or
// touching rotated backups.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return err
	}
	_ = w.f.Close()
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	w.f = f
	w.buf = bufio.NewWriter(f)
	w.currentSize = 0
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.buf.Flush()
	return w.f.Close()
}

// CurrentSize returns the live file's tracked size.
func (w *Writer) CurrentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentSize
}

func rotatedPath(base string, index int) string {
	return fmt.Sprintf("%s.%d", base, index)
}
